// Package election wraps a HashiCorp Raft group to provide single-leader
// election for the scheduler and reconciler loops. Raft here carries no
// domain data: its log exists solely to make leadership a safely replicated
// fact, not to replicate job state.
package election

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/ridgeline/foreman/pkg/log"
)

// Epoch represents one continuous stretch of leadership. Ctx is cancelled
// the instant this process steps down, which transitively cancels every
// leader-only task started under it.
type Epoch struct {
	Generation uint64
	Ctx        context.Context
}

// Peer is a voting member of the Raft group.
type Peer struct {
	ID   string
	Addr string
}

// Config configures a Raft-backed elector.
type Config struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	Bootstrap bool
	Peers     []Peer
}

// Elector wraps a *raft.Raft instance and turns its leadership notifications
// into a channel of Epochs.
type Elector struct {
	nodeID string
	raft   *raft.Raft

	mu         sync.Mutex
	generation uint64
	cancelCur  context.CancelFunc
}

// New starts (or joins) a Raft group per cfg and returns an Elector ready to
// be polled or watched for leadership.
func New(cfg Config) (*Elector, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, noopFSM{}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	if cfg.Bootstrap {
		servers := []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}}
		for _, p := range cfg.Peers {
			if p.ID == cfg.NodeID {
				continue
			}
			servers = append(servers, raft.Server{ID: raft.ServerID(p.ID), Address: raft.ServerAddress(p.Addr)})
		}
		future := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, fmt.Errorf("bootstrap cluster: %w", err)
		}
	}

	return &Elector{nodeID: cfg.NodeID, raft: r}, nil
}

// IsLeader reports whether this process currently holds Raft leadership.
func (e *Elector) IsLeader() bool {
	return e.raft.State() == raft.Leader
}

// LeaderAddr returns the Raft-advertised address of the current leader, or
// "" if none is known.
func (e *Elector) LeaderAddr() string {
	addr, _ := e.raft.LeaderWithID()
	return string(addr)
}

// WaitForLeadership returns a channel that receives a new Epoch each time
// this process becomes the Raft leader. The channel is closed when ctx is
// done. Each Epoch's own Ctx is cancelled the instant leadership is lost,
// cancelling every leader-only task transitively.
func (e *Elector) WaitForLeadership(ctx context.Context) <-chan Epoch {
	out := make(chan Epoch)
	leaderCh := e.raft.LeaderCh()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				e.endCurrentEpoch()
				return
			case isLeader, ok := <-leaderCh:
				if !ok {
					e.endCurrentEpoch()
					return
				}
				if isLeader {
					epoch := e.startNewEpoch()
					log.WithComponent("election").Info().Uint64("epoch", epoch.Generation).Msg("acquired leadership")
					select {
					case out <- epoch:
					case <-ctx.Done():
						e.endCurrentEpoch()
						return
					}
				} else {
					log.WithComponent("election").Info().Msg("lost leadership")
					e.endCurrentEpoch()
				}
			}
		}
	}()

	return out
}

func (e *Elector) startNewEpoch() Epoch {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelCur != nil {
		e.cancelCur()
	}
	e.generation++
	epochCtx, cancel := context.WithCancel(context.Background())
	e.cancelCur = cancel
	return Epoch{Generation: e.generation, Ctx: epochCtx}
}

func (e *Elector) endCurrentEpoch() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelCur != nil {
		e.cancelCur()
		e.cancelCur = nil
	}
}

// Shutdown gracefully leaves the Raft group.
func (e *Elector) Shutdown() error {
	e.endCurrentEpoch()
	return e.raft.Shutdown().Error()
}
