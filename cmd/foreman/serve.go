package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ridgeline/foreman/pkg/api"
	"github.com/ridgeline/foreman/pkg/config"
	"github.com/ridgeline/foreman/pkg/election"
	"github.com/ridgeline/foreman/pkg/log"
	"github.com/ridgeline/foreman/pkg/metrics"
	"github.com/ridgeline/foreman/pkg/queue"
	"github.com/ridgeline/foreman/pkg/reconciler"
	"github.com/ridgeline/foreman/pkg/scheduler"
	"github.com/ridgeline/foreman/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a scheduling replica (leader election, scheduler, reconciler, HTTP acceptor)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.WithComponent("main")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	rdb, err := queue.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	subLog := queue.NewSubmissionLog(rdb)
	if err := subLog.EnsureGroup(context.Background()); err != nil {
		return fmt.Errorf("ensure submission log group: %w", err)
	}
	membership := queue.NewMembership(rdb)
	inbox := queue.NewInbox(rdb)

	peers := make([]election.Peer, 0, len(cfg.RaftPeers))
	for _, p := range cfg.RaftPeers {
		peers = append(peers, election.Peer{ID: p, Addr: p})
	}
	elector, err := election.New(election.Config{
		NodeID:    cfg.RaftNodeID,
		BindAddr:  cfg.RaftBindAddr,
		DataDir:   cfg.DataDir,
		Bootstrap: cfg.RaftBootstrap,
		Peers:     peers,
	})
	if err != nil {
		return fmt.Errorf("start leader election: %w", err)
	}
	defer elector.Shutdown()

	httpServer := api.NewServer(store, subLog)

	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", true, "started")
	metrics.RegisterComponent("jobstore", true, "ready")
	metrics.RegisterComponent("submissionlog", true, "ready")

	collector := metrics.NewCollector(membership)
	collector.Start()
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return httpServer.ListenAndServe(gctx, cfg.HTTPAddr)
	})

	group.Go(func() error {
		runLeaderTasks(gctx, elector, store, subLog, membership, inbox, cfg)
		return nil
	})

	logger.Info().Str("http_addr", cfg.HTTPAddr).Str("node_id", cfg.RaftNodeID).Msg("foreman replica started")
	return group.Wait()
}

// runLeaderTasks watches for leadership acquisitions and runs the scheduler
// and reconciler loops for the lifetime of each epoch.
func runLeaderTasks(ctx context.Context, elector *election.Elector, store storage.Store, subLog *queue.SubmissionLog, membership *queue.Membership, inbox *queue.Inbox, cfg *config.Config) {
	logger := log.WithComponent("main")
	epochs := elector.WaitForLeadership(ctx)

	for epoch := range epochs {
		metrics.RaftLeader.Set(1)
		metrics.LeaderEpoch.Set(float64(epoch.Generation))

		sched := scheduler.New(store, subLog, membership, inbox, cfg.RaftNodeID)
		recon := reconciler.New(store, subLog, membership, cfg.HeartbeatTTL)

		go sched.Run(epoch.Ctx)
		go recon.Run(epoch.Ctx)

		go func(epochCtx context.Context) {
			<-epochCtx.Done()
			metrics.RaftLeader.Set(0)
			logger.Info().Msg("stepped down, leader-only tasks cancelled")
		}(epoch.Ctx)
	}
}
