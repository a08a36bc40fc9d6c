package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ridgeline/foreman/pkg/api"
	"github.com/ridgeline/foreman/pkg/config"
	"github.com/ridgeline/foreman/pkg/executor"
	"github.com/ridgeline/foreman/pkg/log"
	"github.com/ridgeline/foreman/pkg/queue"
	"github.com/ridgeline/foreman/pkg/worker"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a worker agent that executes jobs assigned to it",
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.WorkerID == "" {
		return fmt.Errorf("FOREMAN_WORKER_ID is required for the agent role")
	}

	logger := log.WithComponent("main")

	// The Job Store's BoltDB file is opened by exactly one process, the
	// serve replica holding the scheduling lease. A worker reaches it only
	// through that replica's HTTP API, never by opening the file itself.
	jobs := api.NewClient(cfg.WorkerAPIAddr)

	rdb, err := queue.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	membership := queue.NewMembership(rdb)
	inbox := queue.NewInbox(rdb)

	exec, err := executor.New(cfg.WorkerContainerdAddr, cfg.WorkerContainerdNamespace)
	if err != nil {
		return fmt.Errorf("connect containerd: %w", err)
	}
	defer exec.Close()

	w := worker.New(cfg.WorkerID, jobs, inbox, membership, exec, cfg.HeartbeatTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("worker_id", cfg.WorkerID).Msg("foreman agent started")
	return w.Run(ctx)
}
