package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/posadmin/posadmin/cmd/posadminctl/cli"
	"github.com/posadmin/posadmin/internal/app"
	"github.com/posadmin/posadmin/internal/platform/db"
	"github.com/posadmin/posadmin/jobs"
)

// queueOps joins the queue client and inspector behind cli.JobOps.
type queueOps struct {
	*jobs.Client
	inspector *asynq.Inspector
}

func (q queueOps) Stats() ([]jobs.QueueStats, error) {
	return jobs.Stats(q.inspector)
}

func load(ctx context.Context) (*cli.Env, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	services := app.NewServices(cfg, pool, logger)
	inspector := asynq.NewInspector(cfg.RedisOpts())

	release := func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
		if err := services.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
		pool.Close()
	}
	return &cli.Env{
		Suppliers: services.Suppliers,
		Jobs:      queueOps{Client: services.Queue, inspector: inspector},
	}, release, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(load)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
