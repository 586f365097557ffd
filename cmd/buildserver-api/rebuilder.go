package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubev2v/build-orchestrator/internal/builder"
	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/queue"
	"github.com/kubev2v/build-orchestrator/internal/rebuilder"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rebuilderCmd = &cobra.Command{
	Use:   "rebuilder",
	Short: "Register a new job for every repository whose remote moved",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		jobs := service.NewJobService(s, queue.NewProducer(cfg.Queue.URL()), cfg.Queue.Name, cfg.Service.ListLimit)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		return rebuilder.New(cfg.Rebuilder, jobs, builder.NewGit(cfg.Agent.GitBinary)).Run(ctx)
	},
}
