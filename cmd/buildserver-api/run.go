package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/kubev2v/build-orchestrator/internal/api_server"
	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/queue"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/pkg/log"
	"github.com/kubev2v/build-orchestrator/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// artifactConsumers bounds the artifact messages recorded at the same time.
const artifactConsumers = 4

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the build server api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()

		zap.S().Info("Starting API service...")
		defer zap.S().Info("API service stopped")
		zap.S().Infof("Using config: %s", cfg)

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		producer := queue.NewProducer(cfg.Queue.URL())
		services := apiserver.NewServices(cfg, s, producer)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				return err
			}
			return apiserver.New(cfg, services, listener).Run(ctx)
		})

		g.Go(func() error {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return err
			}
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(ctx)
		})

		g.Go(func() error {
			consumer := queue.NewConsumer(cfg.Queue.URL(),
				queue.WithReconnectDelay(cfg.Queue.ReconnectDelay),
				queue.WithConsumerTag("buildserver-api"))
			return apiserver.NewArtifactConsumer(consumer, cfg.Queue.ArtifactQueue, services.Artifacts, artifactConsumers).Run(ctx)
		})

		if err := g.Wait(); err != nil {
			zap.S().Errorw("api service failed", "error", err)
			return err
		}
		return nil
	},
}
