package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubev2v/build-orchestrator/internal/agent"
	"github.com/kubev2v/build-orchestrator/internal/artifacts"
	"github.com/kubev2v/build-orchestrator/internal/builder"
	"github.com/kubev2v/build-orchestrator/internal/client"
	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/queue"
	"github.com/kubev2v/build-orchestrator/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := NewAgentCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewAgentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "buildserver-agent",
		Short: "Consume build jobs and run them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}

			undo := log.Setup(cfg.Service.LogLevel)
			defer undo()

			zap.S().Infof("Using config: %s", cfg)
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	store, err := artifacts.NewStore(cfg.Artifacts)
	if err != nil {
		zap.S().Fatalw("initializing artifact store", "error", err)
	}
	collector, err := artifacts.NewCollector(store, cfg.Artifacts.Denylist)
	if err != nil {
		zap.S().Fatalw("initializing artifact collector", "error", err)
	}

	executor := builder.NewExecutor(builder.NewGit(cfg.Agent.GitBinary),
		builder.WithWorkRoot(cfg.Agent.WorkDir),
		builder.WithBuildCommand(cfg.Agent.BuildCommand),
		builder.WithCloneTimeout(cfg.Agent.CloneTimeout),
		builder.WithBuildTimeout(cfg.Agent.BuildTimeout),
		builder.WithGatherer(collector),
	)

	hostname, _ := os.Hostname()
	consumer := queue.NewConsumer(cfg.Queue.URL(),
		queue.WithReconnectDelay(cfg.Queue.ReconnectDelay),
		queue.WithConsumerTag("buildserver-agent@"+hostname))

	a := agent.New(cfg, consumer, executor,
		client.NewBuildServerClient(cfg.Agent.APIServer, cfg.Agent.StatusTimeout),
		queue.NewProducer(cfg.Queue.URL()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	listener, err := net.Listen("tcp", cfg.Agent.Address)
	if err != nil {
		zap.S().Fatalw("creating listener", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(ctx)
	})
	g.Go(func() error {
		return agent.NewServer(cfg.Agent.Address, listener, a).Run(ctx)
	})

	return g.Wait()
}
