package apiserver

import (
	"context"

	"github.com/kubev2v/build-orchestrator/internal/queue"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"go.uber.org/zap"
)

// ArtifactConsumer records the artifacts agents publish after a successful build.
type ArtifactConsumer struct {
	consumer    *queue.Consumer
	queue       string
	artifacts   *service.ArtifactService
	maxInFlight int
}

func NewArtifactConsumer(consumer *queue.Consumer, queueName string, artifacts *service.ArtifactService, maxInFlight int) *ArtifactConsumer {
	return &ArtifactConsumer{
		consumer:    consumer,
		queue:       queueName,
		artifacts:   artifacts,
		maxInFlight: maxInFlight,
	}
}

// Run blocks until ctx is done.
func (a *ArtifactConsumer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.consumer.Stop()
	}()

	zap.S().Named("artifact_consumer").Infow("recording artifacts", "queue", a.queue)
	handlers := queue.Handlers{Artifact: a.artifacts.HandleArtifactJob}
	return a.consumer.Start(ctx, a.queue, handlers.Handle, a.maxInFlight)
}
