package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/builder"
	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/queue"
	"github.com/kubev2v/build-orchestrator/pkg/requestid"
	"go.uber.org/zap"
)

// This variable is set during build time.
// It contains the version of the code.
var version string

// Executor builds one job.
type Executor interface {
	Run(ctx context.Context, job builder.Job) (builder.Result, error)
}

// Consumer delivers the bodies of the build queue to a handler.
type Consumer interface {
	Start(ctx context.Context, queue string, handler queue.Handler, maxInFlight int) error
	Stop()
}

// Publisher sends the artifacts of successful builds back to the api.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Agent consumes build jobs and runs each of them on its worker pool.
type Agent struct {
	cfg       *config.Config
	consumer  Consumer
	executor  Executor
	status    *StatusUpdater
	publisher Publisher
	pool      *Pool
	active    *activeJobs
	log       *zap.SugaredLogger

	// builds run under buildCtx so that stopping the consumer never kills them
	buildCtx     context.Context
	cancelBuilds context.CancelFunc
}

func New(cfg *config.Config, consumer Consumer, executor Executor, statusClient JobStatusClient, publisher Publisher) *Agent {
	buildCtx, cancel := context.WithCancel(context.Background())
	return &Agent{
		cfg:          cfg,
		consumer:     consumer,
		executor:     executor,
		status:       NewStatusUpdater(statusClient, cfg.Agent.StatusTimeout),
		publisher:    publisher,
		pool:         NewPool(cfg.Agent.MaxWorkers),
		active:       newActiveJobs(),
		log:          zap.S().Named("agent"),
		buildCtx:     buildCtx,
		cancelBuilds: cancel,
	}
}

// ActiveJobs returns the ids of the jobs being built, sorted.
func (a *Agent) ActiveJobs() []uuid.UUID {
	return a.active.list(false)
}

// AbandonedJobs returns the ids of the jobs whose status could not be reported, sorted.
// Their recorded status is stale.
func (a *Agent) AbandonedJobs() []uuid.UUID {
	return a.active.list(true)
}

// Run consumes the build queue until ctx is done, then shuts the agent down. The consumer
// stops taking deliveries first and keeps its channel open until the running builds are
// acked; builds get the shutdown timeout to finish and are cancelled past it.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Infow("starting agent", "version", version, "queue", a.cfg.Queue.Name, "max_workers", a.cfg.Agent.MaxWorkers)
	defer a.log.Info("agent stopped")

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.consumer.Start(context.WithoutCancel(ctx), a.cfg.Queue.Name, a.Handle, a.cfg.Agent.MaxWorkers)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.shutdown()
		return err
	}

	a.log.Info("stopping agent...")
	a.consumer.Stop()
	a.shutdown()
	return <-errCh
}

func (a *Agent) shutdown() {
	a.pool.Close()

	done := make(chan struct{})
	go func() {
		a.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(a.cfg.Agent.ShutdownTimeout):
		a.log.Warnw("builds still running after shutdown timeout, cancelling them", "timeout", a.cfg.Agent.ShutdownTimeout, "jobs", a.ActiveJobs())
		a.cancelBuilds()
		<-done
	}
	a.cancelBuilds()
}

// Handle is the queue handler of the agent. It returns once the build of the message is done.
func (a *Agent) Handle(ctx context.Context, body []byte) error {
	return queue.Handlers{Build: a.handleBuild}.Handle(ctx, body)
}

func (a *Agent) handleBuild(ctx context.Context, job queue.BuildJob) error {
	err := a.pool.Submit(ctx, func() {
		a.build(job)
	})
	if err != nil {
		// never started, hand it to another agent
		a.log.Infow("job not started, requeueing", "job_id", job.JobID, "reason", err)
		return queue.ErrRequeue
	}
	return nil
}

// build runs a job end to end. A job whose RUNNING report fails is abandoned without building.
func (a *Agent) build(job queue.BuildJob) {
	ctx := requestid.ToContext(a.buildCtx, requestid.Generate())
	log := a.log.With("job_id", job.JobID, "repository_url", job.RepositoryURL, "request_id", requestid.FromContext(ctx))

	a.active.add(job.JobID)
	reported := false
	defer func() {
		if reported {
			a.active.remove(job.JobID)
		} else {
			a.active.abandon(job.JobID)
		}
	}()

	if err := a.status.UpdateStatus(ctx, job.JobID, api.JobStatusUpdate{Status: api.JobStatusRunning}); err != nil {
		log.Errorw("failed to report job as running, abandoning it", "error", err)
		return
	}

	result, runErr := a.executor.Run(ctx, builder.Job{
		ID:            job.JobID,
		RepositoryURL: job.RepositoryURL,
		Script:        job.Script,
	})

	update := finalStatus(result, runErr)
	if err := a.status.UpdateStatus(ctx, job.JobID, update); err != nil {
		log.Errorw("failed to report final job status, abandoning it", "status", update.Status, "error", err)
		return
	}
	reported = true
	log.Infow("job finished", "status", update.Status, "commit_hash", result.CommitHash)

	if update.Status == api.JobStatusSucceeded && len(result.Artifacts) > 0 {
		if err := a.publishArtifacts(ctx, job, result); err != nil {
			log.Errorw("failed to publish artifacts", "count", len(result.Artifacts), "error", err)
		}
	}
}

func (a *Agent) publishArtifacts(ctx context.Context, job queue.BuildJob, result builder.Result) error {
	body, err := queue.NewArtifactMessage(queue.ArtifactJob{
		JobID:         job.JobID,
		RepositoryURL: job.RepositoryURL,
		CommitHash:    result.CommitHash,
		Artifacts:     result.Artifacts,
	}).Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.status.timeout)
	defer cancel()
	if err := a.publisher.Publish(ctx, a.cfg.Queue.ArtifactQueue, body); err != nil {
		return fmt.Errorf("publishing artifact message: %w", err)
	}
	return nil
}
