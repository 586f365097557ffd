package rebuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// Jobs is the part of the job service the rebuilder reads and registers through.
type Jobs interface {
	LatestByRepository(ctx context.Context) (model.JobList, error)
	HasActiveJob(ctx context.Context, url string) (bool, error)
	Register(ctx context.Context, url, script, trigger string) (*model.Job, error)
}

// RemoteHead reads the commit a remote HEAD points to. builder.Git satisfies it.
type RemoteHead interface {
	RemoteHead(ctx context.Context, url string) (string, error)
}

// Rebuilder periodically registers a new job for every repository whose remote moved
// past the commit of its last finished job.
type Rebuilder struct {
	jobs     Jobs
	git      RemoteHead
	sleepFor time.Duration
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func New(cfg *config.RebuilderConfig, jobs Jobs, git RemoteHead) *Rebuilder {
	return &Rebuilder{
		jobs:     jobs,
		git:      git,
		sleepFor: cfg.SleepFor,
		timeout:  cfg.Timeout,
		log:      zap.S().Named("rebuilder"),
	}
}

// Run waits a period, checks, and repeats until ctx is done.
// A failed or timed out pass is logged and the next one happens as usual.
func (r *Rebuilder) Run(ctx context.Context) error {
	r.log.Infow("starting rebuilder", "sleep_for", r.sleepFor, "timeout", r.timeout)
	ticker := jitterbug.New(r.sleepFor, &jitterbug.Norm{Stdev: r.sleepFor / 100, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("rebuilder stopped")
			return nil
		case <-ticker.C:
		}
		r.pass(ctx)
	}
}

func (r *Rebuilder) pass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	registered, err := r.Check(ctx)
	switch {
	case err == nil:
		metrics.IncreaseRebuilderPassesMetric(metrics.PassCompleted)
		r.log.Infow("check pass done", "registered", registered, "duration", time.Since(start))
	case errors.Is(err, context.DeadlineExceeded):
		metrics.IncreaseRebuilderPassesMetric(metrics.PassTimedOut)
		r.log.Errorw("check pass timed out", "registered", registered, "timeout", r.timeout)
	default:
		metrics.IncreaseRebuilderPassesMetric(metrics.PassFailed)
		r.log.Errorw("check pass failed", "registered", registered, "error", err)
	}
}

// Check runs a single pass and returns how many jobs it registered.
// An unreachable remote only skips its repository; the pass fails on store errors
// and when ctx is done.
func (r *Rebuilder) Check(ctx context.Context) (int, error) {
	latest, err := r.jobs.LatestByRepository(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing latest jobs: %w", err)
	}

	registered := 0
	for _, job := range latest {
		if err := ctx.Err(); err != nil {
			return registered, err
		}
		log := r.log.With("repository_url", job.RepositoryURL, "job_id", job.ID)

		// a job that failed to clone has nothing to compare against
		if job.CommitHash == nil {
			log.Debug("no recorded commit, skipping")
			continue
		}

		active, err := r.jobs.HasActiveJob(ctx, job.RepositoryURL)
		if err != nil {
			return registered, fmt.Errorf("looking up active jobs of %s: %w", job.RepositoryURL, err)
		}
		if active {
			log.Debug("repository has a job in progress, skipping")
			continue
		}

		remote, err := r.git.RemoteHead(ctx, job.RepositoryURL)
		if err != nil {
			if ctx.Err() != nil {
				return registered, ctx.Err()
			}
			log.Warnw("failed to read remote head", "error", err)
			continue
		}
		if remote == *job.CommitHash {
			continue
		}

		newJob, err := r.jobs.Register(ctx, job.RepositoryURL, job.Script, metrics.TriggerRebuilder)
		if err != nil {
			if ctx.Err() != nil {
				return registered, ctx.Err()
			}
			log.Errorw("failed to register rebuild", "error", err)
			continue
		}
		registered++
		metrics.IncreaseRebuildsTriggeredMetric()
		log.Infow("remote moved, rebuild registered", "recorded_commit", *job.CommitHash, "remote_commit", remote, "new_job_id", newJob.ID)
	}

	return registered, nil
}
