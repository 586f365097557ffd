package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/builder"
)

const (
	defaultUpdateStatusTimeout = 5 * time.Second
	// maxStatusInfo bounds the diagnostic sent with a status report; the tail is kept.
	maxStatusInfo = 4096
)

// JobStatusClient is the part of the build server api the agent reports to.
type JobStatusClient interface {
	UpdateJobStatus(ctx context.Context, id uuid.UUID, update api.JobStatusUpdate) (*api.Job, error)
}

type StatusUpdater struct {
	client  JobStatusClient
	timeout time.Duration
}

func NewStatusUpdater(client JobStatusClient, timeout time.Duration) *StatusUpdater {
	if timeout <= 0 {
		timeout = defaultUpdateStatusTimeout
	}
	return &StatusUpdater{
		client:  client,
		timeout: timeout,
	}
}

// UpdateStatus reports update for job id. The call is bounded by the updater timeout and
// survives the cancellation of ctx, so a build killed on shutdown still gets its final status.
func (s *StatusUpdater) UpdateStatus(ctx context.Context, id uuid.UUID, update api.JobStatusUpdate) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.client.UpdateJobStatus(ctx, id, update)
	return err
}

// finalStatus turns the outcome of a build into the terminal report of its job.
func finalStatus(result builder.Result, runErr error) api.JobStatusUpdate {
	update := api.JobStatusUpdate{Status: api.JobStatusFailed}
	if result.CommitHash != "" {
		hash := result.CommitHash
		update.CommitHash = &hash
	}

	var info string
	switch {
	case runErr != nil:
		info = "build aborted: " + runErr.Error()
	case result.Outcome == builder.Succeeded:
		update.Status = api.JobStatusSucceeded
		info = result.Diagnostic
		exitCode := 0
		update.ExitCode = &exitCode
	case result.Outcome == builder.CloneFailed:
		info = "clone failed: " + result.Diagnostic
	default:
		info = result.Diagnostic
		exitCode := result.ExitCode
		update.ExitCode = &exitCode
	}

	if len(info) > maxStatusInfo {
		info = info[len(info)-maxStatusInfo:]
	}
	update.StatusInfo = &info
	return update
}
