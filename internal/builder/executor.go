package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/artifacts"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
	"github.com/kubev2v/build-orchestrator/pkg/repourl"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultCloneTimeout = 5 * time.Minute
	defaultBuildTimeout = 30 * time.Minute
	outputWaitDelay     = 5 * time.Second
)

type Outcome int

const (
	Succeeded Outcome = iota
	CloneFailed
	BuildFailed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case CloneFailed:
		return "clone_failed"
	case BuildFailed:
		return "build_failed"
	default:
		return "unknown"
	}
}

// Job is what the executor needs to know about a build.
type Job struct {
	ID            uuid.UUID
	RepositoryURL string
	// Script overrides the executor's build command when set.
	Script string
}

// Result is the expected outcome of a build. Unexpected faults are returned as errors instead.
type Result struct {
	Outcome Outcome
	// CommitHash is the HEAD of the cloned tree. Empty when the clone failed.
	CommitHash string
	ExitCode   int
	// Diagnostic is the clone error or the tail of the build output.
	Diagnostic string
	Artifacts  []artifacts.Artifact
	Duration   time.Duration
}

// Gatherer copies the outputs of a successful build before its working directory is removed.
type Gatherer interface {
	Gather(ctx context.Context, dir, commitHash string) ([]artifacts.Artifact, error)
}

type ExecutorOption func(e *Executor)

func WithWorkRoot(dir string) ExecutorOption {
	return func(e *Executor) {
		e.workRoot = dir
	}
}

func WithBuildCommand(cmd string) ExecutorOption {
	return func(e *Executor) {
		e.buildCmd = cmd
	}
}

func WithCloneTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.cloneTimeout = d
	}
}

func WithBuildTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.buildTimeout = d
	}
}

func WithGatherer(g Gatherer) ExecutorOption {
	return func(e *Executor) {
		e.gatherer = g
	}
}

// Executor clones a repository into a fresh directory, builds it and removes the directory.
type Executor struct {
	git          Git
	gatherer     Gatherer
	workRoot     string
	buildCmd     string
	cloneTimeout time.Duration
	buildTimeout time.Duration
}

func NewExecutor(git Git, opts ...ExecutorOption) *Executor {
	e := &Executor{
		git:          git,
		buildCmd:     "make",
		cloneTimeout: defaultCloneTimeout,
		buildTimeout: defaultBuildTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) Run(ctx context.Context, job Job) (Result, error) {
	log := zap.S().Named("builder").With("job_id", job.ID, "repository_url", job.RepositoryURL)
	start := time.Now()

	result, err := e.run(ctx, job, log)
	result.Duration = time.Since(start)
	if err != nil {
		log.Errorw("build aborted", "error", err)
		return result, err
	}

	metrics.ObserveBuildDuration(result.Outcome.String(), result.Duration.Seconds())
	log.Infow("build finished", "outcome", result.Outcome, "commit_hash", result.CommitHash, "exit_code", result.ExitCode, "duration", result.Duration)
	return result, nil
}

func (e *Executor) run(ctx context.Context, job Job, log *zap.SugaredLogger) (Result, error) {
	repo, err := repourl.Parse(job.RepositoryURL)
	if err != nil {
		return Result{Outcome: CloneFailed, ExitCode: -1, Diagnostic: err.Error()}, nil
	}

	workDir, err := os.MkdirTemp(e.workRoot, fmt.Sprintf("job_%s_", job.ID))
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "creating working directory")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Errorw("failed to remove working directory", "dir", workDir, "error", err)
		}
	}()
	repoDir := filepath.Join(workDir, repo.Name)

	log.Infow("cloning", "dir", repoDir)
	cloneCtx, cancel := context.WithTimeout(ctx, e.cloneTimeout)
	err = e.git.Clone(cloneCtx, job.RepositoryURL, repoDir)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, pkgerrors.Wrap(ctx.Err(), "clone interrupted")
		}
		return Result{Outcome: CloneFailed, ExitCode: -1, Diagnostic: err.Error()}, nil
	}

	hash, err := e.git.Head(ctx, repoDir)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, pkgerrors.Wrap(ctx.Err(), "reading HEAD interrupted")
		}
		return Result{Outcome: CloneFailed, ExitCode: -1, Diagnostic: err.Error()}, nil
	}
	log = log.With("commit_hash", hash)

	script := job.Script
	if strings.TrimSpace(script) == "" {
		script = e.buildCmd
	}
	if strings.TrimSpace(script) == "" {
		log.Info("empty build script, nothing to build")
		return e.succeed(ctx, repoDir, hash, log), nil
	}

	exitCode, output, err := e.build(ctx, repoDir, script, log)
	if err != nil {
		return Result{CommitHash: hash}, err
	}
	if exitCode != 0 {
		return Result{Outcome: BuildFailed, CommitHash: hash, ExitCode: exitCode, Diagnostic: output}, nil
	}

	result := e.succeed(ctx, repoDir, hash, log)
	result.Diagnostic = output
	return result, nil
}

// succeed gathers the artifacts of a successful build. A failing gatherer does not fail the build.
func (e *Executor) succeed(ctx context.Context, repoDir, hash string, log *zap.SugaredLogger) Result {
	result := Result{Outcome: Succeeded, CommitHash: hash}
	if e.gatherer == nil {
		return result
	}

	gathered, err := e.gatherer.Gather(ctx, repoDir, hash)
	if err != nil {
		log.Errorw("failed to gather artifacts", "error", err)
		return result
	}
	result.Artifacts = gathered
	return result
}

// build runs script with sh in dir. A non zero exit code, including the one of a build killed on
// timeout, is returned with a nil error; the error is reserved for a build that could not run.
func (e *Executor) build(ctx context.Context, dir, script string, log *zap.SugaredLogger) (int, string, error) {
	buildCtx, cancel := context.WithTimeout(ctx, e.buildTimeout)
	defer cancel()

	cmd := exec.CommandContext(buildCtx, "sh", "-c", script)
	cmd.Dir = dir
	cmd.WaitDelay = outputWaitDelay
	setProcessGroup(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	t := newTail(tailLines)
	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		stream(pr, log.Named("output"), t)
	}()

	log.Infow("building", "script", script)
	err := cmd.Run()
	_ = pw.Close()
	<-streamed

	if err == nil {
		return 0, t.String(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		log.Warn("build exited but left processes holding its output open")
		return 0, t.String(), nil
	}

	if ctx.Err() != nil {
		return -1, t.String(), pkgerrors.Wrap(ctx.Err(), "build interrupted")
	}
	if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
		return -1, fmt.Sprintf("build timed out after %s\n%s", e.buildTimeout, t.String()), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), t.String(), nil
	}
	return -1, t.String(), pkgerrors.Wrap(err, "running build")
}
