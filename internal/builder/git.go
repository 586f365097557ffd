package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var (
	commitHashRegexp = regexp.MustCompile(`^[0-9a-f]{40}$`)

	ErrTargetExists = errors.New("clone target already exists")
)

// Git is the version control client used to fetch sources and inspect remotes.
type Git interface {
	// Clone clones url into dir. dir must not exist.
	Clone(ctx context.Context, url, dir string) error
	// Head returns the commit checked out in dir.
	Head(ctx context.Context, dir string) (string, error)
	// RemoteHead returns the commit HEAD points to on the remote, without cloning.
	RemoteHead(ctx context.Context, url string) (string, error)
}

// GitError carries the output of a failed git invocation.
type GitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

func (e *GitError) Unwrap() error {
	return e.Err
}

type gitCLI struct {
	binary string
}

// NewGit returns a Git backed by the git binary.
func NewGit(binary string) Git {
	if binary == "" {
		binary = "git"
	}
	return &gitCLI{binary: binary}
}

func (g *gitCLI) Clone(ctx context.Context, url, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrTargetExists, dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return pkgerrors.Wrap(err, "checking clone target")
	}
	_, err := g.run(ctx, "", "clone", "--quiet", "--", url, dir)
	return err
}

func (g *gitCLI) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return parseCommitHash(out)
}

func (g *gitCLI) RemoteHead(ctx context.Context, url string) (string, error) {
	out, err := g.run(ctx, "", "ls-remote", "--", url, "HEAD")
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("remote %s has no HEAD", url)
	}
	return parseCommitHash(fields[0])
}

func (g *gitCLI) run(ctx context.Context, dir string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// never wait for credentials on a terminal
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=true")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", &GitError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func parseCommitHash(s string) (string, error) {
	hash := strings.ToLower(strings.TrimSpace(s))
	if !commitHashRegexp.MatchString(hash) {
		return "", fmt.Errorf("invalid commit hash %q", s)
	}
	return hash, nil
}

// IsCommitHash reports whether s is a full 40 characters hex commit hash.
func IsCommitHash(s string) bool {
	return commitHashRegexp.MatchString(s)
}
