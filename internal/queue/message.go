package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/artifacts"
)

type Kind string

const (
	KindBuild    Kind = "build"
	KindArtifact Kind = "artifact"
)

var ErrInvalidMessage = errors.New("invalid message")

// BuildJob asks an agent to build a registered job.
type BuildJob struct {
	JobID         uuid.UUID `json:"job_id"`
	RepositoryURL string    `json:"repository_url"`
	CommitHash    *string   `json:"commit_hash"`
	Script        string    `json:"script,omitempty"`
}

// ArtifactJob carries the artifacts an agent stored for a successful build.
type ArtifactJob struct {
	JobID         uuid.UUID            `json:"job_id"`
	RepositoryURL string               `json:"repository_url"`
	CommitHash    string               `json:"commit_hash"`
	Artifacts     []artifacts.Artifact `json:"artifacts"`
}

// Message is the envelope put on the queues. Exactly one payload is set, the one named by Kind.
type Message struct {
	Kind     Kind         `json:"kind"`
	Build    *BuildJob    `json:"build,omitempty"`
	Artifact *ArtifactJob `json:"artifact,omitempty"`
}

func NewBuildMessage(job BuildJob) Message {
	return Message{Kind: KindBuild, Build: &job}
}

func NewArtifactMessage(job ArtifactJob) Message {
	return Message{Kind: KindArtifact, Artifact: &job}
}

func (m Message) Encode() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Decode parses body and rejects unknown kinds, unknown fields and envelopes whose payload
// does not match their kind.
func Decode(body []byte) (Message, error) {
	var m Message
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) validate() error {
	switch m.Kind {
	case KindBuild:
		if m.Build == nil || m.Artifact != nil {
			return fmt.Errorf("%w: build message without a build payload", ErrInvalidMessage)
		}
		if m.Build.JobID == uuid.Nil || m.Build.RepositoryURL == "" {
			return fmt.Errorf("%w: build message without job id or repository url", ErrInvalidMessage)
		}
	case KindArtifact:
		if m.Artifact == nil || m.Build != nil {
			return fmt.Errorf("%w: artifact message without an artifact payload", ErrInvalidMessage)
		}
		if m.Artifact.JobID == uuid.Nil || m.Artifact.CommitHash == "" {
			return fmt.Errorf("%w: artifact message without job id or commit hash", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// Handlers routes decoded messages to the function handling their kind.
// A process leaves nil the kinds it does not consume; such messages are rejected.
type Handlers struct {
	Build    func(ctx context.Context, job BuildJob) error
	Artifact func(ctx context.Context, job ArtifactJob) error
}

// Handle is a Handler.
func (h Handlers) Handle(ctx context.Context, body []byte) error {
	m, err := Decode(body)
	if err != nil {
		return err
	}

	switch m.Kind {
	case KindBuild:
		if h.Build != nil {
			return h.Build(ctx, *m.Build)
		}
	case KindArtifact:
		if h.Artifact != nil {
			return h.Artifact(ctx, *m.Artifact)
		}
	}
	return fmt.Errorf("%w: no handler for kind %q", ErrInvalidMessage, m.Kind)
}
