package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrInvalidRepositoryURL struct {
	error
}

func NewErrInvalidRepositoryURL(url string, reason error) *ErrInvalidRepositoryURL {
	return &ErrInvalidRepositoryURL{fmt.Errorf("invalid repository url %q: %v", url, reason)}
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

type ErrInvalidStatusTransition struct {
	error
}

func NewErrInvalidStatusTransition(id uuid.UUID, status string) *ErrInvalidStatusTransition {
	return &ErrInvalidStatusTransition{fmt.Errorf("job %s cannot move to status %s", id, status)}
}

type ErrCommitHashConflict struct {
	error
}

func NewErrCommitHashConflict(id uuid.UUID, hash string) *ErrCommitHashConflict {
	return &ErrCommitHashConflict{fmt.Errorf("job %s already has a commit hash different from %s", id, hash)}
}

type ErrInvalidCommitHash struct {
	error
}

func NewErrInvalidCommitHash(hash string) *ErrInvalidCommitHash {
	return &ErrInvalidCommitHash{fmt.Errorf("invalid commit hash %q", hash)}
}

type ErrArtifactWithoutBuild struct {
	error
}

func NewErrArtifactWithoutBuild(id uuid.UUID) *ErrArtifactWithoutBuild {
	return &ErrArtifactWithoutBuild{fmt.Errorf("job %s has no successful build to attach artifacts to", id)}
}

type ErrInvalidArtifact struct {
	error
}

func NewErrInvalidArtifact(message string) *ErrInvalidArtifact {
	return &ErrInvalidArtifact{fmt.Errorf("invalid artifact: %s", message)}
}
