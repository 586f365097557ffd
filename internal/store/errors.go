package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	// ErrInvalidTransition is returned when the requested status is not
	// reachable from the job's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCommitHashConflict is returned when a report carries a commit hash
	// different from the one already recorded for the job.
	ErrCommitHashConflict = errors.New("commit hash already set")
)
