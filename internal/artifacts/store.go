package artifacts

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrNotFound = errors.New("artifact not found")

// Store keeps artifact bytes under keys of the form <commit_hash>/<file>.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string, w io.Writer) error
}

// Artifact is a build output that has been copied to a Store.
type Artifact struct {
	FileName string `json:"artifact_file_name"`
	Path     string `json:"artifact_path"`
}

// Key returns the store key of file for commitHash.
func Key(commitHash, file string) string {
	return path.Join(commitHash, file)
}

func validKey(key string) error {
	cleaned := path.Clean(key)
	if key == "" || cleaned != key || strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "..") {
		return errors.New("invalid artifact key: " + key)
	}
	return nil
}
