package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type fsStore struct {
	root string
}

// NewFSStore stores artifacts as plain files below root.
func NewFSStore(root string) (Store, error) {
	if root == "" {
		return nil, errors.New("artifact repository root is not set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact repository root: %w", err)
	}
	return &fsStore{root: root}, nil
}

func (s *fsStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	if err := validKey(key); err != nil {
		return err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o754); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *fsStore) Get(ctx context.Context, key string, w io.Writer) error {
	if err := validKey(key); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, &ctxReader{ctx: ctx, r: f})
	return err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
