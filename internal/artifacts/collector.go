package artifacts

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

// Collector copies the build outputs of a working tree to a Store.
type Collector struct {
	store    Store
	denylist *regexp.Regexp
}

// NewCollector returns a collector skipping the files whose name matches denylist.
func NewCollector(store Store, denylist string) (*Collector, error) {
	re, err := regexp.Compile(denylist)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact denylist: %w", err)
	}
	return &Collector{store: store, denylist: re}, nil
}

// IsArtifact reports whether a file with this base name is a build output.
func (c *Collector) IsArtifact(name string) bool {
	return !c.denylist.MatchString(name)
}

// Gather walks dir, skipping .git, and stores every regular file that is not denylisted
// under <commitHash>/<path relative to dir>.
func (c *Collector) Gather(ctx context.Context, dir, commitHash string) ([]Artifact, error) {
	log := zap.S().Named("artifacts").With("commit_hash", commitHash)
	var gathered []Artifact

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.IsArtifact(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		key := Key(commitHash, name)

		if err := c.put(ctx, p, key); err != nil {
			return fmt.Errorf("storing artifact %s: %w", name, err)
		}
		log.Debugw("artifact stored", "file", name, "key", key)
		gathered = append(gathered, Artifact{FileName: name, Path: key})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infow("artifacts gathered", "count", len(gathered))
	return gathered, nil
}

func (c *Collector) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	return c.store.Put(ctx, key, f, fi.Size())
}
