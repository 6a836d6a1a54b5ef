package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	blackbox "reach/blackbox/internal/errors"
)

// FSBackend is a Backend rooted at a local directory. Writes are staged to
// a temp file in the destination directory and renamed into place, so a
// crash mid-write never leaves a partial evidence file visible to readers.
type FSBackend struct {
	root string
}

// NewFSBackend returns a Backend rooted at root, creating it if necessary.
func NewFSBackend(root string) (*FSBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, blackbox.Classify(err)
	}
	return &FSBackend{root: filepath.Clean(root)}, nil
}

func (b *FSBackend) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *FSBackend) PutBytes(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return blackbox.Classify(err)
	}
	full := b.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return blackbox.Classify(err)
	}
	if err := writeFileAtomic(full, data); err != nil {
		return blackbox.Classify(err)
	}
	return nil
}

func (b *FSBackend) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, blackbox.Classify(err)
	}
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if isNotExist(err) {
			return nil, notFound(key)
		}
		return nil, blackbox.Classify(err)
	}
	return data, nil
}

func (b *FSBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, blackbox.Classify(err)
	}
	_, err := os.Stat(b.path(key))
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, blackbox.Classify(err)
}

func (b *FSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if isNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, blackbox.Classify(err)
		}
		return nil, blackbox.Classify(err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *FSBackend) ListChildren(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return childrenFromKeys(keys, prefix), nil
}

// writeFileAtomic stages data in a temp file beside targetPath, fsyncs it,
// and renames it into place.
func writeFileAtomic(targetPath string, data []byte) (err error) {
	dir := filepath.Dir(targetPath)
	tmp, err := os.CreateTemp(dir, ".blackbox-write-*")
	if err != nil {
		return err
	}
	defer func() {
		closeErr := tmp.Close()
		if err == nil && closeErr != nil {
			err = closeErr
		}
		if removeErr := os.Remove(tmp.Name()); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) && err == nil {
			err = removeErr
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), targetPath); err != nil {
		return err
	}
	return nil
}
