package target

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const tempPrefix = ".tmp-"

// localTarget implements Target on a directory of the local filesystem.
type localTarget struct {
	root   string
	prefix string
	name   string
}

// newLocalTarget constructs a filesystem-backed Target rooted at
// cfg.Directory.
func newLocalTarget(cfg Config) (Target, error) {
	if cfg.Directory == "" {
		return nil, errors.New("local target requires a directory")
	}
	root, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolving directory: %w", err)
	}
	return &localTarget{
		root:   root,
		prefix: normalizePrefix(cfg.Prefix),
		name:   cfg.Name,
	}, nil
}

// NewLocalTarget returns a Target that stores objects under dir.
func NewLocalTarget(name, dir string) (Target, error) {
	return newLocalTarget(Config{Name: name, Type: "local", Directory: dir})
}

func (t *localTarget) Name() string {
	return t.name
}

// filePath maps a logical key to its path on disk.
func (t *localTarget) filePath(key string) (string, error) {
	full := path.Clean("/" + t.prefix + key)
	if strings.Contains(key, "..") || full == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(t.root, filepath.FromSlash(strings.TrimPrefix(full, "/"))), nil
}

// writeTemp writes data to a temporary file next to dst.
func writeTemp(dst string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), tempPrefix+"*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (t *localTarget) Put(_ context.Context, key string, data []byte, _ PutOptions) error {
	dst, err := t.filePath(key)
	if err != nil {
		return err
	}
	tmp, err := writeTemp(dst, data)
	if err != nil {
		return fmt.Errorf("local write %q: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("local rename %q: %w", key, err)
	}
	return nil
}

// PutIfAbsent links a fully written temp file into place; the link fails
// when the destination exists, so readers never see partial content.
func (t *localTarget) PutIfAbsent(_ context.Context, key string, data []byte, _ PutOptions) error {
	dst, err := t.filePath(key)
	if err != nil {
		return err
	}
	tmp, err := writeTemp(dst, data)
	if err != nil {
		return fmt.Errorf("local write %q: %w", key, err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("local link %q: %w", key, err)
	}
	return nil
}

func (t *localTarget) Get(_ context.Context, key string) ([]byte, error) {
	p, err := t.filePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("local read %q: %w", key, err)
	}
	return data, nil
}

func (t *localTarget) Exists(_ context.Context, key string) (bool, error) {
	p, err := t.filePath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("local stat %q: %w", key, err)
	}
	return !info.IsDir(), nil
}

func (t *localTarget) Delete(_ context.Context, key string) error {
	p, err := t.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local delete %q: %w", key, err)
	}
	return nil
}

func (t *localTarget) List(_ context.Context, prefix string) ([]string, error) {
	base := filepath.Join(t.root, filepath.FromSlash(t.prefix))
	var keys []string

	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(base, p)
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
		return nil, fmt.Errorf("local list prefix %q: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}
