package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cesmii/profiledesigner/model"
	"github.com/cesmii/profiledesigner/nodeset"
)

// FileBackend stores one document per model URI and scope under a
// directory tree. The file name does not carry the version, so storing a
// newer publication replaces the older file.
type FileBackend struct {
	dir string
}

// NewFileBackend returns a backend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Path returns the file a model URI is stored in for scope.
func (b *FileBackend) Path(uri string, scope Scope) string {
	return filepath.Join(b.dir, scope.String(), FileName(uri))
}

// FileName maps a model URI to its cache file name: the scheme is removed,
// separators become dots and ".NodeSet2.xml" is appended.
func FileName(uri string) string {
	name := uri
	if _, rest, ok := strings.Cut(name, "://"); ok {
		name = rest
	} else {
		name = strings.TrimPrefix(name, "urn:")
	}
	name = strings.NewReplacer("/", ".", ":", ".", "\\", ".").Replace(name)
	name = strings.Trim(name, ".")
	return name + ".NodeSet2.xml"
}

// Newest implements Backend.
func (b *FileBackend) Newest(ctx context.Context, uri string, scopes []Scope) (*Entry, error) {
	var entries []*Entry
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := b.entry(uri, scope)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return newestOf(entries), nil
}

func (b *FileBackend) entry(uri string, scope Scope) (*Entry, error) {
	path := b.Path(uri, scope)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open cached file: %w", err)
	}
	defer f.Close()

	table, err := nodeset.ReadModelHeader(f)
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	for _, m := range table.Model {
		if m.ModelUriAttr != uri {
			continue
		}
		id, err := model.IdentityFromEntry(m)
		if err != nil {
			return nil, err
		}
		id.CacheKey = path
		return &Entry{Identity: id, Scope: scope, Key: path}, nil
	}
	return nil, nil
}

// Put implements Backend. The file is written to a temporary name and
// renamed into place.
func (b *FileBackend) Put(ctx context.Context, id model.ModelIdentity, scope Scope, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := b.Path(id.ModelURI, scope)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create scope dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".nodeset-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move cached file: %w", err)
	}
	return path, nil
}

// Read implements Backend.
func (b *FileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	return data, err
}

// Delete implements Backend.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Flush implements Backend. Files are complete once Put returns.
func (b *FileBackend) Flush(context.Context) error { return nil }
