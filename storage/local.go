package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage keeps files under a base directory on the local filesystem.
type LocalStorage struct {
	base string
}

func NewLocalStorage(base string) *LocalStorage {
	return &LocalStorage{base: base}
}

func (l *LocalStorage) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	fullPath := filepath.Join(l.base, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	return file, nil
}

func (l *LocalStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(l.base, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return file, nil
}

func (l *LocalStorage) Delete(ctx context.Context, name string) error {
	if err := os.Remove(filepath.Join(l.base, filepath.FromSlash(name))); err != nil {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(l.base, filepath.FromSlash(prefix))
	var files []string

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(l.base, p)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing files: %w", err)
	}

	return files, nil
}
