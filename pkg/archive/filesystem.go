package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend writes archived reports below a root directory. Metadata is
// stored next to each object as <key>.meta.json.
type FileBackend struct {
	rootDir string
}

// NewFileBackend creates the root directory if needed
func NewFileBackend(rootDir string) (*FileBackend, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileBackend{rootDir: rootDir}, nil
}

// Name implements Backend
func (b *FileBackend) Name() string {
	return "filesystem"
}

// Put implements Backend
func (b *FileBackend) Put(ctx context.Context, key string, data []byte, _ string, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(b.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta.json", meta, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}
