package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FilesystemBackend stores virtual paths as files under a root
// directory. Suitable for single-node deployments.
type FilesystemBackend struct {
	rootDir string
	logger  *zap.Logger
}

// NewFilesystemBackend creates a filesystem backend rooted at rootDir,
// creating the directory if needed.
func NewFilesystemBackend(rootDir string, logger *zap.Logger) (*FilesystemBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("create backend root: %w", err)
	}
	return &FilesystemBackend{
		rootDir: rootDir,
		logger:  logger.With(zap.String("component", "fs_backend")),
	}, nil
}

// resolve maps a virtual slash path onto the root directory, rejecting
// escapes above the root.
func (b *FilesystemBackend) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	if clean == "/" {
		return "", fmt.Errorf("invalid backend path %q", path)
	}
	return filepath.Join(b.rootDir, filepath.FromSlash(clean)), nil
}

func (b *FilesystemBackend) Read(ctx context.Context, path string) (string, error) {
	full, err := b.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write stores data atomically: write to a temp file then rename, so a
// crash mid-write never leaves a truncated file behind.
func (b *FilesystemBackend) Write(ctx context.Context, path string, data string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}

	tempPath := full + ".tmp"
	if err := os.WriteFile(tempPath, []byte(data), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tempPath, full); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func (b *FilesystemBackend) Exists(ctx context.Context, path string) (bool, error) {
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

var _ Backend = (*FilesystemBackend)(nil)
