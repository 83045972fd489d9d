package buffer

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileBuffer is a file on disk
type FileBuffer struct {
	path string
}

// NewFileBuffer creates a buffer for path. The file need not exist yet.
func NewFileBuffer(path string) *FileBuffer {
	return &FileBuffer{path: path}
}

func (b *FileBuffer) Name() string {
	return b.path
}

func (b *FileBuffer) ReadCurrentText() (string, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", b.path, err)
	}
	return string(data), nil
}

// WriteText replaces the file atomically, keeping its permissions
func (b *FileBuffer) WriteText(text string) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(b.path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Atomic write: write to temp file then rename to prevent corruption
	tmpPath := b.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(text), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", b.path, err)
	}
	return nil
}
