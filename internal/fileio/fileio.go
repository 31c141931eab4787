package fileio

import (
	"fmt"
	"os"
	"path"
)

// Writer stores generated result images under a root directory.
type Writer struct {
	rootDir string
}

func NewWriter(rootDir string) *Writer {
	return &Writer{rootDir: rootDir}
}

// PathFor returns the full path for the provided file name.
func (w *Writer) PathFor(name string) string {
	return path.Join(w.rootDir, name)
}

// WriteResult writes the result image and returns its reference path.
func (w *Writer) WriteResult(name string, data []byte) (string, error) {
	if err := os.MkdirAll(w.rootDir, 0755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}

	fullPath := w.PathFor(name)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing result image: %w", err)
	}
	return fullPath, nil
}

// Reader reads source images referenced by path.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) ReadFile(filePath string) ([]byte, error) {
	return os.ReadFile(filePath)
}
