package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// compressText brotli-encodes text for a BLOB column. Empty text stays empty.
func compressText(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := io.WriteString(w, text); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return "", fmt.Errorf("failed to decompress: %w", err)
	}
	return string(out), nil
}
