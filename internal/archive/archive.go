// Package archive compresses finished capture logs with zstd.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Ext is the suffix appended to archived logs.
const Ext = ".zst"

// Archive compresses srcPath into dir/<base>.zst and returns the archive path.
func Archive(srcPath, dir string) (string, error) {
	base := filepath.Base(srcPath)
	if base == "" || base == "." || strings.HasSuffix(base, Ext) {
		return "", fmt.Errorf("cannot archive %s", srcPath)
	}
	if dir == "" {
		dir = filepath.Dir(srcPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	destPath := Path(base, dir)

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer dest.Close()

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := io.Copy(encoder, src); err != nil {
		encoder.Close()
		return "", fmt.Errorf("compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}
	if err := dest.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return destPath, nil
}

// Path returns the archive path for a log file name.
func Path(base, dir string) string {
	return filepath.Join(dir, base+Ext)
}

// IsArchive reports whether path names a compressed log.
func IsArchive(path string) bool {
	return strings.HasSuffix(path, Ext)
}

// Open returns a reader over the log at path, decompressing archives.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	if !IsArchive(path) {
		return file, nil
	}
	decoder, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &decodingReader{decoder: decoder, file: file}, nil
}

type decodingReader struct {
	decoder *zstd.Decoder
	file    *os.File
}

func (r *decodingReader) Read(p []byte) (int, error) {
	return r.decoder.Read(p)
}

func (r *decodingReader) Close() error {
	r.decoder.Close()
	return r.file.Close()
}
