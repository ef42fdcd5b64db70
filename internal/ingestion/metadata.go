package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// FileMetadata describes one consumed input file.
type FileMetadata struct {
	Source     string `json:"source"`
	Path       string `json:"path"`                 // relative to the catalog root
	ObservedAt string `json:"observed_at"`          // modification time, RFC3339 UTC
	Hash       string `json:"hash"`                 // SHA256 hex digest of the file bytes
	Records    int    `json:"records"`              // records emitted
	Rejected   int    `json:"rejected,omitempty"`   // records dropped with an InputFormatError
	Adapter    string `json:"adapter,omitempty"`    // adapter type that read the file
	Size       int64  `json:"size_bytes,omitempty"` // file size
}

// NewFileMetadata stats and hashes the file at absPath. The modification time stands in for
// the observation time so reruns over unchanged inputs stay byte-identical.
func NewFileMetadata(source, absPath, relPath string) (*FileMetadata, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", relPath, err)
	}
	hash, err := computeHash(absPath)
	if err != nil {
		return nil, err
	}
	return &FileMetadata{
		Source:     source,
		Path:       relPath,
		ObservedAt: info.ModTime().UTC().Format(time.RFC3339),
		Hash:       hash,
		Size:       info.Size(),
	}, nil
}

// computeHash computes the SHA256 hash of a file and returns the hex string
func computeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
