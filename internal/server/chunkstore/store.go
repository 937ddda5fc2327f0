// Package chunkstore implements the content-addressable chunk store: numbered
// chunk blobs under a session-scoped temporary directory, merged into a final
// contiguous blob and digested with bounded memory.
package chunkstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"sharefile/internal/common"
	"sharefile/internal/filex"
)

// copyBufferSize bounds memory during merge and digest so peak usage is
// independent of file size.
const copyBufferSize = 1024 * 1024

// Store lays files out under root as:
//
//	<root>/uploads/tmp/<sessionID>/chunk_00000000.part
//	<root>/files/<fileID>/data
//
// Chunk files are named by zero-padded index so lexicographic order equals
// numeric order and the temp directory stays self-describing.
type Store struct {
	root string
}

// New constructs a Store rooted at root, creating the base directories.
func New(root string) (*Store, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(filepath.Join(abs, "uploads", "tmp")); err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(filepath.Join(abs, "files")); err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// SessionDir returns the temp directory for a session's chunks.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, "uploads", "tmp", sessionID)
}

// ChunkPath returns the path of one chunk file.
func (s *Store) ChunkPath(sessionID string, index int) string {
	return filepath.Join(s.SessionDir(sessionID), fmt.Sprintf("chunk_%08d.part", index))
}

// FinalPath returns the permanent location of a file's merged blob.
func (s *Store) FinalPath(fileID string) string {
	return filepath.Join(s.root, "files", fileID, "data")
}

// WriteChunk writes one chunk under the session temp directory and returns
// its path. Overwrites are safe: a retried write of the same index simply
// replaces the previous bytes.
func (s *Store) WriteChunk(ctx context.Context, sessionID string, index int, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := filex.EnsureDir(s.SessionDir(sessionID)); err != nil {
		return "", err
	}
	path := s.ChunkPath(sessionID, index)
	if err := os.WriteFile(path, data, 0o660); err != nil {
		return "", fmt.Errorf("write chunk %d: %w", index, err)
	}
	return path, nil
}

// MergeChunks streams chunks 0..totalChunks-1 in strict index order into one
// contiguous blob at target, creating parent directories as needed. Returns
// the merged byte count. A missing chunk file yields common.ErrMissingChunk.
func (s *Store) MergeChunks(ctx context.Context, sessionID string, totalChunks int, target string) (int64, error) {
	if err := filex.EnsureParentDir(target); err != nil {
		return 0, err
	}

	out, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create target: %w", err)
	}
	defer out.Close()

	buf := make([]byte, copyBufferSize)
	var merged int64
	for index := 0; index < totalChunks; index++ {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		n, err := s.appendChunk(out, sessionID, index, buf)
		merged += n
		if err != nil {
			return merged, err
		}
	}

	if err := out.Sync(); err != nil {
		return merged, fmt.Errorf("sync target: %w", err)
	}
	return merged, nil
}

func (s *Store) appendChunk(out *os.File, sessionID string, index int, buf []byte) (int64, error) {
	in, err := os.Open(s.ChunkPath(sessionID, index))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("chunk %d: %w", index, common.ErrMissingChunk)
		}
		return 0, fmt.Errorf("open chunk %d: %w", index, err)
	}
	defer in.Close()

	n, err := io.CopyBuffer(out, in, buf)
	if err != nil {
		return n, fmt.Errorf("copy chunk %d: %w", index, err)
	}
	return n, nil
}

// ComputeDigest returns the streaming SHA-256 of the blob at path as
// lowercase hex.
func (s *Store) ComputeDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CleanupSession removes the session temp directory recursively. Best
// effort: callers log failures and continue, a stray temp directory is a
// leak, not a correctness issue.
func (s *Store) CleanupSession(sessionID string) error {
	return os.RemoveAll(s.SessionDir(sessionID))
}

// RemoveFinal deletes a file's merged blob and its containing directory.
func (s *Store) RemoveFinal(fileID string) error {
	return os.RemoveAll(filepath.Dir(s.FinalPath(fileID)))
}
