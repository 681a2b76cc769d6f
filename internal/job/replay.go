package job

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReplayResult is the outcome of restoring a cached execution.
type ReplayResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Hash     Hash

	// ArtifactsRestored counts files actually written; artifacts already
	// present with matching content are not rewritten.
	ArtifactsRestored int
}

// Replayer restores cached results into the working tree.
type Replayer struct {
	// WorkDir is the directory artifacts are restored under.
	WorkDir string
}

// NewReplayer returns a Replayer for workDir.
func NewReplayer(workDir string) *Replayer {
	return &Replayer{WorkDir: workDir}
}

// Replay restores every artifact of entry and returns the cached output
// exactly as captured.
func (r *Replayer) Replay(entry *CacheEntry) (*ReplayResult, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry is nil")
	}

	restored, err := r.RestoreArtifacts(entry.Hash.String(), entry)
	if err != nil {
		return nil, err
	}

	return &ReplayResult{
		Stdout:            entry.Stdout,
		Stderr:            entry.Stderr,
		ExitCode:          entry.ExitCode,
		Hash:              entry.Hash,
		ArtifactsRestored: restored,
	}, nil
}

// RestoreArtifacts ensures every cached artifact exists on disk with the
// exact cached content. Mismatched or missing files are rewritten atomically;
// matching files are left alone.
func (r *Replayer) RestoreArtifacts(jobID string, entry *CacheEntry) (int, error) {
	if entry == nil {
		return 0, fmt.Errorf("cache entry is nil")
	}

	restored := 0
	for _, artifact := range entry.Artifacts {
		if artifact.Path == "" {
			return restored, fmt.Errorf("job %q: artifact path is empty", jobID)
		}
		if artifact.Content == nil {
			return restored, fmt.Errorf("job %q: artifact %q missing content in cache entry", jobID, artifact.Path)
		}

		target, err := r.targetPath(artifact.Path)
		if err != nil {
			return restored, fmt.Errorf("job %q: resolving artifact %q: %w", jobID, artifact.Path, err)
		}

		want := sha256Hex(artifact.Content)
		have, exists, err := fileSHA256Hex(target)
		if err != nil {
			return restored, fmt.Errorf("job %q: hashing existing artifact %q: %w", jobID, artifact.Path, err)
		}
		if exists && have == want {
			continue
		}

		if err := writeFileAtomic(target, artifact.Content, 0o755); err != nil {
			return restored, fmt.Errorf("job %q: restoring artifact %q: %w", jobID, artifact.Path, err)
		}
		restored++
	}

	return restored, nil
}

func (r *Replayer) targetPath(artifactPath string) (string, error) {
	target := artifactPath
	if !filepath.IsAbs(artifactPath) {
		target = filepath.Join(r.WorkDir, artifactPath)
	}
	target = filepath.FromSlash(target)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	return target, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileSHA256Hex(path string) (hash string, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}
