package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CacheEntry is the stored result of a job execution.
//
// Failed executions are cacheable; they carry captured output and exit code
// but never artifacts.
type CacheEntry struct {
	Hash      Hash             `json:"hash"`
	Stdout    []byte           `json:"stdout"`
	Stderr    []byte           `json:"stderr"`
	ExitCode  int              `json:"exit_code"`
	Artifacts []CachedArtifact `json:"artifacts"`
}

// CachedArtifact is a single harvested output file.
type CachedArtifact struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// Cache stores and retrieves job execution results by Hash.
//
// A hit must replay exactly: identical stdout, stderr, exit code, and
// bit-for-bit identical artifacts.
type Cache interface {
	Has(hash Hash) (bool, error)

	// Get returns nil (no error) when the entry does not exist.
	Get(hash Hash) (*CacheEntry, error)

	Put(entry *CacheEntry) error
}

// FileCache is the on-disk Cache.
//
// Layout:
//
//	{CacheDir}/
//	  {hash[0:2]}/
//	    {hash}/
//	      metadata.json
//	      artifacts/
//	        {index}.blob
type FileCache struct {
	CacheDir string
}

// NewFileCache returns a filesystem-backed cache rooted at cacheDir.
func NewFileCache(cacheDir string) *FileCache {
	return &FileCache{CacheDir: cacheDir}
}

func (c *FileCache) entryPath(hash Hash) string {
	s := string(hash)
	if len(s) < 2 {
		return filepath.Join(c.CacheDir, s)
	}
	return filepath.Join(c.CacheDir, s[:2], s)
}

// Has reports whether an entry exists for hash.
func (c *FileCache) Has(hash Hash) (bool, error) {
	_, err := os.Stat(filepath.Join(c.entryPath(hash), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking cache entry: %w", err)
	}
	return true, nil
}

// Get loads an entry and its artifact blobs.
func (c *FileCache) Get(hash Hash) (*CacheEntry, error) {
	entryDir := c.entryPath(hash)

	data, err := os.ReadFile(filepath.Join(entryDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}

	artifactsDir := filepath.Join(entryDir, "artifacts")
	for i := range entry.Artifacts {
		content, err := os.ReadFile(filepath.Join(artifactsDir, fmt.Sprintf("%d.blob", i)))
		if err != nil {
			return nil, fmt.Errorf("reading artifact %d: %w", i, err)
		}
		entry.Artifacts[i].Content = content
	}

	return &entry, nil
}

// Put stores an entry atomically.
//
// The entry is assembled in a temp directory and renamed into place, so a
// crash leaves either the full entry or nothing, never torn metadata.
func (c *FileCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	entryDir := c.entryPath(entry.Hash)
	parentDir := filepath.Dir(entryDir)
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	artifactsDir := filepath.Join(tmpDir, "artifacts")
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return fmt.Errorf("creating cache artifacts dir: %w", err)
	}

	// Blobs first; metadata.json is the commit marker.
	for i, artifact := range entry.Artifacts {
		blobPath := filepath.Join(artifactsDir, fmt.Sprintf("%d.blob", i))
		if err := writeFileAtomic(blobPath, artifact.Content, 0o644); err != nil {
			return fmt.Errorf("writing artifact %d: %w", i, err)
		}
	}

	// Metadata carries artifact paths only; content lives in the blobs.
	metadata := CacheEntry{
		Hash:      entry.Hash,
		Stdout:    entry.Stdout,
		Stderr:    entry.Stderr,
		ExitCode:  entry.ExitCode,
		Artifacts: make([]CachedArtifact, len(entry.Artifacts)),
	}
	for i, a := range entry.Artifacts {
		metadata.Artifacts[i] = CachedArtifact{Path: a.Path}
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(tmpDir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	// A crash between remove and rename yields a miss, not corruption.
	_ = os.RemoveAll(entryDir)
	if err := os.Rename(tmpDir, entryDir); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

// MemoryCache is an in-process Cache for tests and one-shot runs.
type MemoryCache struct {
	entries map[Hash]*CacheEntry
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[Hash]*CacheEntry)}
}

// Has reports whether an entry exists.
func (c *MemoryCache) Has(hash Hash) (bool, error) {
	_, ok := c.entries[hash]
	return ok, nil
}

// Get returns a deep copy of the stored entry, or nil.
func (c *MemoryCache) Get(hash Hash) (*CacheEntry, error) {
	entry, ok := c.entries[hash]
	if !ok {
		return nil, nil
	}
	return copyEntry(entry), nil
}

// Put stores a deep copy of entry.
func (c *MemoryCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	c.entries[entry.Hash] = copyEntry(entry)
	return nil
}

func copyEntry(entry *CacheEntry) *CacheEntry {
	out := &CacheEntry{
		Hash:      entry.Hash,
		Stdout:    append([]byte(nil), entry.Stdout...),
		Stderr:    append([]byte(nil), entry.Stderr...),
		ExitCode:  entry.ExitCode,
		Artifacts: make([]CachedArtifact, len(entry.Artifacts)),
	}
	for i, a := range entry.Artifacts {
		out.Artifacts[i] = CachedArtifact{
			Path:    a.Path,
			Content: append([]byte(nil), a.Content...),
		}
	}
	return out
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
