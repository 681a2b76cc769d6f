// Package report renders run results: a size comparison table for humans
// and a canonical JSON manifest for machines.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one produced binary in the manifest.
type Entry struct {
	Path    string `json:"path"`
	Variant string `json:"variant"`
	JobName string `json:"job"`

	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`

	SymbolCount int  `json:"symbol_count"`
	HasSymbols  bool `json:"has_symbols"`
	HasDebug    bool `json:"has_debug"`

	Baseline bool `json:"baseline,omitempty"`
}

// Manifest is the canonical machine-readable record of a run's outputs.
//
// Serialization is deterministic: entries are sorted by path, struct fields
// serialize in declaration order, and no timestamps or host state appear.
// Two runs that produce bit-identical binaries produce byte-identical
// manifests.
type Manifest struct {
	GraphHash string  `json:"graph_hash"`
	Source    string  `json:"source"`
	Entries   []Entry `json:"entries"`
}

// NewManifest builds a manifest with entries in canonical order.
func NewManifest(graphHash, source string, entries []Entry) *Manifest {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})
	return &Manifest{GraphHash: graphHash, Source: source, Entries: sorted}
}

// Canonical returns the manifest's canonical serialized form.
func (m *Manifest) Canonical() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Hash returns the sha256 of the canonical serialization.
func (m *Manifest) Hash() (string, error) {
	data, err := m.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Write atomically writes the canonical manifest to path.
func (m *Manifest) Write(path string) error {
	data, err := m.Canonical()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("committing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads and strictly decodes a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}
