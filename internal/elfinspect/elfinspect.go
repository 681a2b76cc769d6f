// Package elfinspect reports what stripping and optimization did to a
// binary: symbol presence, debug sections, section layout, and size.
package elfinspect

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Section is one section header summary.
type Section struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size uint64 `json:"size"`
}

// Info is the inspection result for one file.
type Info struct {
	Path     string `json:"path"`
	FileSize int64  `json:"file_size"`

	Class   string `json:"class"`
	Machine string `json:"machine"`
	Type    string `json:"type"`

	Sections []Section `json:"sections"`

	// SymbolCount is the number of entries in .symtab. Zero after a full
	// strip.
	SymbolCount int  `json:"symbol_count"`
	HasSymbols  bool `json:"has_symbols"`

	// HasDebug reports whether any .debug_* section survives.
	HasDebug bool `json:"has_debug"`
}

// NotELFError marks a file that is not a parseable ELF object.
type NotELFError struct {
	Path string
	Err  error
}

func (e *NotELFError) Error() string {
	return fmt.Sprintf("%s: not an ELF file: %v", e.Path, e.Err)
}

func (e *NotELFError) Unwrap() error { return e.Err }

// Inspect parses path and summarizes its ELF structure.
func Inspect(path string) (*Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspect: %w", err)
	}

	f, err := elf.Open(path)
	if err != nil {
		return nil, &NotELFError{Path: path, Err: err}
	}
	defer f.Close()

	info := &Info{
		Path:     path,
		FileSize: fi.Size(),
		Class:    f.Class.String(),
		Machine:  f.Machine.String(),
		Type:     f.Type.String(),
	}

	for _, s := range f.Sections {
		if s.Name == "" && s.Type == elf.SHT_NULL {
			continue
		}
		info.Sections = append(info.Sections, Section{
			Name: s.Name,
			Type: s.Type.String(),
			Size: s.Size,
		})
		if strings.HasPrefix(s.Name, ".debug_") {
			info.HasDebug = true
		}
	}
	sort.Slice(info.Sections, func(i, j int) bool {
		return info.Sections[i].Name < info.Sections[j].Name
	})

	syms, err := f.Symbols()
	switch {
	case err == nil:
		info.SymbolCount = len(syms)
		info.HasSymbols = len(syms) > 0
	case errors.Is(err, elf.ErrNoSymbols):
		// Fully stripped.
	default:
		return nil, fmt.Errorf("inspect %s: reading symbols: %w", path, err)
	}

	return info, nil
}

// Describe renders a short one-line summary, e.g. for status output.
func (i *Info) Describe() string {
	sym := "stripped"
	if i.HasSymbols {
		sym = fmt.Sprintf("%d symbols", i.SymbolCount)
	}
	dbg := "no debug info"
	if i.HasDebug {
		dbg = "debug info present"
	}
	return fmt.Sprintf("%s %s, %d bytes, %s, %s", i.Class, i.Type, i.FileSize, sym, dbg)
}
