package route

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"gopkg.in/yaml.v3"
)

// File is the YAML representation of a route table.
type File struct {
	PatternRoutes []FileBinding `yaml:"pattern_routes"`
	Routes        []FileBinding `yaml:"routes"`
}

// FileBinding is a single route entry in a route file.
type FileBinding struct {
	Route       string   `yaml:"route"`
	Handler     string   `yaml:"handler"`
	Methods     []string `yaml:"methods,omitempty"`
	ContentType string   `yaml:"content_type,omitempty"`
	Restricted  bool     `yaml:"restricted,omitempty"`
	Deprecated  bool     `yaml:"deprecated,omitempty"`
	Priority    int      `yaml:"priority,omitempty"`
}

// LoadFile reads the route file at path from fs, and registers its bindings
// in t.
func LoadFile(fs vfs.FileSystem, path string, t *Table) error {
	data, err := vfs.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed reading route file: %w", err)
	}

	if err = Load(bytes.NewReader(data), t); err != nil {
		return fmt.Errorf("failed loading route file '%s': %w", path, err)
	}

	return nil
}

// Load decodes a YAML route file from r, and registers its bindings in t.
// Pattern routes are registered before literal routes.
func Load(r io.Reader, t *Table) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed decoding YAML: %w", err)
	}

	register := func(entries []FileBinding, isPattern bool) error {
		for i, fb := range entries {
			b := Binding{
				Pattern:     fb.Route,
				Handler:     HandlerID(fb.Handler),
				Methods:     fb.Methods,
				ContentType: fb.ContentType,
				Restricted:  fb.Restricted,
				IsPattern:   isPattern,
				Deprecated:  fb.Deprecated,
				Priority:    fb.Priority,
			}
			if err := t.Register(b); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
		return nil
	}

	if err := register(f.PatternRoutes, true); err != nil {
		return fmt.Errorf("pattern_routes: %w", err)
	}
	if err := register(f.Routes, false); err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	return nil
}

// Dump returns the YAML representation of the bindings in t.
func Dump(t *Table) ([]byte, error) {
	var f File
	for _, b := range t.Bindings() {
		fb := FileBinding{
			Route:       b.Pattern,
			Handler:     string(b.Handler),
			Methods:     b.Methods,
			ContentType: b.ContentType,
			Restricted:  b.Restricted,
			Deprecated:  b.Deprecated,
			Priority:    b.Priority,
		}
		if b.IsPattern {
			f.PatternRoutes = append(f.PatternRoutes, fb)
		} else {
			f.Routes = append(f.Routes, fb)
		}
	}

	return yaml.Marshal(f)
}
