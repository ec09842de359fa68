package model

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wonny/renewcast/internal/contracts"
)

// Manifest maps each generation type to its artifact
//
//	models:
//	  solar:
//	    path: solar_v1.json
//	    schema_version: solar.v1
//	    sha256: 3f1c...   # optional
type Manifest struct {
	Models map[contracts.GenerationType]Entry `yaml:"models"`

	dir string
}

// Entry locates one artifact
type Entry struct {
	Path          string `yaml:"path"`
	SchemaVersion string `yaml:"schema_version"`
	SHA256        string `yaml:"sha256,omitempty"`
}

// ValidationError reports an invalid manifest field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadManifest reads the YAML manifest.
// Unknown fields fail the load so typos never silently select a default.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry names a known type, a path and a schema version
func (m *Manifest) Validate() error {
	if len(m.Models) == 0 {
		return ValidationError{"models", "at least one model required"}
	}
	for t, e := range m.Models {
		field := "models." + string(t)
		if !t.Valid() {
			return ValidationError{field, "unknown generation type"}
		}
		if e.Path == "" {
			return ValidationError{field + ".path", "required"}
		}
		if e.SchemaVersion == "" {
			return ValidationError{field + ".schema_version", "required"}
		}
	}
	return nil
}

// Entry returns the entry for t with its path resolved against the manifest directory
func (m *Manifest) Entry(t contracts.GenerationType) (Entry, bool) {
	e, ok := m.Models[t]
	if !ok {
		return Entry{}, false
	}
	if !filepath.IsAbs(e.Path) && m.dir != "" {
		e.Path = filepath.Join(m.dir, e.Path)
	}
	return e, true
}
