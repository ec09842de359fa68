package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wonny/renewcast/internal/contracts"
)

// Loader produces the artifact of a generation type
type Loader func(t contracts.GenerationType) (*Artifact, error)

// Registry hands out trained models, loading each type at most once per process
// ⭐ SSOT: 로드된 모델은 여기서만 보관
type Registry struct {
	load Loader
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[contracts.GenerationType]*entry
}

type entry struct {
	once  sync.Once
	model *Artifact
	err   error
}

// NewRegistry creates a registry backed by the manifest
func NewRegistry(manifest *Manifest, log zerolog.Logger) *Registry {
	return NewRegistryWithLoader(ManifestLoader(manifest), log)
}

// NewRegistryWithLoader creates a registry with a custom loader (tests, embedded models)
func NewRegistryWithLoader(load Loader, log zerolog.Logger) *Registry {
	return &Registry{
		load:    load,
		log:     log.With().Str("component", "model.registry").Logger(),
		entries: make(map[contracts.GenerationType]*entry),
	}
}

// Get returns the model for t.
// Concurrent callers share a single load; a failed load is not cached.
func (r *Registry) Get(t contracts.GenerationType) (*Artifact, error) {
	r.mu.Lock()
	e, ok := r.entries[t]
	if !ok {
		e = &entry{}
		r.entries[t] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.model, e.err = r.load(t)
		if e.err != nil {
			r.log.Error().Err(e.err).Str("generation_type", string(t)).Msg("model load failed")
			return
		}
		r.log.Info().
			Str("generation_type", string(t)).
			Str("schema_version", e.model.SchemaVersion).
			Str("regressor", e.model.Regressor.Kind).
			Str("checksum", e.model.Checksum).
			Msg("model loaded")
	})

	if e.err != nil {
		r.mu.Lock()
		if r.entries[t] == e {
			delete(r.entries, t)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e.model, nil
}

// ManifestLoader reads artifacts from the files named in the manifest
func ManifestLoader(manifest *Manifest) Loader {
	return func(t contracts.GenerationType) (*Artifact, error) {
		ent, ok := manifest.Entry(t)
		if !ok {
			return nil, fmt.Errorf("no model registered for %s", t)
		}
		data, err := os.ReadFile(ent.Path)
		if err != nil {
			return nil, fmt.Errorf("read model %s: %w", ent.Path, err)
		}

		sum := sha256.Sum256(data)
		checksum := hex.EncodeToString(sum[:])
		if ent.SHA256 != "" && !strings.EqualFold(ent.SHA256, checksum) {
			return nil, fmt.Errorf("model %s checksum mismatch: manifest %s, file %s", ent.Path, ent.SHA256, checksum)
		}

		a, err := ParseArtifact(data)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", ent.Path, err)
		}
		if a.GenerationType != t {
			return nil, fmt.Errorf("model %s is for %s, registered as %s", ent.Path, a.GenerationType, t)
		}
		if a.SchemaVersion != ent.SchemaVersion {
			return nil, fmt.Errorf("model %s has schema %s, manifest expects %s", ent.Path, a.SchemaVersion, ent.SchemaVersion)
		}
		a.Checksum = checksum
		return a, nil
	}
}
