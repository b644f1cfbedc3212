package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nuxeo/docroute/routing"
	"github.com/nuxeo/docroute/types"
	"go.uber.org/zap"
)

// InMemory is a versioned in-memory definition registry. Definitions are
// immutable once registered; publishing a change means registering the
// same id under a higher version. GetDefinition resolves to the highest
// registered version, so instances launched after a publish pick up the
// new graph while already-running instances keep their behavior.
type InMemory struct {
	logger *zap.Logger

	mu       sync.RWMutex
	versions map[string]map[int]*routing.Definition
}

// NewInMemory creates an empty registry.
func NewInMemory(logger *zap.Logger) *InMemory {
	return &InMemory{
		logger:   logger.With(zap.String("component", "definition_registry")),
		versions: make(map[string]map[int]*routing.Definition),
	}
}

// Register adds a definition. Registering an already-present id/version
// pair fails; definitions are never replaced in place.
func (r *InMemory) Register(def *routing.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.versions[def.ID()]
	if !ok {
		byVersion = make(map[int]*routing.Definition)
		r.versions[def.ID()] = byVersion
	}
	if _, exists := byVersion[def.Version()]; exists {
		return types.NewErrorf(types.ErrInvalidDefinition,
			"definition %q version %d is already registered", def.ID(), def.Version())
	}
	byVersion[def.Version()] = def

	r.logger.Info("definition registered",
		zap.String("definition", def.ID()),
		zap.Int("version", def.Version()),
	)
	return nil
}

// GetDefinition returns the highest registered version of id.
func (r *InMemory) GetDefinition(_ context.Context, id string) (*routing.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byVersion, ok := r.versions[id]
	if !ok || len(byVersion) == 0 {
		return nil, types.NewErrorf(types.ErrDefinitionNotFound, "definition %q not found", id)
	}
	latest := 0
	for v := range byVersion {
		if v > latest {
			latest = v
		}
	}
	return byVersion[latest], nil
}

// GetVersion returns one specific registered version of id.
func (r *InMemory) GetVersion(_ context.Context, id string, version int) (*routing.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.versions[id][version]
	if !ok {
		return nil, types.NewErrorf(types.ErrDefinitionNotFound,
			"definition %q version %d not found", id, version)
	}
	return def, nil
}

// List returns the registered definition ids, sorted.
func (r *InMemory) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.versions))
	for id := range r.versions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Versions returns the registered versions of id, ascending.
func (r *InMemory) Versions(id string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int, 0, len(r.versions[id]))
	for v := range r.versions[id] {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// LoadDir registers every definition file in dir. Files ending in .json
// are parsed as JSON, .yaml/.yml as YAML; anything else is skipped.
func (r *InMemory) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.NewError(types.ErrRepositoryFailure, "definition directory unreadable").WithCause(err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var def *routing.Definition
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json":
			def, err = routing.LoadFromJSONFile(path)
		case ".yaml", ".yml":
			def, err = routing.LoadFromYAMLFile(path)
		default:
			continue
		}
		if err != nil {
			return types.NewErrorf(types.ErrInvalidDefinition,
				"definition file %q failed to load", path).WithCause(err)
		}
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
