package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/cadence/pkg/domain"
)

// Scheme prefixes references served by the registry.
const Scheme = "registry:"

// PluginExt is the archive extension of a registry definition.
// The archived file holds the registry reference instead of source code.
const PluginExt = ".plugin"

// Factory builds a fresh experiment instance.
type Factory func() domain.Experiment

// Entry describes a registered experiment.
type Entry struct {
	Name        string
	Description string
	Factory     Factory
}

// Registry manages the statically typed experiments.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register adds an experiment to the registry.
// If an experiment with the same name exists, it is overwritten.
func (r *Registry) Register(name, description string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Entry{Name: name, Description: description, Factory: factory}
}

// New looks up an experiment by name and instantiates it.
func (r *Registry) New(name string) (domain.Experiment, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("experiment not found: %s", name)
	}
	return entry.Factory(), nil
}

// Entries returns the registered experiments sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Match reports whether ref names a registry experiment, either directly
// ("registry:<name>") or through an archived ".plugin" file.
func (r *Registry) Match(ref string) bool {
	return strings.HasPrefix(ref, Scheme) || strings.EqualFold(filepath.Ext(ref), PluginExt)
}

// Resolve instantiates the experiment named by ref.
func (r *Registry) Resolve(_ context.Context, ref string) (*domain.Definition, error) {
	var sourcePath string
	name := strings.TrimPrefix(ref, Scheme)
	if !strings.HasPrefix(ref, Scheme) {
		raw, err := os.ReadFile(ref)
		if err != nil {
			return nil, domain.NewError(domain.KindDefinitionLoad, "registry", fmt.Errorf("read plugin reference: %w", err))
		}
		sourcePath = ref
		name = strings.TrimPrefix(strings.TrimSpace(string(raw)), Scheme)
	}

	exp, err := r.New(name)
	if err != nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "registry", err)
	}

	return &domain.Definition{
		Name:       name,
		Ref:        ref,
		Kind:       domain.SourceRegistry,
		SourcePath: sourcePath,
		Source:     []byte(Scheme + name + "\n"),
		SourceExt:  PluginExt,
		Experiment: exp,
	}, nil
}

// List describes every registered experiment.
func (r *Registry) List(_ context.Context) ([]domain.DefinitionInfo, error) {
	entries := r.Entries()
	out := make([]domain.DefinitionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.DefinitionInfo{
			Ref:         Scheme + e.Name,
			Name:        e.Name,
			Kind:        domain.SourceRegistry,
			Description: e.Description,
		})
	}
	return out, nil
}
