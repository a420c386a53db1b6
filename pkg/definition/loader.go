package definition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/schema"
)

// Source resolves the references it matches into definitions.
// The returned definition carries an Experiment; parameters are resolved by the Loader.
type Source interface {
	Match(ref string) bool
	Resolve(ctx context.Context, ref string) (*domain.Definition, error)
}

// Lister is implemented by sources that can enumerate their definitions.
type Lister interface {
	List(ctx context.Context) ([]domain.DefinitionInfo, error)
}

// Loader routes references to sources and resolves their parameters.
type Loader struct {
	sources []Source
	schema  schema.Schema
	logger  *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithSource appends a source. Sources are tried in the order they were added.
func WithSource(s Source) Option {
	return func(l *Loader) {
		l.sources = append(l.sources, s)
	}
}

// WithSchema replaces the parameter schema used after the merge.
func WithSchema(s schema.Schema) Option {
	return func(l *Loader) {
		l.schema = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader validating against schema.Parameters.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		schema: schema.Parameters(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves ref and merges overrides over the experiment defaults.
// Every failure is a KindDefinitionLoad error.
func (l *Loader) Load(ctx context.Context, ref string, overrides map[string]any) (*domain.Definition, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, domain.NewError(domain.KindDefinitionLoad, "load", errors.New("empty definition reference"))
	}

	source := l.route(ref)
	if source == nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "load",
			fmt.Errorf("no source accepts %q (extension %q)", ref, filepath.Ext(ref)))
	}

	def, err := source.Resolve(ctx, ref)
	if err != nil {
		return nil, asLoadError(err)
	}
	if def == nil || def.Experiment == nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "load", fmt.Errorf("no experiment found in %q", ref))
	}
	if def.Ref == "" {
		def.Ref = ref
	}

	params := def.Experiment.Defaults().Clone().Merge(overrides).Normalize()
	if err := schema.ValidateParameters(l.schema, params); err != nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "parameters", err)
	}
	def.Parameters = params

	l.logger.Debug("definition loaded", "ref", ref, "name", def.Name, "kind", def.Kind, "overrides", len(overrides))
	return def, nil
}

// List aggregates the definitions of every listing source, sorted by reference.
func (l *Loader) List(ctx context.Context) ([]domain.DefinitionInfo, error) {
	var out []domain.DefinitionInfo
	for _, s := range l.sources {
		lister, ok := s.(Lister)
		if !ok {
			continue
		}
		infos, err := lister.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list definitions: %w", err)
		}
		out = append(out, infos...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

func (l *Loader) route(ref string) Source {
	for _, s := range l.sources {
		if s.Match(ref) {
			return s
		}
	}
	return nil
}

func asLoadError(err error) error {
	if domain.KindOf(err) == domain.KindDefinitionLoad {
		return err
	}
	return domain.NewError(domain.KindDefinitionLoad, "resolve", err)
}
