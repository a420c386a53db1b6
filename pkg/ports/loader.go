package ports

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
)

// DefinitionLoader resolves a definition reference into a loaded experiment.
type DefinitionLoader interface {
	// Load resolves ref, merges overrides over the declared defaults and returns
	// an independent Definition. Failures are classified as domain.KindDefinitionLoad.
	Load(ctx context.Context, ref string, overrides map[string]any) (*domain.Definition, error)
}

// DefinitionCatalog enumerates available definitions.
type DefinitionCatalog interface {
	List(ctx context.Context) ([]domain.DefinitionInfo, error)
}
