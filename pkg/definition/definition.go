package definition

import (
	"path/filepath"
	"strings"

	"github.com/aretw0/cadence/pkg/domain"
)

// FromDocument wraps a declarative document as a definition read from path.
func FromDocument(doc *Document, kind domain.SourceKind, ref, path string, source []byte) *domain.Definition {
	name := doc.Name
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &domain.Definition{
		Name:       name,
		Ref:        ref,
		Kind:       kind,
		SourcePath: path,
		Source:     source,
		SourceExt:  strings.ToLower(filepath.Ext(path)),
		Experiment: doc,
	}
}
