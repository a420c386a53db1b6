package loam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/cadence/pkg/definition"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/loam"
)

// Extensions lists the document formats served by the catalog.
var Extensions = []string{".md", ".yaml", ".yml", ".json"}

// Catalog adapts a Loam repository of experiment documents to a definition source.
type Catalog struct {
	root   string
	repo   *loam.TypedRepository[DefinitionMetadata]
	logger *slog.Logger
}

// Open initializes a strict, read-only repository at root.
// A missing root yields a catalog that lists nothing and only resolves
// documents by path.
func Open(root string, logger *slog.Logger) (*Catalog, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scripts path: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return New(absRoot, nil, logger), nil
	}
	repo, err := openRepo(absRoot)
	if err != nil {
		return nil, err
	}
	return New(absRoot, repo, logger), nil
}

// New wraps an existing typed repository rooted at root.
func New(root string, repo *loam.TypedRepository[DefinitionMetadata], logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Catalog{root: root, repo: repo, logger: logger}
}

func openRepo(dir string) (*loam.TypedRepository[DefinitionMetadata], error) {
	repo, err := loam.Init(dir,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return loam.NewTypedRepository[DefinitionMetadata](repo), nil
}

func (c *Catalog) Match(ref string) bool {
	ext := strings.ToLower(filepath.Ext(ref))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Resolve reads a document. References inside the root use the catalog
// repository; others (such as unpacked archives) get a repository of their own.
func (c *Catalog) Resolve(ctx context.Context, ref string) (*domain.Definition, error) {
	path := c.locate(ref)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "read", err)
	}

	repo := c.repo
	if dir := filepath.Dir(path); repo == nil || dir != c.root {
		if repo, err = openRepo(dir); err != nil {
			return nil, domain.NewError(domain.KindDefinitionLoad, "open", err)
		}
	}

	doc, err := repo.Get(ctx, trimExtension(filepath.Base(path)))
	if err != nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "decode", fmt.Errorf("loam get failed for %s: %w", ref, err))
	}
	c.logger.Debug("document loaded", "ref", ref, "id", doc.ID)

	return definition.FromDocument(doc.Data.document(doc.Content), domain.SourceDocument, ref, path, src), nil
}

// List enumerates the documents of the repository.
func (c *Catalog) List(ctx context.Context) ([]domain.DefinitionInfo, error) {
	if c.repo == nil {
		return nil, nil
	}
	docs, err := c.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	out := make([]domain.DefinitionInfo, 0, len(docs))
	for _, doc := range docs {
		ref, ok := c.refFor(doc.ID)
		if !ok {
			continue
		}
		name := doc.Data.Name
		if name == "" {
			name = trimExtension(doc.ID)
		}
		out = append(out, domain.DefinitionInfo{
			Ref:         ref,
			Name:        name,
			Kind:        domain.SourceDocument,
			Description: doc.Data.document(doc.Content).Description,
		})
	}
	return out, nil
}

func (c *Catalog) locate(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	if _, err := os.Stat(ref); err == nil {
		if abs, err := filepath.Abs(ref); err == nil {
			return abs
		}
	}
	return filepath.Join(c.root, ref)
}

// refFor returns the file name of a document ID, which may omit the extension.
func (c *Catalog) refFor(id string) (string, bool) {
	if c.Match(id) {
		return filepath.ToSlash(id), true
	}
	for _, ext := range Extensions {
		if _, err := os.Stat(filepath.Join(c.root, id+ext)); err == nil {
			return filepath.ToSlash(id + ext), true
		}
	}
	return "", false
}

func trimExtension(id string) string {
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}

func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return line
		}
	}
	return ""
}
