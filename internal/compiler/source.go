package compiler

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
)

// Ext is the extension of CUE definitions.
const Ext = ".cue"

// Source serves ".cue" definitions. Relative references are looked up in the
// scripts directory when they do not exist relative to the working directory.
type Source struct {
	dir    string
	logger *slog.Logger
}

// NewSource creates a source rooted at dir.
func NewSource(dir string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{dir: dir, logger: logger}
}

func (s *Source) Match(ref string) bool {
	return strings.EqualFold(filepath.Ext(ref), Ext)
}

func (s *Source) Resolve(_ context.Context, ref string) (*domain.Definition, error) {
	path := s.locate(ref)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "read", err)
	}
	doc, err := Compile(src, path)
	if err != nil {
		return nil, domain.NewError(domain.KindDefinitionLoad, "compile", err)
	}
	return definition.FromDocument(doc, domain.SourceCUE, ref, path, src), nil
}

// List compiles every definition in the scripts directory.
// Files that fail to compile are listed with the error as description.
func (s *Source) List(_ context.Context) ([]domain.DefinitionInfo, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+Ext))
	if err != nil {
		return nil, err
	}

	out := make([]domain.DefinitionInfo, 0, len(paths))
	for _, path := range paths {
		base := filepath.Base(path)
		info := domain.DefinitionInfo{
			Ref:  base,
			Name: strings.TrimSuffix(base, Ext),
			Kind: domain.SourceCUE,
		}

		src, err := os.ReadFile(path)
		if err == nil {
			var doc *definition.Document
			if doc, err = Compile(src, path); err == nil {
				if doc.Name != "" {
					info.Name = doc.Name
				}
				info.Description = doc.Description
			}
		}
		if err != nil {
			s.logger.Warn("definition failed to compile", "path", path, "error", err)
			info.Description = fmt.Sprintf("invalid: %v", err)
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *Source) locate(ref string) string {
	if filepath.IsAbs(ref) || s.dir == "" {
		return ref
	}
	if _, err := os.Stat(ref); err == nil {
		return ref
	}
	return filepath.Join(s.dir, ref)
}
