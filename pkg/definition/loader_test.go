package definition_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/cadence/pkg/definition"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource serves documents by reference prefix.
type stubSource struct {
	prefix string
	docs   map[string]*definition.Document
	err    error
}

func (s *stubSource) Match(ref string) bool { return strings.HasPrefix(ref, s.prefix) }

func (s *stubSource) Resolve(_ context.Context, ref string) (*domain.Definition, error) {
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[ref]
	if !ok {
		return nil, errors.New("no such document")
	}
	return definition.FromDocument(doc, domain.SourceDocument, ref, ref+".yaml", []byte("src")), nil
}

func (s *stubSource) List(context.Context) ([]domain.DefinitionInfo, error) {
	var out []domain.DefinitionInfo
	for ref := range s.docs {
		out = append(out, domain.DefinitionInfo{Ref: ref, Name: ref, Kind: domain.SourceDocument})
	}
	return out, nil
}

func abcDocument() *definition.Document {
	return &definition.Document{
		Name: "abc",
		Parameters: map[string]any{
			"A":                       1,
			"B":                       2,
			"C":                       3,
			domain.ParamPatternLength: 100,
		},
		Digital: []definition.EdgeSpec{{Channel: "trigger", At: "A", Level: "high"}},
	}
}

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{prefix: "doc:", docs: map[string]*definition.Document{"doc:abc": abcDocument()}}
	loader := definition.NewLoader(definition.WithSource(src))

	t.Run("Overrides Replace Only Their Keys", func(t *testing.T) {
		def, err := loader.Load(ctx, "doc:abc", map[string]any{"A": 10, "B": 20})
		require.NoError(t, err)
		assert.Equal(t, 10, def.Parameters["A"])
		assert.Equal(t, 20, def.Parameters["B"])
		assert.Equal(t, 3, def.Parameters["C"])
		assert.Equal(t, "doc:abc", def.Ref)
	})

	t.Run("New Keys Are Added", func(t *testing.T) {
		def, err := loader.Load(ctx, "doc:abc", map[string]any{"D": "extra"})
		require.NoError(t, err)
		assert.Equal(t, "extra", def.Parameters["D"])
	})

	t.Run("Loads Do Not Share Parameters", func(t *testing.T) {
		first, err := loader.Load(ctx, "doc:abc", nil)
		require.NoError(t, err)
		first.Parameters["A"] = 99

		second, err := loader.Load(ctx, "doc:abc", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, second.Parameters["A"])
	})

	t.Run("Overrides Change The Sequence", func(t *testing.T) {
		def, err := loader.Load(ctx, "doc:abc", map[string]any{"A": 42})
		require.NoError(t, err)
		pattern, err := def.Build()
		require.NoError(t, err)
		assert.False(t, pattern.Digital.Level("trigger", 41))
		assert.True(t, pattern.Digital.Level("trigger", 42))
	})

	t.Run("Failures Are Definition Load Errors", func(t *testing.T) {
		cases := []struct {
			name      string
			ref       string
			overrides map[string]any
		}{
			{"Empty Reference", "", nil},
			{"Unknown Scheme", "ftp://abc", nil},
			{"Missing Document", "doc:missing", nil},
			{"Invalid Parameter Type", "doc:abc", map[string]any{domain.ParamPatternLength: "long"}},
			{"Invalid Gate Type", "doc:abc", map[string]any{domain.ParamNeedsCamera: 3}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := loader.Load(ctx, tc.ref, tc.overrides)
				require.Error(t, err)
				assert.True(t, domain.IsKind(err, domain.KindDefinitionLoad), "got %v", err)
			})
		}
	})
}

func TestLoader_List(t *testing.T) {
	a := &stubSource{prefix: "a:", docs: map[string]*definition.Document{"a:z": {}, "a:b": {}}}
	b := &stubSource{prefix: "b:", docs: map[string]*definition.Document{"b:a": {}}}
	loader := definition.NewLoader(definition.WithSource(b), definition.WithSource(a))

	infos, err := loader.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, []string{"a:b", "a:z", "b:a"}, []string{infos[0].Ref, infos[1].Ref, infos[2].Ref})
}
