package document

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpv-information-centre/reportcompiler/internal/compiler"
	"github.com/hpv-information-centre/reportcompiler/internal/docparam"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/fragment"
	"github.com/hpv-information-centre/reportcompiler/internal/incremental"
	"github.com/hpv-information-centre/reportcompiler/internal/observability"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/storage"
)

type builderFunc func(in *plugin.Input) (any, error)

// fixture is a document whose fragments are driven by per-name builders.
type fixture struct {
	t        *testing.T
	dir      string
	registry *plugin.Registry
	orch     *Orchestrator
	builders map[string]builderFunc
	tables   map[string]any

	mu    sync.Mutex
	built []string
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		dir:      t.TempDir(),
		builders: map[string]builderFunc{},
		tables:   map[string]any{},
	}
	reg := plugin.NewRegistry()
	require.NoError(t, reg.RegisterMetadataSource("none", func() plugin.MetadataSource {
		return plugin.MetadataSourceFunc(func(context.Context, *plugin.Input) (map[string]any, error) {
			return map[string]any{}, nil
		})
	}))
	require.NoError(t, reg.RegisterDataSource("table", func() plugin.DataSource {
		return plugin.DataSourceFunc(func(_ context.Context, _ *plugin.Input, spec plugin.FetcherSpec) (any, error) {
			v, ok := f.tables[spec.Name]
			if !ok {
				return nil, fmt.Errorf("no table %q", spec.Name)
			}
			return v, nil
		})
	}))
	require.NoError(t, reg.RegisterContextBuilder("fn", func() plugin.ContextBuilder {
		return plugin.ContextBuilderFunc(func(_ context.Context, in *plugin.Input) (any, error) {
			f.mu.Lock()
			f.built = append(f.built, in.Name)
			f.mu.Unlock()
			if b, ok := f.builders[in.Name]; ok {
				return b(in)
			}
			return map[string]any{}, nil
		})
	}))
	reg.SetExtensionDefaults(".py", "none", "fn")
	f.registry = reg

	cache := incremental.NewContentCache(storage.NewMemoryStore()).WithLogger(observability.Discard())
	c := compiler.New(reg, cache, compiler.DefaultOptions()).WithLogger(observability.Discard())
	f.orch = NewOrchestrator(c, reg).WithWorkers(workers).WithLogger(observability.Discard())
	return f
}

// tree builds a template tree from name -> includes; every name listed in
// withSource gets a source file.
func (f *fixture) tree(root string, includes map[string][]string, withSource ...string) *fragment.Node {
	f.t.Helper()
	templates := map[string]string{}
	for name, children := range includes {
		body := ""
		for _, c := range children {
			body += fmt.Sprintf(`{%% include %q %%}`, c)
		}
		templates[name] = body
	}
	index := fragment.MapSourceIndex{}
	for _, name := range withSource {
		p := filepath.Join(f.dir, "src", fragment.StripExt(name)+".py")
		require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(f.t, os.WriteFile(p, []byte("# "+name), 0o600))
		index[name] = p
	}
	node, err := fragment.Build(root, fragment.MemorySource{Templates: templates}, fragment.JinjaScanner{}, index)
	require.NoError(f.t, err)
	return node
}

func (f *fixture) returns(name string, ctx map[string]any) {
	f.builders[name] = func(*plugin.Input) (any, error) { return ctx, nil }
}

func (f *fixture) builtNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.built...)
	sort.Strings(out)
	return out
}

func TestGenerateMergesByTreePosition(t *testing.T) {
	f := newFixture(t, 4)
	root := f.tree("main", map[string][]string{
		"main":    {"section"},
		"section": {"b", "c"},
		"b":       nil,
		"c":       nil,
	}, "section", "b", "c")
	f.returns("section", map[string]any{"title": "Burden"})
	f.returns("b", map[string]any{"x": 1})
	f.returns("c", map[string]any{"y": 2})

	doc, err := f.orch.Generate(context.Background(), Request{
		Tree:     root,
		Param:    docparam.MustNew("iso", "ESP"),
		Metadata: map[string]any{"doc_name": "hpv"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ESP", doc.Suffix)

	want := map[string]any{
		"title":   "Burden",
		"section": map[string]any{"x": float64(1), "y": float64(2)},
	}
	if diff := cmp.Diff(want, doc.Data()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	meta := doc.Meta()
	assert.Equal(t, "hpv", meta["doc_name"])
	assert.Equal(t, "ESP", meta[KeyDocSuffix])
	assert.Equal(t, []fragment.ContextEntry{
		{Fragment: "main", Path: ""},
		{Fragment: "section", Path: ""},
		{Fragment: "b", Path: "section"},
		{Fragment: "c", Path: "section"},
	}, meta[KeyTemplateContextInfo])

	counts := doc.Counts()
	assert.Equal(t, 3, counts[compiler.StatusComputed])
	assert.Equal(t, 1, counts[compiler.StatusEmpty])
}

func TestGenerateNamesEmptyParameter(t *testing.T) {
	f := newFixture(t, 1)
	root := f.tree("main", map[string][]string{"main": nil})

	doc, err := f.orch.Generate(context.Background(), Request{Tree: root})
	require.NoError(t, err)
	assert.Equal(t, docparam.DefaultSuffix, doc.Suffix)
	assert.Equal(t, docparam.DefaultSuffix, doc.Meta()[KeyDocSuffix])
}

func TestGenerateFailSoftPerFragment(t *testing.T) {
	f := newFixture(t, 2)
	root := f.tree("main", map[string][]string{
		"main": {"a", "b", "c"},
		"a":    nil,
		"b":    nil,
		"c":    nil,
	}, "a", "b", "c")
	f.builders["b"] = func(*plugin.Input) (any, error) { return nil, fmt.Errorf("division by zero") }

	doc, err := f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "FRA")})
	require.Error(t, err)

	var fge *rcerrors.FragmentGenerationError
	require.True(t, stdErrors.As(err, &fge))
	assert.Equal(t, "FRA", fge.Document)
	assert.Equal(t, []string{"b"}, fge.Fragments())
	failure, _ := fge.Failure("b")
	assert.Contains(t, failure.Message, "division by zero")
	assert.NotEmpty(t, failure.Trace)

	assert.Equal(t, []string{"a", "b", "c"}, f.builtNames(), "siblings keep running")
	require.NotNil(t, doc)
	assert.Nil(t, doc.Context)
	require.Len(t, doc.Fragments, 4)
	assert.Equal(t, compiler.StatusComputed, doc.Fragments[1].Status)
	assert.Equal(t, compiler.StatusFailed, doc.Fragments[2].Status)
	assert.Equal(t, compiler.StatusComputed, doc.Fragments[3].Status)
}

func TestGenerateMergeOrderIgnoresCompletion(t *testing.T) {
	f := newFixture(t, 8)
	includes := map[string][]string{"main": nil}
	var names []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("f%d", i)
		includes["main"] = append(includes["main"], name)
		includes[name] = nil
		names = append(names, name)
		delay := time.Duration(8-i) * time.Millisecond
		value := i
		f.builders[name] = func(*plugin.Input) (any, error) {
			time.Sleep(delay)
			return map[string]any{"winner": value}, nil
		}
	}
	root := f.tree("main", includes, names...)

	doc, err := f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "ITA")})
	require.NoError(t, err)
	assert.Equal(t, float64(7), doc.Data()["winner"], "last fragment in pre-order wins")
}

func TestGenerateGivesEachFragmentOwnInputs(t *testing.T) {
	f := newFixture(t, 1)
	root := f.tree("main", map[string][]string{"main": {"a", "b"}, "a": nil, "b": nil}, "a", "b")
	var seenByB map[string]any
	f.builders["a"] = func(in *plugin.Input) (any, error) {
		in.Metadata["tampered"] = true
		in.Metadata["nested"].(map[string]any)["k"] = "changed"
		return map[string]any{}, nil
	}
	f.builders["b"] = func(in *plugin.Input) (any, error) {
		seenByB = in.Metadata
		return map[string]any{}, nil
	}
	meta := map[string]any{"nested": map[string]any{"k": "v"}}

	_, err := f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "PRT"), Metadata: meta})
	require.NoError(t, err)
	assert.NotContains(t, seenByB, "tampered")
	assert.Equal(t, map[string]any{"k": "v"}, seenByB["nested"])
	assert.Equal(t, map[string]any{"k": "v"}, meta["nested"])
}

func TestGenerateAugmentsParameter(t *testing.T) {
	f := newFixture(t, 2)
	root := f.tree("main", map[string][]string{"main": {"a"}, "a": nil}, "a")
	f.tables["country"] = []any{
		map[string]any{"region": "Europe", "income": "high"},
		map[string]any{"region": "ignored"},
	}
	f.tables["who"] = map[string]any{"region": "EURO", "who_region": "EUR"}
	var seen docparam.Param
	f.builders["a"] = func(in *plugin.Input) (any, error) {
		seen = in.Param
		return map[string]any{}, nil
	}

	doc, err := f.orch.Generate(context.Background(), Request{
		Tree:  root,
		Param: docparam.MustNew("iso", "ESP"),
		Augmentation: []plugin.FetcherSpec{
			{Name: "country", Type: "table"},
			{Name: "who", Index: 1, Type: "table"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ESP", doc.Suffix, "suffix is computed before augmentation")
	assert.Equal(t, []string{"iso", "income", "region", "who_region"}, doc.Param.Keys())
	region, _ := seen.Get("region")
	assert.Equal(t, "Europe", region, "earlier fetcher wins")
}

func TestGenerateAugmentationFailure(t *testing.T) {
	f := newFixture(t, 2)
	root := f.tree("main", map[string][]string{"main": {"a"}, "a": nil}, "a")

	_, err := f.orch.Generate(context.Background(), Request{
		Tree:         root,
		Param:        docparam.MustNew("iso", "ESP"),
		Augmentation: []plugin.FetcherSpec{{Name: "missing", Type: "table"}},
	})
	require.Error(t, err)
	var fge *rcerrors.FragmentGenerationError
	require.True(t, stdErrors.As(err, &fge))
	assert.Equal(t, []string{rcerrors.GlobalFragment}, fge.Fragments())
	assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryData))
	assert.Empty(t, f.builtNames(), "no fragment runs after a failed pre-pass")
}

func TestGenerateSubset(t *testing.T) {
	f := newFixture(t, 2)
	root := f.tree("main", map[string][]string{
		"main": {"a", "b"},
		"a":    nil,
		"b":    {"c"},
		"c":    nil,
	}, "a", "b", "c")

	doc, err := f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "DEU"), Fragments: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, f.builtNames())
	assert.Len(t, doc.Fragments, 2)

	_, err = f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "DEU"), Fragments: []string{"zz"}})
	assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryConfig))
}

type suffixPost struct{ calls int }

func (*suffixPost) Name() string { return "suffix" }

func (p *suffixPost) Process(_ context.Context, _ *Document, output string) (string, error) {
	p.calls++
	return output + ".post", nil
}

func TestGenerateRendersOnlyOnSuccess(t *testing.T) {
	f := newFixture(t, 2)
	root := f.tree("main", map[string][]string{"main": {"a"}, "a": nil}, "a")
	f.returns("a", map[string]any{"n": 1})

	rendered := 0
	post := &suffixPost{}
	f.orch.WithRenderer(RendererFunc(func(_ context.Context, doc *Document) (string, error) {
		rendered++
		return filepath.Join(f.dir, doc.Suffix+".md"), nil
	})).WithPostprocessors(post)

	doc, err := f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "ESP")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "ESP.md.post"), doc.Output)
	assert.Equal(t, 1, rendered)
	assert.Equal(t, 1, post.calls)

	f.builders["a"] = func(*plugin.Input) (any, error) { return nil, fmt.Errorf("boom") }
	_, err = f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "FRA")})
	require.Error(t, err)
	assert.Equal(t, 1, rendered, "renderer skipped when a fragment failed")

	f.returns("a", map[string]any{})
	f.orch.WithRenderer(RendererFunc(func(context.Context, *Document) (string, error) {
		return "", fmt.Errorf("missing key")
	}))
	_, err = f.orch.Generate(context.Background(), Request{Tree: root, Param: docparam.MustNew("iso", "GBR")})
	require.Error(t, err)
	assert.True(t, rcerrors.IsCategory(err, rcerrors.CategoryRender))
}

func TestMerge(t *testing.T) {
	data := map[string]any{"a": "scalar"}
	Merge(data, []string{"a", "b"}, map[string]any{"x": 1})
	Merge(data, []string{"a", "b"}, map[string]any{"y": 2})
	Merge(data, nil, map[string]any{"top": true})

	want := map[string]any{
		"a":   map[string]any{"b": map[string]any{"x": 1, "y": 2}},
		"top": true,
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstRow(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    map[string]any
		wantErr bool
	}{
		{"list", []any{map[string]any{"a": 1}, map[string]any{"a": 2}}, map[string]any{"a": 1}, false},
		{"typed list", []map[string]any{{"a": 1}}, map[string]any{"a": 1}, false},
		{"single mapping", map[string]any{"a": 1}, map[string]any{"a": 1}, false},
		{"empty", []any{}, nil, true},
		{"scalar rows", []any{1}, nil, true},
		{"scalar", "x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FirstRow(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
