package graph

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/toolchain"
)

func p(s string) string { return filepath.FromSlash(s) }

func desc(kind asset.Kind, source string, opts map[string]string) asset.Descriptor {
	return asset.Descriptor{Kind: kind, Source: p(source), Options: opts}
}

func sampleGraph() *Graph {
	return FromDescriptors(nil, p("/site/index.html"), []asset.Descriptor{
		desc(asset.KindStylesheet, "/site/style.scss", nil),
		desc(asset.KindStylesheet, "/site/theme.css", nil),
		desc(asset.KindWasm, "/site", nil),
		desc(asset.KindCopyFile, "/site/robots.txt", nil),
	})
}

func TestFromDescriptors_OneNodePerKindAndSource(t *testing.T) {
	g := FromDescriptors(nil, p("/site/index.html"), []asset.Descriptor{
		desc(asset.KindStylesheet, "/site/style.scss", map[string]string{"integrity": "sha256"}),
		desc(asset.KindCopyFile, "/site/style.scss", nil),
		desc(asset.KindStylesheet, "/site/./style.scss", map[string]string{"integrity": "none"}),
	})

	require.Equal(t, 2, g.Len())
	ids := g.IDs()
	assert.Equal(t, NodeID(asset.KindStylesheet, p("/site/style.scss")), ids[0])
	assert.Equal(t, NodeID(asset.KindCopyFile, p("/site/style.scss")), ids[1])

	n, ok := g.Node(ids[0])
	require.True(t, ok)
	assert.Equal(t, "none", n.Descriptor.Option("integrity"), "last declaration's options win")
}

func TestFromDescriptors_CarriesState(t *testing.T) {
	g1 := sampleGraph()
	cssID := NodeID(asset.KindStylesheet, p("/site/style.scss"))
	copyID := NodeID(asset.KindCopyFile, p("/site/robots.txt"))

	res := &toolchain.Result{Primary: toolchain.Output{Name: "style-0123456789abcdef.css", Hash: "0123456789abcdef"}}
	g1.Record(cssID, res, nil)
	g1.Record(copyID, nil, errors.New("boom"))

	g2 := FromDescriptors(g1, p("/site/index.html"), []asset.Descriptor{
		desc(asset.KindStylesheet, "/site/style.scss", nil),
		desc(asset.KindIcon, "/site/favicon.ico", nil),
	})

	assert.Equal(t, g1.Generation+1, g2.Generation)
	require.Equal(t, 2, g2.Len())

	n, ok := g2.Node(cssID)
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdef", n.LastHash)
	assert.Same(t, res, n.Last)

	_, ok = g2.Node(copyID)
	assert.False(t, ok, "undeclared node dropped")

	icon, ok := g2.Node(NodeID(asset.KindIcon, p("/site/favicon.ico")))
	require.True(t, ok)
	assert.Empty(t, icon.LastHash)
}

func TestRecord_ErrorKeepsLastSuccess(t *testing.T) {
	g := sampleGraph()
	id := NodeID(asset.KindStylesheet, p("/site/style.scss"))
	ok := &toolchain.Result{Primary: toolchain.Output{Hash: "aaaaaaaaaaaaaaaa"}}
	g.Record(id, ok, nil)
	g.Record(id, nil, errors.New("syntax error"))

	n, _ := g.Node(id)
	assert.EqualError(t, n.LastError, "syntax error")
	assert.Equal(t, "aaaaaaaaaaaaaaaa", n.LastHash)
	assert.Same(t, ok, n.Last)
}

func TestNodesAffectedBy(t *testing.T) {
	g := sampleGraph()
	wasmID := NodeID(asset.KindWasm, p("/site"))
	cssID := NodeID(asset.KindStylesheet, p("/site/style.scss"))
	themeID := NodeID(asset.KindStylesheet, p("/site/theme.css"))

	g.Record(wasmID, &toolchain.Result{
		Primary: toolchain.Output{Hash: "1111111111111111"},
		Deps:    []string{p("/site/main.go"), p("/site/go.mod"), p("/lib/util/util.go")},
	}, nil)
	g.Record(cssID, &toolchain.Result{
		Primary: toolchain.Output{Hash: "2222222222222222"},
		Deps:    []string{p("/site/style.scss"), p("/site/_vars.scss")},
	}, nil)

	tests := []struct {
		name    string
		changed []string
		want    Affected
	}{
		{
			name:    "stylesheet only",
			changed: []string{p("/site/style.scss")},
			want:    Affected{IDs: []string{cssID}},
		},
		{
			name:    "stylesheet partial",
			changed: []string{p("/site/_vars.scss")},
			want:    Affected{IDs: []string{cssID}},
		},
		{
			name:    "go dependency outside the package dir",
			changed: []string{p("/lib/util/util.go")},
			want:    Affected{IDs: []string{wasmID}},
		},
		{
			name:    "new go file in package dir",
			changed: []string{p("/site/extra.go")},
			want:    Affected{IDs: []string{wasmID}},
		},
		{
			name:    "two nodes, graph order",
			changed: []string{p("/site/main.go"), p("/site/theme.css")},
			want:    Affected{IDs: []string{themeID, wasmID}},
		},
		{
			name:    "html file",
			changed: []string{p("/site/index.html")},
			want:    Affected{All: true, Reparse: true},
		},
		{
			name:    "unmapped path",
			changed: []string{p("/site/notes.md")},
			want:    Affected{All: true},
		},
		{
			name:    "unmapped path alongside mapped",
			changed: []string{p("/site/style.scss"), p("/elsewhere/x")},
			want:    Affected{IDs: []string{cssID}, All: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.NodesAffectedBy(tt.changed))
		})
	}
}

func TestNodesAffectedBy_UnbuiltWasmClaimsItsDirectory(t *testing.T) {
	g := FromDescriptors(nil, p("/site/index.html"), []asset.Descriptor{
		desc(asset.KindWasm, "/site/app", nil),
	})
	got := g.NodesAffectedBy([]string{p("/site/app/assets/data.json")})
	assert.Equal(t, []string{NodeID(asset.KindWasm, p("/site/app"))}, got.IDs)
	assert.False(t, got.All)
}

func TestAffected_Merge(t *testing.T) {
	a := Affected{IDs: []string{"a", "b"}}
	b := Affected{IDs: []string{"b", "c"}, Reparse: true}
	m := a.Merge(b)
	assert.Equal(t, []string{"a", "b", "c"}, m.IDs)
	assert.True(t, m.Reparse)
	assert.False(t, m.All)
	assert.True(t, Affected{}.Empty())
	assert.False(t, m.Empty())
}

func TestDepPaths(t *testing.T) {
	g := sampleGraph()
	g.Record(NodeID(asset.KindWasm, p("/site")), &toolchain.Result{Deps: []string{p("/site/main.go")}}, nil)
	paths := g.DepPaths()
	assert.Contains(t, paths, p("/site/main.go"))
	assert.Contains(t, paths, p("/site/robots.txt"))
	assert.IsIncreasing(t, paths)
}
