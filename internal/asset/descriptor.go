package asset

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Descriptor is one asset declaration found in the source HTML.
type Descriptor struct {
	// Kind selects the toolchain adapter.
	Kind Kind

	// Rel is the declared rel value ("scss", "css", "wasm", ...).
	Rel string

	// Href is the declared href, verbatim.
	Href string

	// Source is the absolute, cleaned path the declaration points at.
	Source string

	// Point is the element the built reference replaces.
	Point *html.Node

	// Options holds the declaration's data-* attributes without the
	// "data-" prefix. Only adapters interpret them.
	Options map[string]string

	// Index is the declaration's position among all declarations.
	Index int

	// Line is the 1-based source line of the declaration, if known.
	Line int

	// Skip is set by data-spindle-skip. The declaration is removed from the
	// output HTML and never built.
	Skip bool

	// Initializer is the absolute path of the JS module named by
	// data-initializer, run before the WASM module starts.
	Initializer string
}

// Option returns the named option, or "" when it is not set.
func (d Descriptor) Option(name string) string {
	return d.Options[name]
}

// HasOption reports whether the named option is present, even when empty.
func (d Descriptor) HasOption(name string) bool {
	_, ok := d.Options[name]
	return ok
}

// Tool returns the name used for the declaration in diagnostics.
func (d Descriptor) Tool() string {
	if d.Rel != "" {
		return d.Rel
	}
	return d.Kind.String()
}

// TargetPath returns the dist subdirectory for the declaration's outputs,
// as a clean slash-separated relative path ("" for the dist root).
func (d Descriptor) TargetPath() string {
	p := strings.Trim(path.Clean("/"+d.Option("target-path")), "/")
	if p == "." {
		return ""
	}
	return p
}

// Basename returns the file name of the source without extension, and the
// extension without the dot.
func (d Descriptor) Basename() (base, ext string) {
	name := filepath.Base(d.Source)
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), strings.TrimPrefix(ext, ".")
}
