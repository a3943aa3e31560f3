package assets

import "strings"

// Resolver maps a source asset path to the URL a page should reference.
type Resolver interface {
	// Asset resolves a source path to its prefixed, content-hashed URL.
	Asset(source string) string
}

// manifestResolver wraps a Manifest to implement Resolver.
type manifestResolver struct {
	manifest *Manifest
	prefix   string
}

// NewResolver creates a Resolver from a Manifest. prefix is normally the
// build's public URL and always ends up followed by a single slash.
func NewResolver(m *Manifest, prefix string) Resolver {
	return &manifestResolver{
		manifest: m,
		prefix:   normalizePrefix(prefix),
	}
}

func (r *manifestResolver) Asset(source string) string {
	return r.prefix + r.manifest.Resolve(source)
}

// passthrough returns assets unchanged.
type passthrough struct {
	prefix string
}

// NewPassthroughResolver creates a resolver that only applies prefix. It
// serves pages rendered before a manifest exists.
func NewPassthroughResolver(prefix string) Resolver {
	return &passthrough{prefix: normalizePrefix(prefix)}
}

func (p *passthrough) Asset(source string) string {
	return p.prefix + source
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return strings.TrimSuffix(prefix, "/") + "/"
}
