package asset

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/spindle/internal/errors"
)

// Marker is the attribute that turns a <link> into an asset declaration.
const Marker = "data-spindle"

// SkipMarker keeps a declaration out of the build.
const SkipMarker = Marker + "-skip"

// Document is a parsed source HTML file together with its declarations.
type Document struct {
	// Path is the absolute path of the source HTML file.
	Path string

	// Root is the parsed document tree.
	Root *html.Node

	// Descriptors are the declarations in document order.
	Descriptors []Descriptor
}

// Dir returns the directory sources are resolved against.
func (d *Document) Dir() string {
	return filepath.Dir(d.Path)
}

// ParseFile reads and parses the HTML file at path.
func ParseFile(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New("E303").Wrap(err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.New("E303").WithDetail("opening " + abs).Wrap(err)
	}
	defer f.Close()
	return Parse(f, abs)
}

// Parse parses an HTML document and extracts its asset declarations.
// htmlPath locates the document; declaration hrefs resolve against its
// directory.
func Parse(r io.Reader, htmlPath string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New("E303").WithDetail("reading " + htmlPath).Wrap(err)
	}

	links, hasRoot := scan(data)
	if !hasRoot {
		return nil, errors.New("E101").WithLocation(htmlPath, 0, 0)
	}

	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New("E100").WithLocation(htmlPath, 0, 0).Wrap(err)
	}

	doc := &Document{Path: htmlPath, Root: root}
	dir := filepath.Dir(htmlPath)

	var walkErr error
	var next int
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if walkErr != nil {
			return
		}
		if isDeclaration(n) {
			idx := len(doc.Descriptors)
			line := 0
			for i := next; i < len(links); i++ {
				if sameAttrs(links[i].attr, n.Attr) {
					line, next = links[i].line, i+1
					break
				}
			}
			d, err := describe(n, dir, htmlPath, idx, line)
			if err != nil {
				walkErr = err
				return
			}
			doc.Descriptors = append(doc.Descriptors, d)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if walkErr != nil {
		return nil, walkErr
	}

	return doc, nil
}

func describe(n *html.Node, dir, htmlPath string, idx, line int) (Descriptor, error) {
	rel := getAttr(n, "rel")
	kind, ok := KindFromRel(rel)
	if !ok {
		return Descriptor{}, errors.New("E102").
			WithLocation(htmlPath, line, 0).
			WithDetailf("declaration #%d has rel=%s", idx+1, strconv.Quote(rel)).
			WithSuggestion("Use one of: wasm, scss, sass, css, copy-file, icon, inline")
	}

	href := getAttr(n, "href")
	if href == "" && kind != KindWasm {
		return Descriptor{}, errors.New("E100").
			WithLocation(htmlPath, line, 0).
			WithDetailf("declaration #%d (rel=%s) has no href", idx+1, strconv.Quote(rel))
	}

	source := dir
	if href != "" {
		source = resolve(dir, href)
	}

	opts := make(map[string]string)
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if key == Marker || key == SkipMarker || !strings.HasPrefix(key, "data-") {
			continue
		}
		opts[strings.TrimPrefix(key, "data-")] = a.Val
	}

	var initializer string
	if v := opts["initializer"]; v != "" {
		if kind != KindWasm {
			return Descriptor{}, errors.New("E100").
				WithLocation(htmlPath, line, 0).
				WithDetailf("declaration #%d (rel=%s): data-initializer is only valid on rel=wasm", idx+1, strconv.Quote(rel))
		}
		initializer = resolve(dir, v)
	}

	return Descriptor{
		Kind:        kind,
		Rel:         strings.ToLower(rel),
		Href:        href,
		Source:      filepath.Clean(source),
		Point:       n,
		Options:     opts,
		Index:       idx,
		Line:        line,
		Skip:        hasAttr(n, SkipMarker),
		Initializer: initializer,
	}, nil
}

// resolve turns a declared path into an absolute one under dir.
func resolve(dir, href string) string {
	p := filepath.FromSlash(href)
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return filepath.Clean(p)
}

// isDeclaration reports whether n is a marked <link> in the HTML namespace.
func isDeclaration(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Link &&
		n.Namespace == "" && hasAttr(n, Marker)
}

// scannedLink is a marked <link> tag as the tokenizer saw it.
type scannedLink struct {
	line int
	attr []html.Attribute
}

// scan tokenizes the raw document once to find the line of every marked
// link tag and whether any root element is present. The tree builder can
// drop or add tags the tokenizer reports differently (inside <select> or
// foreign content), so Parse pairs tree nodes with these tags by their
// attributes rather than by position.
func scan(data []byte) (links []scannedLink, hasRoot bool) {
	z := html.NewTokenizer(bytes.NewReader(data))
	line := 1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return links, hasRoot
		}
		nl := bytes.Count(z.Raw(), []byte{'\n'})
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Html, atom.Head, atom.Body:
				hasRoot = true
			case atom.Link:
				for _, a := range tok.Attr {
					if strings.EqualFold(a.Key, Marker) {
						links = append(links, scannedLink{line: line, attr: tok.Attr})
						break
					}
				}
			}
		}
		line += nl
	}
}

func sameAttrs(a, b []html.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Val != b[i].Val {
			return false
		}
	}
	return true
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// Render serialises the document tree.
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.Root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clone deep-copies the document tree so it can be rewritten without
// touching the original. Descriptor insertion points are remapped onto the
// copy.
func (d *Document) Clone() *Document {
	mapping := make(map[*html.Node]*html.Node)
	root := cloneNode(d.Root, mapping)
	descs := make([]Descriptor, len(d.Descriptors))
	for i, desc := range d.Descriptors {
		desc.Point = mapping[desc.Point]
		descs[i] = desc
	}
	return &Document{Path: d.Path, Root: root, Descriptors: descs}
}

func cloneNode(n *html.Node, mapping map[*html.Node]*html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	mapping[n] = c
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneNode(child, mapping))
	}
	return c
}
