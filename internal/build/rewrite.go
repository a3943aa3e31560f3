package build

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vango-dev/spindle/internal/asset"
	"github.com/vango-dev/spindle/internal/graph"
	"github.com/vango-dev/spindle/internal/toolchain"
)

// StartedEvent is dispatched on window once the WASM module is running.
const StartedEvent = "SpindleApplicationStarted"

// NoncePlaceholder is the nonce value written when Options.CreateNonce is
// set.
const NoncePlaceholder = "{{__SPINDLE_NONCE__}}"

// Patterns are user templates for the WASM markup. Each placeholder {name}
// is replaced by a built-in value ({base}, {wasm}, {js}, {initializer},
// {crossorigin}, {integrity}) or by Params[name]. A param value starting
// with @ names a file whose content is substituted.
type Patterns struct {
	Script  string
	Preload string
	Params  map[string]string
}

// rewrite replaces every declaration in a copy of doc with the reference to
// its node's output, or with a failure marker comment.
func (o *Orchestrator) rewrite(doc *asset.Document, nodes []NodeReport) ([]byte, error) {
	byID := make(map[string]NodeReport, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	out := doc.Clone()
	for _, d := range out.Descriptors {
		if d.Point == nil || d.Point.Parent == nil {
			continue
		}
		n, ok := byID[graph.NodeID(d.Kind, d.Source)]
		var replacement []*html.Node
		switch {
		case d.Skip:
		case !ok:
			replacement = []*html.Node{failureMarker(d, fmt.Errorf("not part of the build graph"))}
		case !n.OK():
			replacement = []*html.Node{failureMarker(d, n.Err)}
		default:
			replacement = o.references(d, n.Result)
		}
		if o.options.CreateNonce {
			addNonce(replacement)
		}
		replace(d.Point, replacement)
	}
	return out.Render()
}

func replace(point *html.Node, nodes []*html.Node) {
	parent := point.Parent
	for _, n := range nodes {
		parent.InsertBefore(n, point)
	}
	parent.RemoveChild(point)
}

// references renders the elements that load a built asset.
func (o *Orchestrator) references(d asset.Descriptor, res *toolchain.Result) []*html.Node {
	url := func(out toolchain.Output) string {
		return o.options.PublicURL + res.URLPath(out)
	}

	switch d.Kind {
	case asset.KindStylesheet:
		attrs := []html.Attribute{{Key: "rel", Val: "stylesheet"}, {Key: "href", Val: url(res.Primary)}}
		return []*html.Node{element(atom.Link, withSRI(attrs, d, res.Primary)...)}

	case asset.KindWasm:
		return o.wasmReferences(d, res)

	case asset.KindCopyFile:
		return []*html.Node{element(atom.Link,
			html.Attribute{Key: "rel", Val: "prefetch"},
			html.Attribute{Key: "href", Val: url(res.Primary)},
		)}

	case asset.KindIcon:
		return []*html.Node{element(atom.Link,
			html.Attribute{Key: "rel", Val: "icon"},
			html.Attribute{Key: "href", Val: url(res.Primary)},
		)}

	case asset.KindInline:
		content := string(res.Primary.Bytes)
		switch res.ContentType {
		case "css":
			n := element(atom.Style)
			n.AppendChild(&html.Node{Type: html.TextNode, Data: content})
			return []*html.Node{n}
		case "mjs":
			return []*html.Node{script("module", content)}
		default:
			return []*html.Node{script("", content)}
		}
	}
	return []*html.Node{failureMarker(d, fmt.Errorf("unsupported kind %s", d.Kind))}
}

// wasmReferences renders the preload link, the JS glue and the bootstrap
// module, or the configured patterns in their place.
func (o *Orchestrator) wasmReferences(d asset.Descriptor, res *toolchain.Result) []*html.Node {
	base := o.options.PublicURL
	wasmURL := base + res.URLPath(res.Primary)
	initURL := ""
	if res.Initializer != nil {
		initURL = base + res.URLPath(*res.Initializer)
	}

	params := map[string]string{
		"base":        base,
		"wasm":        res.URLPath(res.Primary),
		"crossorigin": crossOrigin(d),
		"integrity":   res.Primary.Integrity,
	}
	if len(res.Extra) > 0 {
		params["js"] = res.URLPath(res.Extra[0])
	}
	if res.Initializer != nil {
		params["initializer"] = res.URLPath(*res.Initializer)
	}
	patterns := o.options.Patterns
	for k, v := range patterns.Params {
		if _, builtin := params[k]; !builtin {
			params[k] = v
		}
	}

	var nodes []*html.Node
	if patterns.Preload != "" {
		frag, err := evaluatePattern(patterns.Preload, params, d.Point)
		if err != nil {
			return []*html.Node{failureMarker(d, err)}
		}
		nodes = append(nodes, frag...)
	} else {
		preload := []html.Attribute{
			{Key: "rel", Val: "preload"},
			{Key: "href", Val: wasmURL},
			{Key: "as", Val: "fetch"},
			{Key: "type", Val: "application/wasm"},
		}
		preload = withSRI(preload, d, res.Primary)
		if res.Primary.Integrity == "" {
			preload = append(preload, html.Attribute{Key: "crossorigin", Val: crossOrigin(d)})
		}
		nodes = append(nodes, element(atom.Link, preload...))
	}

	if !o.options.InjectScripts || len(res.Extra) == 0 {
		return nodes
	}
	if patterns.Script != "" {
		frag, err := evaluatePattern(patterns.Script, params, d.Point)
		if err != nil {
			return []*html.Node{failureMarker(d, err)}
		}
		return append(nodes, frag...)
	}

	glue := res.Extra[0]
	glueAttrs := withSRI([]html.Attribute{{Key: "src", Val: base + res.URLPath(glue)}}, d, glue)
	return append(nodes,
		element(atom.Script, glueAttrs...),
		script("module", bootstrap(wasmURL, res.Primary.Integrity, initURL)),
	)
}

// evaluatePattern substitutes params into pattern and parses the result as
// HTML in the context of the declaration's parent.
func evaluatePattern(pattern string, params map[string]string, point *html.Node) ([]*html.Node, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := pattern
	for _, k := range keys {
		v := params[k]
		if file, ok := strings.CutPrefix(v, "@"); ok {
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, fmt.Errorf("pattern param %s: %w", k, err)
			}
			v = string(data)
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}

	parent := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	if point != nil && point.Parent != nil && point.Parent.Type == html.ElementNode {
		parent = &html.Node{Type: html.ElementNode, DataAtom: point.Parent.DataAtom, Data: point.Parent.Data}
	}
	return html.ParseFragment(strings.NewReader(result), parent)
}

// addNonce sets the nonce placeholder on every script and style element.
func addNonce(nodes []*html.Node) {
	for _, n := range nodes {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			n.Attr = append(n.Attr, html.Attribute{Key: "nonce", Val: NoncePlaceholder})
		}
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		addNonce(children)
	}
}

func bootstrap(wasmURL, integrity, initURL string) string {
	fetchArgs := strconv.Quote(wasmURL)
	if integrity != "" {
		fetchArgs += ", {integrity: " + strconv.Quote(integrity) + "}"
	}
	var setup string
	if initURL != "" {
		setup = "\nimport setup from " + strconv.Quote(initURL) + ";\n" +
			"if (typeof setup === 'function') {\n  await Promise.resolve(setup());\n}"
	}
	return setup + "\nconst go = new Go();\n" +
		"const { instance } = await WebAssembly.instantiateStreaming(fetch(" + fetchArgs + "), go.importObject);\n" +
		"go.run(instance);\n" +
		"dispatchEvent(new CustomEvent(" + strconv.Quote(StartedEvent) + ", { detail: { instance } }));\n"
}

func withSRI(attrs []html.Attribute, d asset.Descriptor, out toolchain.Output) []html.Attribute {
	if out.Integrity == "" {
		return attrs
	}
	return append(attrs,
		html.Attribute{Key: "integrity", Val: out.Integrity},
		html.Attribute{Key: "crossorigin", Val: crossOrigin(d)},
	)
}

func crossOrigin(d asset.Descriptor) string {
	if v := d.Option("cross-origin"); v != "" {
		return v
	}
	return "anonymous"
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func script(typ, content string) *html.Node {
	var n *html.Node
	if typ != "" {
		n = element(atom.Script, html.Attribute{Key: "type", Val: typ})
	} else {
		n = element(atom.Script)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: content})
	return n
}

// failureMarker renders the comment left where a failed asset's reference
// would have been.
func failureMarker(d asset.Descriptor, err error) *html.Node {
	msg := "unknown error"
	if err != nil {
		msg = strings.TrimSpace(err.Error())
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
	}
	href := d.Href
	if href == "" {
		href = "."
	}
	text := fmt.Sprintf(" spindle: %s %s failed: %s ", d.Tool(), href, msg)
	text = strings.ReplaceAll(text, "--", "- -")
	return &html.Node{Type: html.CommentNode, Data: text}
}
