package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vango-dev/spindle/internal/asset"
)

// StylesheetAdapter compiles .scss/.sass with the sass executable and passes
// .css through unchanged.
type StylesheetAdapter struct {
	opts Options
}

var sassImport = regexp.MustCompile(`@(?:use|import|forward)\s+["']([^"']+)["']`)

// Build produces {basename}-{hash}.css.
func (a *StylesheetAdapter) Build(ctx context.Context, d asset.Descriptor) (*Result, error) {
	base, ext := d.Basename()
	tool := d.Tool()

	var css []byte
	deps := []string{d.Source}

	switch strings.ToLower(ext) {
	case "scss", "sass":
		if _, err := os.Stat(d.Source); err != nil {
			return nil, sourceErr(d, err)
		}
		args := []string{"--no-source-map"}
		if a.opts.Release && !d.HasOption("no-minify") {
			args = append(args, "--style=compressed")
		}
		args = append(args, d.Source)

		a.opts.Logger.Debug("compiling stylesheet", "source", d.Source, "tool", a.opts.Tools.Sass)
		out, err := a.opts.Runner.Run(ctx, Command{
			Name: a.opts.Tools.Sass,
			Args: args,
			Dir:  filepath.Dir(d.Source),
		})
		if err != nil {
			return nil, asToolchain(tool, err)
		}
		css = out
		deps = append(deps, sassPartials(d.Source)...)
	default:
		data, err := readSource(d)
		if err != nil {
			return nil, err
		}
		css = data
	}

	out, err := newOutput(a.opts, tool, base, "css", css, integrityFor(a.opts, d))
	if err != nil {
		return nil, err
	}
	return &Result{
		Primary:    out,
		TargetPath: d.TargetPath(),
		Deps:       deps,
	}, nil
}

// sassPartials follows @use, @import and @forward from src and returns every
// local file they resolve to.
func sassPartials(src string) []string {
	seen := map[string]bool{src: true}
	var out []string
	queue := []string{src}
	for len(queue) > 0 {
		file := queue[0]
		queue = queue[1:]
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		for _, m := range sassImport.FindAllSubmatch(data, -1) {
			ref := string(m[1])
			if strings.HasPrefix(ref, "sass:") || strings.Contains(ref, "://") {
				continue
			}
			p := resolvePartial(filepath.Dir(file), ref)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			queue = append(queue, p)
		}
	}
	return out
}

func resolvePartial(dir, ref string) string {
	ref = filepath.FromSlash(ref)
	name := filepath.Base(ref)
	sub := filepath.Join(dir, filepath.Dir(ref))
	candidates := []string{filepath.Join(sub, name)}
	if filepath.Ext(name) == "" {
		for _, ext := range []string{".scss", ".sass", ".css"} {
			candidates = append(candidates,
				filepath.Join(sub, name+ext),
				filepath.Join(sub, "_"+name+ext),
				filepath.Join(sub, name, "_index"+ext),
				filepath.Join(sub, name, "index"+ext),
			)
		}
	} else {
		candidates = append(candidates, filepath.Join(sub, "_"+name))
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c
		}
	}
	return ""
}
