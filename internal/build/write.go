package build

import (
	"os"
	"path/filepath"
	"time"

	"github.com/vango-dev/spindle/internal/errors"
	"github.com/vango-dev/spindle/internal/graph"
	"github.com/vango-dev/spindle/internal/toolchain"
	"github.com/vango-dev/spindle/pkg/assets"
)

// writeOutputs writes a node's files into dist. Outputs are named by
// content, so an existing file with the same name is already correct: it is
// touched instead of rewritten. Files from the node's previous result that
// are no longer produced are removed.
func (o *Orchestrator) writeOutputs(report *Report, res, prev *toolchain.Result) error {
	now := time.Now()
	current := make(map[string]bool)

	for _, out := range res.Outputs() {
		rel := res.URLPath(out)
		current[rel] = true
		path := filepath.Join(o.options.Dist, filepath.FromSlash(rel))

		if st, err := os.Stat(path); err == nil && st.Size() == int64(len(out.Bytes)) {
			_ = os.Chtimes(path, now, now)
			report.Skipped = append(report.Skipped, rel)
			o.options.Metrics.OutputSkipped()
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.New("E300").WithDetail("creating " + filepath.Dir(path)).Wrap(err)
		}
		if err := writeFileAtomic(path, out.Bytes); err != nil {
			return errors.New("E300").WithDetail("writing " + path).Wrap(err)
		}
		report.Written = append(report.Written, rel)
		o.options.Metrics.OutputWritten()
	}

	if prev != nil {
		for _, out := range prev.Outputs() {
			rel := prev.URLPath(out)
			if !current[rel] {
				_ = os.Remove(filepath.Join(o.options.Dist, filepath.FromSlash(rel)))
			}
		}
	}
	return nil
}

// writeFileAtomic writes through a temp file so the dev server never serves
// a half-written output.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".spindle-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// writeManifest writes manifest.json mapping each declared source, relative
// to the HTML directory, to its dist-relative outputs.
func writeManifest(dist, root string, g *graph.Graph) error {
	manifest := assets.NewManifest()
	for _, n := range g.Nodes() {
		if n.Last == nil || n.Last.Inline {
			continue
		}
		src, err := filepath.Rel(root, n.Descriptor.Source)
		if err != nil {
			src = n.Descriptor.Source
		}
		var outputs []string
		for _, out := range n.Last.Outputs() {
			outputs = append(outputs, n.Last.URLPath(out))
		}
		manifest.Set(filepath.ToSlash(src), outputs...)
	}
	return manifest.WriteFile(filepath.Join(dist, assets.FileName))
}
