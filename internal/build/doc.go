// Package build runs build passes over the asset graph.
//
// A run moves through Dispatching (selecting nodes), Collecting (a fixed
// worker pool builds every selected node; failures stay scoped to their
// node), and Writing (outputs land in dist, the graph records outcomes, the
// source HTML is rewritten). Runs never overlap: callers serialize them.
//
// # Usage
//
//	orch := build.New(build.Options{
//	    Dist:     cfg.DistPath(),
//	    Adapters: toolchain.NewSet(toolchain.Options{}),
//	})
//	report, err := orch.Run(ctx, g, doc, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Status)
//
// # Output Structure
//
//	dist/
//	├── index.html                  # rewritten source HTML
//	├── style-9f86d081884c7d65.css  # {basename}-{hash}.{ext}
//	├── app-2c26b46b68ffc68f.wasm
//	├── app-fcde2b2edba56bf4.js     # wasm_exec.js glue
//	└── manifest.json               # source → outputs
package build
