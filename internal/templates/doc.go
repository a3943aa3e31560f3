// Package templates provides project scaffolding templates for spindle init.
//
// # Available Templates
//
//   - minimal: A Go WebAssembly entry point and an index.html
//   - styled: Adds a Sass stylesheet and copied static files
//
// # Usage
//
//	tmpl, err := templates.Get("styled")
//	if err != nil {
//	    return err
//	}
//	written, err := tmpl.Create(projectDir, templates.Config{ProjectName: "app"})
//
// # Template Variables
//
//	{{.ProjectName}}     - Name of the project and of the WASM output
//	{{.ModulePath}}      - Go module path
//	{{.Description}}     - Project description
//	{{.Port}}            - Dev server port
package templates
