package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/templates"
)

func initCmd() *cobra.Command {
	var (
		template    string
		module      string
		description string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a new project",
		Long: `Scaffold a Go WebAssembly project with an index.html that declares its
assets and a spindle.yaml.

Existing files are never overwritten.

Templates:
  minimal  A Go WebAssembly entry point and an index.html
  styled   Adds a Sass stylesheet and copied static files

Examples:
  spindle init
  spindle init my-app --template=styled
  spindle init web --module=github.com/me/web`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, template, module, description, port)
		},
	}

	cmd.Flags().StringVarP(&template, "template", "t", "minimal", "Project template ("+strings.Join(templates.List(), ", ")+")")
	cmd.Flags().StringVarP(&module, "module", "m", "", "Go module path (default: directory name)")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Dev server port written to spindle.yaml")

	return cmd
}

func runInit(dir, name, module, description string, port int) error {
	tmpl, err := templates.Get(name)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	project := filepath.Base(abs)
	if module == "" {
		module = project
	}
	if description == "" {
		description = project + " built with spindle"
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return err
	}

	printBanner()
	written, err := tmpl.Create(abs, templates.Config{
		ProjectName: project,
		ModulePath:  module,
		Description: description,
		Port:        port,
	})
	for _, p := range written {
		info("created %s", p)
	}
	if err != nil {
		return err
	}

	fmt.Println()
	success("Created %s from the %s template", project, tmpl.Name)
	fmt.Println()
	fmt.Println("  Next steps:")
	if dir != "." {
		fmt.Printf("    cd %s\n", dir)
	}
	fmt.Println("    spindle serve --open")
	fmt.Println()
	return nil
}
