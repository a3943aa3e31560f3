package main

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/spindle/internal/build"
	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/dev"
	"github.com/vango-dev/spindle/internal/errors"
)

type serveFlags struct {
	build        buildFlags
	host         string
	port         int
	open         bool
	noAutoreload bool
	proxies      []string
}

func (f *serveFlags) apply(cfg *config.Config) {
	f.build.apply(cfg)
	if f.host != "" {
		cfg.Serve.Host = f.host
	}
	if f.port > 0 {
		cfg.Serve.Port = f.port
	}
	if f.open {
		cfg.Serve.Open = true
	}
	if f.noAutoreload {
		cfg.Serve.Autoreload = false
	}
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the development server",
		Long: `Build the application, watch for changes and serve the dist directory.

Connected browsers reload after every rebuild and show an overlay when
an asset fails to build. Request prefixes can be proxied to a backend,
including WebSocket upgrades.

Examples:
  spindle serve
  spindle serve --port=3000 --open
  spindle serve --proxy /api=http://localhost:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(&flags)
		},
	}

	flags.build.register(cmd)
	cmd.Flags().StringVarP(&flags.host, "addr", "a", "", "Address to bind to (default from config)")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Port to run on (default from config)")
	cmd.Flags().BoolVarP(&flags.open, "open", "o", false, "Open browser on start")
	cmd.Flags().BoolVar(&flags.noAutoreload, "no-autoreload", false, "Do not inject the live-reload client")
	cmd.Flags().StringArrayVar(&flags.proxies, "proxy", nil, "Proxy a path prefix to a backend (prefix=url, repeatable)")

	return cmd
}

func runServe(flags *serveFlags) error {
	rules, err := parseProxies(flags.proxies)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(func(cfg *config.Config) {
		flags.apply(cfg)
		cfg.Serve.Proxies = append(cfg.Serve.Proxies, rules...)
	})
	if err != nil {
		return err
	}

	printBanner()
	fmt.Println("  serve")
	fmt.Println()

	p := newPipeline(cfg, nil)
	hub := dev.NewReloadHub(p.metrics, p.log)
	watcher, err := newWatcher(p)
	if err != nil {
		return err
	}
	defer watcher.Close()

	var rebuilder *dev.Rebuilder
	rebuilder = dev.NewRebuilder(dev.RebuilderOptions{
		Runner:   p.orchestrator,
		HTMLPath: cfg.TargetPath(),
		Logger:   p.log,
		OnReport: func(report *build.Report, err error) {
			printReport(report, err)
			watcher.Follow(cfg, rebuilder.Graph())
			hub.PublishReport(report, err)
		},
	})

	server, err := dev.NewServer(dev.ServerOptions{
		Config:   cfg,
		Hub:      hub,
		Gatherer: p.registry,
		Logger:   p.log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	_, _ = rebuilder.Build(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(ctx)
	}()

	// Give the listener a moment to fail fast on a busy port.
	select {
	case err := <-serveErr:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	fmt.Println()
	success("Server running at %s", cfg.DevURL())
	for _, rule := range cfg.Serve.Proxies {
		info("Proxy %s → %s", rule.Prefix, rule.Backend)
	}
	fmt.Println()
	info("Press Ctrl+C to stop")
	fmt.Println()

	if cfg.Serve.Open {
		openURL(cfg.DevURL())
	}

	watchErr := watchAndRebuild(ctx, p, watcher, rebuilder)
	cancel()
	if err := <-serveErr; err != nil {
		return err
	}
	return watchErr
}

// parseProxies turns prefix=url flags into proxy rules.
func parseProxies(values []string) ([]config.ProxyConfig, error) {
	rules := make([]config.ProxyConfig, 0, len(values))
	for _, v := range values {
		prefix, backend, ok := strings.Cut(v, "=")
		if !ok || prefix == "" || backend == "" {
			return nil, errors.New("E123").
				WithDetail("--proxy " + v + " must have the form prefix=url")
		}
		rules = append(rules, config.ProxyConfig{Prefix: prefix, Backend: backend})
	}
	return rules, nil
}

// openURL opens the URL in the default browser.
func openURL(url string) {
	var cmd *exec.Cmd

	switch {
	case commandExists("xdg-open"):
		cmd = exec.Command("xdg-open", url)
	case commandExists("open"):
		cmd = exec.Command("open", url)
	case commandExists("start"):
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}

	cmd.Start()
}

// commandExists checks if a command exists in PATH.
func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
