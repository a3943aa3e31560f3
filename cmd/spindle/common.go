package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/spindle/internal/build"
	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
	"github.com/vango-dev/spindle/internal/metrics"
	"github.com/vango-dev/spindle/internal/toolchain"
)

// loadConfig resolves the configuration named by --config, or the nearest
// one above the working directory, applies the command's flag overrides and
// validates the result.
func loadConfig(override func(*config.Config)) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if globals.config != "" {
		cfg, err = config.LoadFile(globals.config)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// pipeline is everything a build, watch or serve command needs.
type pipeline struct {
	config       *config.Config
	registry     *prometheus.Registry
	metrics      *metrics.Collectors
	orchestrator *build.Orchestrator
	log          *slog.Logger
}

// newPipeline wires the toolchain adapters and the orchestrator for cfg.
func newPipeline(cfg *config.Config, onProgress func(string)) *pipeline {
	logger := slog.Default()
	if globals.offline {
		// Tools inherit the environment.
		os.Setenv("GOPROXY", "off")
		os.Setenv("GOFLAGS", "-mod=mod")
	}

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)

	adapters := toolchain.NewSet(toolchain.Options{
		Runner:     toolchain.ExecRunner{},
		Tools:      toolsFromConfig(cfg),
		Release:    cfg.Build.Release,
		Integrity:  cfg.Build.Integrity,
		NoFileHash: !cfg.Build.FileHash,
		Logger:     logger,
	})

	orchestrator := build.New(build.Options{
		Dist:          cfg.DistPath(),
		PublicURL:     cfg.Build.PublicURL,
		Concurrency:   cfg.Build.Concurrency,
		InjectScripts: cfg.Build.InjectScripts,
		CreateNonce:   cfg.Build.CreateNonce,
		Patterns: build.Patterns{
			Script:  cfg.Build.PatternScript,
			Preload: cfg.Build.PatternPreload,
			Params:  cfg.PatternParams(),
		},
		Adapters:   adapters,
		Logger:     logger,
		Metrics:    collectors,
		OnProgress: onProgress,
	})

	return &pipeline{
		config:       cfg,
		registry:     registry,
		metrics:      collectors,
		orchestrator: orchestrator,
		log:          logger,
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// reportFailures prints every failed node of a run, one line each under
// --quiet.
func reportFailures(report *build.Report) {
	for _, err := range report.Errors() {
		switch {
		case err == nil:
		case globals.quiet:
			fmt.Fprintln(os.Stderr, errors.CompactString(err))
		default:
			errors.PrintError(err)
		}
	}
}
