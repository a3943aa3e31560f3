// Package dev provides the incremental development loop: file watching,
// debouncing, serialized rebuilds, the development server and live reload.
//
// # Architecture
//
//   - Watcher: fsnotify events for the watch roots, into a bounded channel
//   - Debouncer: folds bursts of events into batches
//   - Rebuilder: maps batches to affected graph nodes and runs at most one
//     build at a time, merging triggers that arrive meanwhile
//   - ReloadHub: broadcasts a ReloadEvent to browsers after every run
//   - Server: serves dist, proxies configured prefixes, exposes metrics
//
// # Usage
//
//	hub := dev.NewReloadHub(collectors, logger)
//	rb := dev.NewRebuilder(dev.RebuilderOptions{
//	    Runner:   orchestrator,
//	    HTMLPath: cfg.TargetPath(),
//	    OnReport: func(r *build.Report, err error) { hub.PublishReport(r, err) },
//	})
//	rb.Build(ctx)
//
//	w, _ := dev.NewWatcher(dev.WatcherConfig{Paths: dev.CollectWatchPaths(cfg, rb.Graph())})
//	go dev.RunWatchLoop(ctx, w, &dev.Debouncer{Window: cfg.DebounceDuration()}, rb)
//
//	srv, _ := dev.NewServer(dev.ServerOptions{Config: cfg, Hub: hub})
//	srv.Start(ctx)
//
// # Live Reload Protocol
//
// The browser connects to /_spindle/reload via WebSocket. After each run the
// server sends one JSON message:
//
//	{"status": "success", "sequence": 3, "errors": []}
//
// status is success, partial_failure or failure. Sequences increase by one
// per run; a client that connects late only sees runs that finish after it
// joined.
package dev
