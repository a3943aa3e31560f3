package dev

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
)

const (
	// ReloadPath is the live-reload websocket endpoint.
	ReloadPath = "/_spindle/reload"

	// MetricsPath serves the Prometheus registry.
	MetricsPath = "/_spindle/metrics"
)

// ServerOptions configures the development server.
type ServerOptions struct {
	// Config is the project configuration.
	Config *config.Config

	// Hub broadcasts reload events. Required when autoreload is on.
	Hub *ReloadHub

	// Gatherer backs the metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Logger receives request and lifecycle logs.
	Logger *slog.Logger
}

// Server is the development server.
type Server struct {
	config     *config.Config
	options    ServerOptions
	router     *chi.Mux
	proxies    []*proxyRoute
	dist       string
	autoreload bool
	log        *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a development server. Proxy rules are validated here.
func NewServer(options ServerOptions) (*Server, error) {
	cfg := options.Config
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Gatherer == nil {
		options.Gatherer = prometheus.DefaultGatherer
	}
	if options.Hub == nil {
		options.Hub = NewReloadHub(nil, options.Logger)
	}

	s := &Server{
		config:     cfg,
		options:    options,
		router:     chi.NewRouter(),
		dist:       cfg.DistPath(),
		autoreload: cfg.Serve.Autoreload,
		log:        options.Logger,
	}

	for _, rule := range cfg.Serve.Proxies {
		p, err := newProxyRoute(rule, s.log)
		if err != nil {
			return nil, err
		}
		s.proxies = append(s.proxies, p)
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLog)

	if s.autoreload {
		s.router.Get(ReloadPath, s.options.Hub.HandleWebSocket)
	}
	s.router.Handle(MetricsPath, promhttp.HandlerFor(s.options.Gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	s.router.HandleFunc("/*", s.dispatch)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.DevAddress())
	if err != nil {
		return errors.New("E142").WithDetail("listening on " + s.config.DevAddress()).Wrap(err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("serving", "url", s.config.DevURL(), "dist", s.dist, "proxies", len(s.proxies))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Addr returns the listening address once Start has been called.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes reload clients and shuts the HTTP server down.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	s.options.Hub.Close()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// dispatch sends a request to the first matching proxy, or serves dist.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	for _, p := range s.proxies {
		if p.matches(r.URL.Path) {
			p.ServeHTTP(w, r)
			return
		}
	}
	s.serveStatic(w, r)
}

// serveStatic serves a file from dist. Directories resolve to their
// index.html; HTML gets the live-reload client injected.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	urlPath := path.Clean("/" + r.URL.Path)
	name := filepath.Join(s.dist, filepath.FromSlash(urlPath))
	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		name = filepath.Join(name, "index.html")
		info, err = os.Stat(name)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	for k, v := range s.config.Serve.Headers {
		w.Header().Set(k, v)
	}

	if strings.HasSuffix(name, ".html") {
		data, err := os.ReadFile(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if s.autoreload {
			data = injectReloadScript(data)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(data))
		return
	}

	f, err := os.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// injectReloadScript inserts the dev client before </body>, falling back to
// </html> and then to the end of the document.
func injectReloadScript(body []byte) []byte {
	script := []byte(DevClientScript)
	idx := bytes.LastIndex(body, []byte("</body>"))
	if idx == -1 {
		idx = bytes.LastIndex(body, []byte("</html>"))
	}
	if idx == -1 {
		return append(body, script...)
	}
	out := make([]byte, 0, len(body)+len(script))
	out = append(out, body[:idx]...)
	out = append(out, script...)
	return append(out, body[idx:]...)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start).Round(time.Microsecond))
	})
}
