package dev

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vango-dev/spindle/internal/config"
	"github.com/vango-dev/spindle/internal/errors"
)

// proxyRoute forwards requests under a path prefix to a backend. The part
// of the path after the prefix is appended to the backend URL's path.
type proxyRoute struct {
	prefix  string
	backend *url.URL
	http    *httputil.ReverseProxy
	log     *slog.Logger
}

func newProxyRoute(rule config.ProxyConfig, log *slog.Logger) (*proxyRoute, error) {
	backend, err := url.Parse(rule.Backend)
	if err != nil || backend.Host == "" {
		e := errors.New("E123").WithDetail(rule.Prefix + " -> " + rule.Backend)
		if err != nil {
			e = e.Wrap(err)
		}
		return nil, e
	}
	if !strings.HasPrefix(rule.Prefix, "/") {
		return nil, errors.New("E123").WithDetail("prefix " + rule.Prefix + " must start with /")
	}

	p := &proxyRoute{
		prefix:  strings.TrimSuffix(rule.Prefix, "/"),
		backend: backend,
		log:     log,
	}

	httpBackend := *backend
	switch httpBackend.Scheme {
	case "ws":
		httpBackend.Scheme = "http"
	case "wss":
		httpBackend.Scheme = "https"
	}
	p.http = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = p.rest(pr.In.URL.Path)
			pr.Out.URL.RawPath = p.rest(pr.In.URL.EscapedPath())
			pr.SetURL(&httpBackend)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.fail(w, errors.New("E401").WithDetail(rule.Backend).Wrap(err), http.StatusBadGateway)
		},
	}
	return p, nil
}

// matches reports whether urlPath falls under the route's prefix.
func (p *proxyRoute) matches(urlPath string) bool {
	if p.prefix == "" {
		return true
	}
	return urlPath == p.prefix || strings.HasPrefix(urlPath, p.prefix+"/")
}

// rest strips the route prefix. It is applied to both the decoded and the
// escaped form of a path so encoded separators survive.
func (p *proxyRoute) rest(urlPath string) string {
	rest := strings.TrimPrefix(urlPath, p.prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

func (p *proxyRoute) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Upgrade") != "" {
		p.serveWebSocket(w, r)
		return
	}
	p.http.ServeHTTP(w, r)
}

// serveWebSocket validates the handshake, then hijacks the client
// connection and splices it byte for byte with a raw connection to the
// backend until either side closes.
func (p *proxyRoute) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if !isWebSocketHandshake(r) {
		p.fail(w, errors.New("E400").WithDetailf("Upgrade=%q Connection=%q", r.Header.Get("Upgrade"), r.Header.Get("Connection")), http.StatusBadRequest)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		p.fail(w, errors.New("E402"), http.StatusInternalServerError)
		return
	}

	backendConn, err := p.dial(r.Context())
	if err != nil {
		p.fail(w, errors.New("E401").WithDetail(p.backend.String()).Wrap(err), http.StatusBadGateway)
		return
	}

	out := r.Clone(context.Background())
	target := *p.backend
	target.Path = singleJoin(p.backend.Path, p.rest(r.URL.Path))
	target.RawPath = singleJoin(p.backend.EscapedPath(), p.rest(r.URL.EscapedPath()))
	target.RawQuery = r.URL.RawQuery
	switch target.Scheme {
	case "ws":
		target.Scheme = "http"
	case "wss":
		target.Scheme = "https"
	}
	out.URL = &target
	out.Host = p.backend.Host
	out.RequestURI = ""

	if err := out.Write(backendConn); err != nil {
		backendConn.Close()
		p.fail(w, errors.New("E401").WithDetail("writing handshake").Wrap(err), http.StatusBadGateway)
		return
	}

	clientConn, brw, err := hj.Hijack()
	if err != nil {
		backendConn.Close()
		p.log.Debug("hijack failed", "error", err)
		return
	}

	if n := brw.Reader.Buffered(); n > 0 {
		if _, err := io.CopyN(backendConn, brw, int64(n)); err != nil {
			clientConn.Close()
			backendConn.Close()
			return
		}
	}

	p.log.Debug("websocket proxied", "path", r.URL.Path, "backend", target.String())
	splice(clientConn, backendConn)
}

func (p *proxyRoute) dial(ctx context.Context) (net.Conn, error) {
	host := p.backend.Host
	secure := p.backend.Scheme == "https" || p.backend.Scheme == "wss"
	if p.backend.Port() == "" {
		if secure {
			host = net.JoinHostPort(p.backend.Hostname(), "443")
		} else {
			host = net.JoinHostPort(p.backend.Hostname(), "80")
		}
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if secure {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: p.backend.Hostname()}}
		return td.DialContext(ctx, "tcp", host)
	}
	return dialer.DialContext(ctx, "tcp", host)
}

func (p *proxyRoute) fail(w http.ResponseWriter, err *errors.SpindleError, status int) {
	p.log.Warn("proxy request failed", "prefix", p.prefix, "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

// splice copies in both directions and closes both connections once either
// direction ends.
func splice(client, backend net.Conn) {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			client.Close()
			backend.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer closeBoth()
		_, _ = io.Copy(backend, client)
	}()
	go func() {
		defer wg.Done()
		defer closeBoth()
		_, _ = io.Copy(client, backend)
	}()
	wg.Wait()
}

func isWebSocketHandshake(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		headerHasToken(r.Header, "Connection", "upgrade") &&
		r.Header.Get("Sec-WebSocket-Key") != ""
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func singleJoin(a, b string) string {
	switch {
	case strings.HasSuffix(a, "/") && strings.HasPrefix(b, "/"):
		return a + b[1:]
	case !strings.HasSuffix(a, "/") && !strings.HasPrefix(b, "/"):
		return a + "/" + b
	}
	return a + b
}
