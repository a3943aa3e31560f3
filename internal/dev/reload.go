package dev

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/spindle/internal/build"
	"github.com/vango-dev/spindle/internal/metrics"
)

// Reload event statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// writeTimeout bounds a single client write so a stalled tab cannot hold
// up the rebuild loop.
const writeTimeout = time.Second

// ReloadEvent is sent to browsers after every build run. Errors is only
// present on error events.
type ReloadEvent struct {
	Status   string   `json:"status"`
	Sequence uint64   `json:"sequence"`
	Errors   []string `json:"errors,omitempty"`
}

// EventFromReport describes a finished run. err is the run's fatal error,
// if any. Only a fully successful run is a success.
func EventFromReport(report *build.Report, err error) ReloadEvent {
	if err == nil && report != nil && report.Status == build.StatusSuccess {
		return ReloadEvent{Status: StatusSuccess}
	}

	ev := ReloadEvent{Status: StatusError}
	if report != nil {
		for _, n := range report.Failed() {
			if n.Err != nil {
				ev.Errors = append(ev.Errors, n.Err.Error())
			}
		}
	}
	if err != nil {
		ev.Errors = append(ev.Errors, err.Error())
	}
	return ev
}

// ReloadHub keeps the set of live-reload clients and broadcasts events to
// them. Late joiners do not receive earlier events.
type ReloadHub struct {
	clients  map[*websocket.Conn]bool
	mu       sync.Mutex
	sendMu   sync.Mutex
	sequence uint64
	upgrader websocket.Upgrader
	metrics  *metrics.Collectors
	log      *slog.Logger
}

// NewReloadHub creates an empty hub. m and logger may be nil.
func NewReloadHub(m *metrics.Collectors, logger *slog.Logger) *ReloadHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadHub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
		metrics: m,
		log:     logger,
	}
}

// HandleWebSocket upgrades the request and holds the connection until the
// client goes away.
func (h *ReloadHub) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.log.Debug("reload upgrade failed", "error", err)
		return
	}
	h.add(conn)

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
}

func (h *ReloadHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetReloadClients(n)
}

func (h *ReloadHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.metrics.SetReloadClients(n)
	}
}

// Publish assigns ev the next sequence number and sends it to every
// connected client. Clients whose write fails are dropped.
func (h *ReloadHub) Publish(ev ReloadEvent) ReloadEvent {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	h.sequence++
	ev.Sequence = h.sequence
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	h.metrics.ReloadEvent(ev.Status)

	data, err := json.Marshal(ev)
	if err != nil {
		return ev
	}
	for _, client := range clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(client)
		}
	}
	h.log.Debug("reload published", "sequence", ev.Sequence, "status", ev.Status, "clients", len(clients))
	return ev
}

// PublishReport publishes the event for a finished run.
func (h *ReloadHub) PublishReport(report *build.Report, err error) ReloadEvent {
	return h.Publish(EventFromReport(report, err))
}

// ClientCount returns the number of connected clients.
func (h *ReloadHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *ReloadHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.metrics.SetReloadClients(0)
}

// DevClientScript is injected into served HTML when autoreload is on.
const DevClientScript = `
<script>
(function() {
    'use strict';

    var reconnectDelay = 1000;
    var maxReconnectDelay = 30000;
    var ws = null;
    var lastSequence = 0;

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        ws = new WebSocket(protocol + '//' + location.host + '/_spindle/reload');

        ws.onopen = function() {
            console.log('[spindle] Hot reload connected');
            reconnectDelay = 1000;
        };

        ws.onmessage = function(e) {
            var msg;
            try {
                msg = JSON.parse(e.data);
            } catch (err) {
                return;
            }

            if (msg.sequence <= lastSequence) {
                return;
            }
            lastSequence = msg.sequence;

            if (msg.status === 'error') {
                console.error('[spindle] Build failed');
                showErrorOverlay((msg.errors || []).join('\n\n'));
                return;
            }
            console.log('[spindle] Reloading...');
            location.reload();
        };

        ws.onclose = function() {
            console.log('[spindle] Connection lost, reconnecting in', reconnectDelay + 'ms');
            setTimeout(function() {
                reconnectDelay = Math.min(reconnectDelay * 2, maxReconnectDelay);
                connect();
            }, reconnectDelay);
        };

        ws.onerror = function() {
            ws.close();
        };
    }

    function showErrorOverlay(error) {
        clearErrorOverlay();

        var overlay = document.createElement('div');
        overlay.id = 'spindle-error-overlay';
        overlay.style.cssText = 'position:fixed;top:0;left:0;right:0;bottom:0;background:rgba(0,0,0,0.9);color:#fff;font-family:monospace;font-size:14px;padding:20px;overflow:auto;z-index:999999;';

        var content = document.createElement('div');
        content.style.cssText = 'max-width:800px;margin:0 auto;';

        var title = document.createElement('h2');
        title.style.cssText = 'color:#ff5555;margin:0 0 20px;';
        title.textContent = 'Build Error';
        overlay.onclick = clearErrorOverlay;

        var pre = document.createElement('pre');
        pre.style.cssText = 'white-space:pre-wrap;word-wrap:break-word;background:#1a1a1a;padding:20px;border-radius:8px;border:1px solid #333;';
        pre.textContent = error;

        var hint = document.createElement('p');
        hint.style.cssText = 'margin-top:20px;color:#888;';
        hint.textContent = 'Fix the error and save to reload.';

        content.appendChild(title);
        content.appendChild(pre);
        content.appendChild(hint);
        overlay.appendChild(content);
        document.body.appendChild(overlay);
    }

    function clearErrorOverlay() {
        var overlay = document.getElementById('spindle-error-overlay');
        if (overlay) {
            overlay.remove();
        }
    }

    connect();
})();
</script>
`
