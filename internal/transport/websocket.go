// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "unravel/internal/log"
)

// maxPublishRate caps how often frames are pushed to clients. Browsers
// render at 60Hz at best; anything faster just burns bandwidth.
const maxPublishRate = 30 * time.Millisecond

// WebSocketPublisher broadcasts spectral frames as JSON to every
// connected WebSocket client. Frames are copied synchronously in Publish
// and marshaled/sent from a dedicated goroutine, so the caller never
// touches the network.
type WebSocketPublisher struct {
	server   *http.Server
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	queue    chan *SpectralFrame
	lastSent time.Time
}

var _ Publisher = (*WebSocketPublisher)(nil)

// NewWebSocketPublisher starts an HTTP server on addr serving WebSocket
// upgrades at /spectral and begins the broadcast loop.
func NewWebSocketPublisher(addr string) *WebSocketPublisher {
	p := &WebSocketPublisher{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
		queue:   make(chan *SpectralFrame, 8),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/spectral", p.handleUpgrade)
	p.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		applog.Infof("transport: WebSocket publisher listening on %s", addr)
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("transport: WebSocket server error: %v", err)
		}
	}()
	go p.broadcastLoop()

	return p
}

// Publish queues a copy of the frame for broadcast. Frames arriving faster
// than the publish rate, or while the queue is full, are dropped.
func (p *WebSocketPublisher) Publish(frame *SpectralFrame) error {
	now := time.Now()
	if now.Sub(p.lastSent) < maxPublishRate {
		return nil
	}
	p.lastSent = now

	cp := &SpectralFrame{
		SampleRate: frame.SampleRate,
		FFTSize:    frame.FFTSize,
		Magnitudes: append([]float64(nil), frame.Magnitudes...),
		TonalMask:  append([]float64(nil), frame.TonalMask...),
		NoiseMask:  append([]float64(nil), frame.NoiseMask...),
	}

	select {
	case p.queue <- cp:
	default:
		// Queue full: drop. Visualization frames are disposable.
	}
	return nil
}

// Close shuts down the server and disconnects all clients.
func (p *WebSocketPublisher) Close() error {
	close(p.queue)

	p.clientsMu.Lock()
	for client := range p.clients {
		client.Close()
	}
	p.clients = make(map[*websocket.Conn]bool)
	p.clientsMu.Unlock()

	if p.server != nil {
		return p.server.Close()
	}
	return nil
}

func (p *WebSocketPublisher) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("transport: WebSocket upgrade failed: %v", err)
		return
	}

	p.clientsMu.Lock()
	p.clients[conn] = true
	total := len(p.clients)
	p.clientsMu.Unlock()
	applog.Infof("transport: client connected, total: %d", total)

	// Reads are only needed to observe the close handshake.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				p.clientsMu.Lock()
				delete(p.clients, conn)
				total := len(p.clients)
				p.clientsMu.Unlock()
				conn.Close()
				applog.Infof("transport: client disconnected, total: %d", total)
				return
			}
		}
	}()
}

func (p *WebSocketPublisher) broadcastLoop() {
	for frame := range p.queue {
		p.clientsMu.Lock()
		for client := range p.clients {
			if err := client.WriteJSON(frame); err != nil {
				applog.Warnf("transport: dropping client: %v", err)
				client.Close()
				delete(p.clients, client)
			}
		}
		p.clientsMu.Unlock()
	}
}
