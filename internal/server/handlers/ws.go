package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const broadcastInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Broadcaster pushes stats_update and system_update frames to connected
// WebSocket clients every 5s.
type Broadcaster struct {
	deps *Deps

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewBroadcaster constructs a Broadcaster bound to deps.
func NewBroadcaster(deps *Deps) *Broadcaster {
	return &Broadcaster{deps: deps, clients: map[*websocket.Conn]struct{}{}}
}

// ServeWS upgrades the connection and registers it for broadcast.
func (b *Broadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.deps.Log.Warn("ws: upgrade failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	// Drain reads so ping/pong and close frames are processed; this
	// connection is push-only from the server's perspective.
	go func() {
		defer b.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	_ = conn.Close()
}

// Run broadcasts stats_update/system_update frames every 5s until ctx is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.broadcastOnce(ctx)
		}
	}
}

func (b *Broadcaster) broadcastOnce(ctx context.Context) {
	stats, err := b.deps.Store.GetStats(ctx, nowUnix())
	if err != nil {
		b.deps.Log.Error("ws: get stats", zap.Error(err))
		return
	}
	statsFrame, _ := json.Marshal(map[string]any{
		"type": "stats_update",
		"data": stats,
	})

	health, _ := b.deps.Store.LatestSystemHealth(ctx)
	systemFrame, _ := json.Marshal(map[string]any{
		"type": "system_update",
		"data": health,
	})

	b.send(statsFrame)
	b.send(systemFrame)
}

func (b *Broadcaster) send(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			delete(b.clients, conn)
			_ = conn.Close()
		}
	}
}
