// Package server exposes the live analysis stream to external visualizers
// over websocket, plus status and health endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Config is the server's listening setup.
type Config struct {
	Port int
}

// client is one connected visualizer. Its write mutex keeps the fan-out loop,
// the ping loop, and snapshot replies from interleaving frames on the wire.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, payload)
}

func (c *client) sendJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(websocket.TextMessage, data)
}

// Server fans pipeline messages out to connected websocket clients and serves
// status/config snapshots over plain HTTP.
type Server struct {
	upgrader   websocket.Upgrader
	cfg        Config
	logger     *zap.Logger
	statusFn   func() map[string]any
	snapshotFn func() any
	configFn   func() map[string]any

	mu      sync.Mutex
	clients map[*client]struct{}
}

// Run serves until ctx is cancelled. messages are fanned out to every
// connected client; a nil result from snapshotFn means no frame yet.
func Run(ctx context.Context, cfg Config, logger *zap.Logger, messages <-chan any, statusFn func() map[string]any, snapshotFn func() any, configFn func() map[string]any) error {
	srv := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:        cfg,
		logger:     logger,
		statusFn:   statusFn,
		snapshotFn: snapshotFn,
		configFn:   configFn,
		clients:    make(map[*client]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/config", srv.handleConfig)
	mux.HandleFunc("/status", srv.handleStatus)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.fanout(ctx, messages)

	srv.logger.Info("visualizer server listening", zap.Int("port", cfg.Port))
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	// new clients get the current config before any frame traffic
	if s.configFn != nil {
		if cfg := s.configFn(); cfg != nil {
			_ = c.sendJSON(cfg)
		}
	}

	go s.serveClient(c)
}

// serveClient owns the client's read side and its keepalive pings. It returns
// when the peer goes away or a ping write fails.
func (s *Server) serveClient(c *client) {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.send(websocket.PingMessage, nil); err != nil {
					_ = c.conn.Close()
					return
				}
			}
		}
	}()
	defer close(stop)
	defer s.drop(c)

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var req map[string]any
		if err := json.Unmarshal(payload, &req); err != nil {
			continue
		}
		if req["type"] == "snapshot_request" && s.snapshotFn != nil {
			if snapshot := s.snapshotFn(); snapshot != nil {
				_ = c.sendJSON(snapshot)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{"port": s.cfg.Port}
	if s.configFn != nil {
		if cfg := s.configFn(); cfg != nil {
			payload = cfg
		}
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		metrics["ws_clients"] = s.clientCount()
	} else {
		payload["ws_clients"] = s.clientCount()
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// fanout pushes each pipeline message to every client, evicting the ones
// whose writes fail. A closed messages channel ends the loop.
func (s *Server) fanout(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				s.logger.Warn("broadcast encode failed", zap.Error(err))
				continue
			}
			for _, c := range s.clientList() {
				if err := c.send(websocket.TextMessage, payload); err != nil {
					s.drop(c)
				}
			}
		}
	}
}

func (s *Server) clientList() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	_ = c.conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
