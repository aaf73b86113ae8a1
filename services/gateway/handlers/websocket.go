// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
	"github.com/AleutianAI/kbchat/services/gateway/observability"
	"github.com/AleutianAI/kbchat/services/gateway/orchestrator"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// maxWSMessageBytes bounds a single inbound frame. Covers the 32KB
	// message limit plus JSON envelope overhead.
	maxWSMessageBytes = 64 * 1024

	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before declaring the
	// connection dead.
	pongWait = 60 * time.Second

	// pingInterval must be under pongWait.
	pingInterval = (pongWait * 9) / 10

	// Inbound chat message rate per connection.
	msgRatePerSecond = 2
	msgRateBurst     = 5
)

// Inbound message types a client may send.
const (
	msgTypeRegister = "register"
	msgTypeChat     = "chat"
)

// wsClientMessage is the inbound WebSocket envelope, dispatched on type
// like the outbound protocol events.
type wsClientMessage struct {
	Type      string           `json:"type"`
	SessionId string           `json:"sessionId,omitempty"`
	Message   string           `json:"message,omitempty"`
	History   []datatypes.Turn `json:"history,omitempty"`
}

// =============================================================================
// Connection Wrapper
// =============================================================================

// wsConn serializes writes to one WebSocket connection and stamps every
// outbound protocol event.
//
// # Thread Safety
//
// Safe for concurrent use. Turn events, error replies, and pings all
// funnel through the write mutex.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WriteEvent stamps and sends one protocol event as a JSON text frame.
func (c *wsConn) WriteEvent(event datatypes.StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	event.Stamp()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(event)
}

// Ping sends a ping control frame.
func (c *wsConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// =============================================================================
// Connection Registry
// =============================================================================

// ConnRegistry tracks the live connection registered for each session.
// A session re-registering from a new connection displaces the old entry
// (last register wins); the displaced connection stays open but no
// longer receives session-addressed pushes.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*wsConn
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]*wsConn)}
}

func (r *ConnRegistry) register(sessionID string, c *wsConn) {
	r.mu.Lock()
	r.conns[sessionID] = c
	r.mu.Unlock()
}

// unregister removes the session entry only if it still points at c.
func (r *ConnRegistry) unregister(sessionID string, c *wsConn) {
	r.mu.Lock()
	if r.conns[sessionID] == c {
		delete(r.conns, sessionID)
	}
	r.mu.Unlock()
}

// Lookup returns the connection registered for the session, if any.
func (r *ConnRegistry) Lookup(sessionID string) (*wsConn, bool) {
	r.mu.RLock()
	c, ok := r.conns[sessionID]
	r.mu.RUnlock()
	return c, ok
}

// Count returns the number of registered sessions.
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// =============================================================================
// Handler
// =============================================================================

// WSHandler serves GET /v1/chat/ws, the duplex session transport.
//
// # Description
//
// One connection serves many turns. The client protocol is a JSON
// envelope dispatched on its type field:
//
//	{"type": "register", "sessionId": "sess-1"}   -> registered ack
//	{"type": "chat", "sessionId": "sess-1", "message": "..."}
//
// Outbound turn events are routed through the session's registry binding
// when one exists, so a client that re-registers from a new connection
// mid-turn receives the rest of the stream there; an unregistered chat
// streams back on its originating connection. Turns run off the read
// loop so pings and pongs keep flowing during a long generation; turns
// for the same session still serialize inside the orchestrator.
type WSHandler struct {
	runner   orchestrator.TurnRunner
	registry *ConnRegistry
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler.
//
// allowedOrigins restricts the Origin header on upgrade; an empty list
// accepts any origin (development mode).
func NewWSHandler(runner orchestrator.TurnRunner, registry *ConnRegistry, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WSHandler{
		runner:   runner,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// HandleWS upgrades the connection and runs the session loop.
func (h *WSHandler) HandleWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	slog.Info("websocket client connected", "remote", ws.RemoteAddr().String())

	conn := &wsConn{conn: ws}
	ws.SetReadLimit(maxWSMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Connection lifetime context: ends when the read loop exits. An
	// in-flight turn keeps running; this only releases turns still
	// queued behind a busy session.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.pingLoop(ctx, conn)

	h.readLoop(ctx, conn)
}

// sessionEmit routes one turn's outbound events through the session's
// current registry binding, resolved per event so a mid-turn reconnect
// picks up the rest of the stream. A session that never registered falls
// back to the connection the chat arrived on.
func (h *WSHandler) sessionEmit(sessionID string, origin *wsConn) func(datatypes.StreamEvent) error {
	return func(ev datatypes.StreamEvent) error {
		if bound, ok := h.registry.Lookup(sessionID); ok {
			return bound.WriteEvent(ev)
		}
		return origin.WriteEvent(ev)
	}
}

func (h *WSHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(observability.TransportWebSocket)
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop reads and routes inbound messages until the connection dies.
func (h *WSHandler) readLoop(ctx context.Context, conn *wsConn) {
	limiter := rate.NewLimiter(rate.Limit(msgRatePerSecond), msgRateBurst)

	// Tracks the sessions this connection registered, for cleanup.
	registered := make(map[string]struct{})
	defer func() {
		for sessionID := range registered {
			h.registry.unregister(sessionID, conn)
		}
	}()

	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		_, payload, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket closed unexpectedly", "error", err)
			} else {
				slog.Info("websocket client disconnected")
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Warn("dropping malformed websocket message", "error", err)
			if conn.WriteEvent(datatypes.ErrorEvent("Invalid message format")) != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case msgTypeRegister:
			if msg.SessionId == "" {
				if conn.WriteEvent(datatypes.ErrorEvent("Missing message or sessionId")) != nil {
					return
				}
				continue
			}
			h.registry.register(msg.SessionId, conn)
			registered[msg.SessionId] = struct{}{}
			slog.Info("session registered", "session_id", msg.SessionId)
			if conn.WriteEvent(datatypes.RegisteredEvent(msg.SessionId)) != nil {
				return
			}

		case msgTypeChat:
			if !limiter.Allow() {
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.TransportWebSocket, observability.ErrorCodeRateLimited)
				}
				if conn.WriteEvent(datatypes.ErrorEvent("Too many messages, slow down")) != nil {
					return
				}
				continue
			}

			req := datatypes.ChatRequest{
				Message:   msg.Message,
				SessionId: msg.SessionId,
				History:   msg.History,
			}
			turns.Add(1)
			go func() {
				defer turns.Done()
				emit := h.sessionEmit(req.SessionId, conn)
				if _, err := h.runner.Run(ctx, req, observability.TransportWebSocket, emit); err != nil {
					slog.Info("websocket turn abandoned while queued",
						"session_id", req.SessionId,
						"error", err,
					)
				}
			}()

		default:
			slog.Warn("unknown websocket message type", "type", msg.Type)
			if conn.WriteEvent(datatypes.ErrorEvent("Unknown message type")) != nil {
				return
			}
		}
	}
}
