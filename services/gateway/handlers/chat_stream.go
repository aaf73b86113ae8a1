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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
	"github.com/AleutianAI/kbchat/services/gateway/observability"
	"github.com/AleutianAI/kbchat/services/gateway/orchestrator"
)

// DefaultHeartbeatInterval is how often keepalive comments are sent on
// an idle SSE stream. Below common proxy idle timeouts (Nginx 60s).
const DefaultHeartbeatInterval = 15 * time.Second

// ChatStreamHandler serves POST /v1/chat/stream: one request, one turn,
// one SSE event stream back.
//
// # Description
//
// This is the single-turn fallback transport for clients that cannot
// hold a WebSocket (restrictive proxies, EventSource-based frontends).
// The event sequence is identical to the WebSocket transport.
type ChatStreamHandler struct {
	runner    orchestrator.TurnRunner
	heartbeat time.Duration
}

// NewChatStreamHandler creates a ChatStreamHandler. A non-positive
// heartbeat falls back to DefaultHeartbeatInterval.
func NewChatStreamHandler(runner orchestrator.TurnRunner, heartbeat time.Duration) *ChatStreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &ChatStreamHandler{runner: runner, heartbeat: heartbeat}
}

// HandleChatStream handles POST /v1/chat/stream.
//
// # Description
//
// Executes one conversation turn and streams the protocol events back as
// SSE. Malformed JSON is the only plain-HTTP failure (400); everything
// after the body parse is reported in-stream so the client has a single
// error-handling path.
//
// # Inputs
//
//   - c: Gin context. Body is a datatypes.ChatRequest.
func (h *ChatStreamHandler) HandleChatStream(c *gin.Context) {
	// Step 1: Parse request body
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("rejecting malformed chat stream body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// Step 2: Set SSE headers and create writer
	SetSSEHeaders(c.Writer)
	writer, err := NewEventWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	// Step 3: Start heartbeat to prevent proxy idle timeouts. The loop
	// must be joined before returning so no keepalive touches the
	// response writer after the handler ends.
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.heartbeatLoop(writer, done)
	}()
	defer func() {
		close(done)
		<-stopped
	}()

	// Step 4: Run the turn; the orchestrator emits the full sequence
	if _, err := h.runner.Run(c.Request.Context(), req, observability.TransportSSE, writer.WriteEvent); err != nil {
		slog.Info("chat stream abandoned while queued",
			"session_id", req.SessionId,
			"error", err,
		)
	}
}

func (h *ChatStreamHandler) heartbeatLoop(writer EventWriter, done <-chan struct{}) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(observability.TransportSSE)
			}
		case <-done:
			return
		}
	}
}
