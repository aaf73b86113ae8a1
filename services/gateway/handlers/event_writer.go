// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gateway's HTTP-facing transports: the
// WebSocket endpoint, the SSE streaming endpoint, session administration,
// and health.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EventWriter writes client protocol events to an SSE response.
//
// # Description
//
// EventWriter abstracts SSE serialization away from the streaming
// handler. Each event is stamped with an Id (UUID v4) and a CreatedAt
// timestamp before writing, and flushed immediately.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the turn emits events
// from the stream-consuming goroutine while keepalives come from a
// ticker goroutine.
type EventWriter interface {
	// WriteEvent stamps, serializes, and writes one event, flushing
	// immediately. Returns a non-nil error when the connection is gone.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteKeepAlive sends an SSE comment line (": ping") to keep the
	// connection alive through proxies and load balancers. Comments are
	// ignored by SSE clients.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseEventWriter implements EventWriter over an http.ResponseWriter.
//
// Events are written in the SSE wire format:
//
//	event: {type}
//	data: {json}
//
// # Limitations
//
//   - Requires http.Flusher support from the ResponseWriter.
//   - Cannot be reused across requests.
type sseEventWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

var _ EventWriter = (*sseEventWriter)(nil)

// NewEventWriter creates an EventWriter for the given ResponseWriter.
// The caller must have set SSE headers via SetSSEHeaders first.
func NewEventWriter(w http.ResponseWriter) (EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseEventWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent stamps and writes one event in SSE format.
func (w *sseEventWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Stamp()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment line.
func (w *sseEventWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
// Must be called before any response body write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
