// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides wire types for the KB chat gateway.
//
// This file defines the client protocol: the ordered event stream a browser
// session observes for one conversation turn, regardless of transport
// (WebSocket or SSE). The protocol is the only contract the client depends
// on; upstream provider event shapes never leak through it.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a client protocol event.
type EventType string

const (
	// EventStart opens a turn. Always the first event; lets the client
	// clear pending UI state before any content arrives.
	EventStart EventType = "start"

	// EventMetadata carries the local session identifier once the upstream
	// provider has established (or resumed) its own conversation context.
	EventMetadata EventType = "metadata"

	// EventChunk carries one text delta of the generated answer.
	EventChunk EventType = "chunk"

	// EventCitation carries a single resolved source citation.
	EventCitation EventType = "citation"

	// EventCitations carries the full citation list in arrival order.
	EventCitations EventType = "citations"

	// EventDone terminates a successful turn. Last event of the turn.
	EventDone EventType = "done"

	// EventError terminates a failed turn, or reports a non-fatal
	// transport-level rejection (rate limit, malformed message).
	EventError EventType = "error"

	// EventRegistered acknowledges a WebSocket register control message.
	EventRegistered EventType = "registered"
)

// Citation is a reference to a source document backing part of an answer.
//
// URL is the client-fetchable form: a signed URL when resolution succeeded,
// or the raw storage reference when it did not (resolution fails soft).
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// StreamEvent is one client protocol event as serialized on the wire.
//
// Exactly the fields relevant to the Type are populated; everything else is
// omitted. Id and CreatedAt are assigned by the event writer for ordering
// and client-side deduplication.
type StreamEvent struct {
	Type      EventType  `json:"type"`
	Id        string     `json:"id,omitempty"`
	CreatedAt int64      `json:"created_at,omitempty"`
	SessionId string     `json:"sessionId,omitempty"`
	Content   string     `json:"content,omitempty"`
	Citation  *Citation  `json:"citation,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Stamp populates the event's Id and CreatedAt if unset.
func (e *StreamEvent) Stamp() {
	if e.Id == "" {
		e.Id = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
}

// StartEvent returns the turn-opening event.
func StartEvent() StreamEvent {
	return StreamEvent{Type: EventStart}
}

// MetadataEvent returns a metadata event carrying the local session id.
func MetadataEvent(sessionID string) StreamEvent {
	return StreamEvent{Type: EventMetadata, SessionId: sessionID}
}

// ChunkEvent returns a chunk event carrying one text delta.
func ChunkEvent(content string) StreamEvent {
	return StreamEvent{Type: EventChunk, Content: content}
}

// CitationEvent returns a citation event for a single resolved reference.
func CitationEvent(c Citation) StreamEvent {
	return StreamEvent{Type: EventCitation, Citation: &c}
}

// CitationsEvent returns the aggregate citation list event.
func CitationsEvent(cs []Citation) StreamEvent {
	return StreamEvent{Type: EventCitations, Citations: cs}
}

// DoneEvent returns the turn-closing event.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// ErrorEvent returns an error event with a client-safe message.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// RegisteredEvent returns the register acknowledgment.
func RegisteredEvent(sessionID string) StreamEvent {
	return StreamEvent{Type: EventRegistered, SessionId: sessionID}
}
