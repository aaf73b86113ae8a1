// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package translator converts the provider's event sequence for one turn
// into the client protocol, accumulating the full answer as it goes.
package translator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
	"github.com/AleutianAI/kbchat/services/gateway/provider"
	"github.com/AleutianAI/kbchat/services/gateway/resolver"
)

// ErrEmptyAnswer marks a provider stream that completed without a single
// text delta. The orchestrator surfaces this as an error to the client
// instead of a done; it is distinct from an upstream invocation failure.
var ErrEmptyAnswer = errors.New("provider stream produced no content")

// EmitFunc delivers one client protocol event. A non-nil return aborts
// the stream, so callers that must survive a dead client absorb delivery
// failures instead of returning them.
type EmitFunc func(datatypes.StreamEvent) error

// Result is the accumulated outcome of one translated stream.
type Result struct {
	// Text is the full answer, the concatenation of every text delta in
	// arrival order.
	Text string

	// Citations are the resolved citations in arrival order, deduplicated
	// by resolved URL within this turn.
	Citations []datatypes.Citation

	// SessionToken is the provider's continuation token, empty if the
	// stream never carried one.
	SessionToken string

	// Chunks counts the text-delta events observed.
	Chunks int
}

// Translator consumes one provider event sequence and emits client
// protocol events in the same order.
//
// # Ordering
//
// Events are emitted synchronously from Handle, so client-visible order
// equals provider arrival order. Citation resolution happens inline
// before the citation event is emitted; with a slow resolver this delays
// subsequent events rather than reordering them.
//
// # Thread Safety
//
// Not safe for concurrent use. One Translator serves exactly one turn and
// is driven by the single stream-consuming goroutine.
type Translator struct {
	sessionID string
	resolver  resolver.Resolver
	emit      EmitFunc
	seen      map[string]struct{}
	result    Result
}

// New creates a Translator for one turn. sessionID is the local session
// identifier carried by metadata events (never the upstream token).
func New(sessionID string, res resolver.Resolver, emit EmitFunc) *Translator {
	return &Translator{
		sessionID: sessionID,
		resolver:  res,
		emit:      emit,
		seen:      make(map[string]struct{}),
	}
}

// EventFunc adapts the Translator to the provider callback contract.
func (t *Translator) EventFunc(ctx context.Context) provider.EventFunc {
	return func(ev provider.Event) error {
		return t.Handle(ctx, ev)
	}
}

// Handle translates one provider event. Dispatch is priority-ordered over
// the closed variant set; unrecognized events are logged and dropped
// without a client event.
func (t *Translator) Handle(ctx context.Context, ev provider.Event) error {
	switch ev.Kind {
	case provider.KindTextDelta:
		t.result.Text += ev.Text
		t.result.Chunks++
		return t.emit(datatypes.ChunkEvent(ev.Text))

	case provider.KindCitation:
		return t.handleCitation(ctx, ev.References)

	case provider.KindSessionToken:
		t.result.SessionToken = ev.SessionToken
		// The client sees its own session id, not the upstream token.
		return t.emit(datatypes.MetadataEvent(t.sessionID))

	default:
		slog.Debug("dropping unrecognized provider event",
			"session_id", t.sessionID,
			"payload", string(ev.Raw),
		)
		return nil
	}
}

// handleCitation resolves and emits each reference, deduplicating by
// resolved URL within the turn. References without a URI are dropped.
func (t *Translator) handleCitation(ctx context.Context, refs []provider.Reference) error {
	for _, ref := range refs {
		if ref.URI == "" {
			slog.Debug("dropping citation reference without URI", "session_id", t.sessionID)
			continue
		}

		url := t.resolver.Resolve(ctx, ref.URI)
		if _, dup := t.seen[url]; dup {
			continue
		}
		t.seen[url] = struct{}{}

		citation := datatypes.Citation{
			URL:     url,
			Title:   ref.Title,
			Snippet: ref.Snippet,
		}
		t.result.Citations = append(t.result.Citations, citation)
		if err := t.emit(datatypes.CitationEvent(citation)); err != nil {
			return err
		}
	}
	return nil
}

// Finalize closes the turn and returns the accumulated result.
// Returns ErrEmptyAnswer when the stream carried zero text deltas.
func (t *Translator) Finalize() (*Result, error) {
	if t.result.Chunks == 0 {
		return nil, ErrEmptyAnswer
	}
	return &t.result, nil
}
