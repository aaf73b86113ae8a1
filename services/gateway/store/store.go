// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store holds the per-session state kept by the gateway: the
// bounded conversation history and the upstream provider's continuation
// token. Both stores are keyed by the opaque client-supplied session
// identifier and expose a uniform get/set/delete contract so a persistent
// backing store can be swapped in without touching the orchestrator.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
)

// ErrNotFound is returned when no value exists for a session.
var ErrNotFound = errors.New("session not found")

// HistoryStore keeps the ordered conversation history per session,
// oldest turn first. Implementations enforce the configured maximum
// length on Set by evicting the oldest turns (FIFO truncation).
type HistoryStore interface {
	// Get returns the session's turns in insertion order.
	// Returns ErrNotFound for an unknown session.
	Get(ctx context.Context, sessionID string) ([]datatypes.Turn, error)

	// Set replaces the session's history, truncating to the configured
	// maximum by dropping the oldest turns first. Last write wins.
	Set(ctx context.Context, sessionID string, turns []datatypes.Turn) error

	// Delete removes the session's history. Deleting an unknown session
	// is a no-op.
	Delete(ctx context.Context, sessionID string) error

	// SessionIDs lists the known session identifiers, unordered.
	SessionIDs(ctx context.Context) ([]string, error)
}

// ContinuationStore keeps the upstream provider's continuation token per
// session, enabling provider-side multi-turn context. Absent token means
// a fresh upstream context.
type ContinuationStore interface {
	// Get returns the stored token. Returns ErrNotFound when the session
	// has no token yet.
	Get(ctx context.Context, sessionID string) (string, error)

	// Set stores the token. Last write wins.
	Set(ctx context.Context, sessionID, token string) error

	// Delete removes the session's token. Unknown session is a no-op.
	Delete(ctx context.Context, sessionID string) error
}
