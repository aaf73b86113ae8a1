// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sync"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
)

// DefaultMaxTurns bounds a session's stored history when no explicit
// limit is configured. 20 turns keeps the most recent ten exchanges.
const DefaultMaxTurns = 20

// InMemoryHistory is a map-backed HistoryStore. State is lost on process
// restart; multi-instance deployments need a shared backing store instead.
type InMemoryHistory struct {
	mu       sync.RWMutex
	data     map[string][]datatypes.Turn
	maxTurns int
}

// NewInMemoryHistory creates an InMemoryHistory bounded at maxTurns per
// session. A non-positive maxTurns falls back to DefaultMaxTurns.
func NewInMemoryHistory(maxTurns int) *InMemoryHistory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &InMemoryHistory{
		data:     make(map[string][]datatypes.Turn),
		maxTurns: maxTurns,
	}
}

// MaxTurns returns the configured per-session history bound.
func (s *InMemoryHistory) MaxTurns() int {
	return s.maxTurns
}

// Get returns the session's turns in insertion order.
func (s *InMemoryHistory) Get(_ context.Context, sessionID string) ([]datatypes.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.data[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate stored state.
	out := make([]datatypes.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Set replaces the session's history, keeping only the newest maxTurns
// entries when the input exceeds the bound.
func (s *InMemoryHistory) Set(_ context.Context, sessionID string, turns []datatypes.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	stored := make([]datatypes.Turn, len(turns))
	copy(stored, turns)
	s.data[sessionID] = stored
	return nil
}

// Delete removes the session's history.
func (s *InMemoryHistory) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, sessionID)
	return nil
}

// SessionIDs lists the known session identifiers, unordered.
func (s *InMemoryHistory) SessionIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// InMemoryContinuations is a map-backed ContinuationStore.
type InMemoryContinuations struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryContinuations creates an empty InMemoryContinuations.
func NewInMemoryContinuations() *InMemoryContinuations {
	return &InMemoryContinuations{data: make(map[string]string)}
}

// Get returns the stored token for the session.
func (s *InMemoryContinuations) Get(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.data[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

// Set stores the token for the session.
func (s *InMemoryContinuations) Set(_ context.Context, sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[sessionID] = token
	return nil
}

// Delete removes the session's token.
func (s *InMemoryContinuations) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, sessionID)
	return nil
}

var (
	_ HistoryStore      = (*InMemoryHistory)(nil)
	_ ContinuationStore = (*InMemoryContinuations)(nil)
)
