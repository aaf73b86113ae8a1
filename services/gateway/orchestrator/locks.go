// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"sync"

	"github.com/AleutianAI/kbchat/services/gateway/observability"
)

// sessionLocks serializes turns per session with a cancellable,
// channel-based lock. Entries are reference counted and removed once the
// last waiter releases, so idle sessions cost nothing.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the session lock is held or ctx ends. On success
// the returned release function must be called exactly once.
func (s *sessionLocks) acquire(ctx context.Context, sessionID string, metrics *observability.GatewayMetrics) (func(), error) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		s.entries[sessionID] = e
	}
	e.refs++
	contended := ok
	s.mu.Unlock()

	if contended && metrics != nil {
		metrics.TurnQueued()
		defer metrics.TurnDequeued()
	}

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			s.unref(sessionID, e)
		}, nil
	case <-ctx.Done():
		s.unref(sessionID, e)
		return nil, ctx.Err()
	}
}

func (s *sessionLocks) unref(sessionID string, e *lockEntry) {
	s.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()
}
