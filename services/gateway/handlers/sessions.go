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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/kbchat/services/gateway/store"
)

// SessionHandler exposes read and delete access to per-session state for
// operators and integration tests.
type SessionHandler struct {
	history       store.HistoryStore
	continuations store.ContinuationStore
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(history store.HistoryStore, continuations store.ContinuationStore) *SessionHandler {
	return &SessionHandler{history: history, continuations: continuations}
}

// HandleListSessions handles GET /v1/sessions.
//
// Returns the known session identifiers, unordered.
func (h *SessionHandler) HandleListSessions(c *gin.Context) {
	ids, err := h.history.SessionIDs(c.Request.Context())
	if err != nil {
		slog.Error("session list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": ids,
		"count":    len(ids),
	})
}

// HandleGetHistory handles GET /v1/sessions/:id/history.
//
// Returns the session's turns in insertion order, 404 for an unknown
// session.
func (h *SessionHandler) HandleGetHistory(c *gin.Context) {
	sessionID := c.Param("sessionId")

	turns, err := h.history.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		slog.Error("history read failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"history":   turns,
	})
}

// HandleDeleteSession handles DELETE /v1/sessions/:id.
//
// Removes both the history and the upstream continuation token, so the
// next turn starts a fresh conversation end to end. Idempotent.
func (h *SessionHandler) HandleDeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	ctx := c.Request.Context()

	if err := h.history.Delete(ctx, sessionID); err != nil {
		slog.Error("history delete failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
		return
	}
	if err := h.continuations.Delete(ctx, sessionID); err != nil {
		slog.Error("continuation delete failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
		return
	}

	slog.Info("session deleted", "session_id", sessionID)
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "deleted": true})
}
