// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the inbound chat request types shared by the WebSocket
// and SSE transports, plus the conversation Turn type persisted per session.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single chat message.
	// Per SEC-003: Unbounded message input mitigation.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxSessionIDBytes bounds the client-supplied session identifier.
	MaxSessionIDBytes = 256
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validator for message content size (SEC-003)
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Checks byte length (not rune count) to prevent
// memory exhaustion with large payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatRequest represents one chat submission for a session.
//
// # Description
//
// ChatRequest is the payload of a WebSocket `chat` message and of the
// POST /v1/chat/stream body. SessionId is an opaque client-supplied
// identifier; a session is created implicitly on first use. History is
// accepted for compatibility with stateless clients but ignored: the
// gateway is the source of truth for per-session history.
//
// # Validation
//
// Uses go-playground/validator:
//   - Message: required, max 32768 bytes (32KB) per SEC-003
//   - SessionId: required, max 256 bytes
//
// # Examples
//
//	req := ChatRequest{
//	    SessionId: "sess-8c21",
//	    Message:   "What is the return policy?",
//	}
//
// # Assumptions
//
//   - SessionId is stable across the turns of one browser session.
type ChatRequest struct {
	Message   string `json:"message" validate:"required,maxbytes"`
	SessionId string `json:"sessionId" validate:"required,max=256"`
	History   []Turn `json:"history,omitempty"`
}

// Validate validates the ChatRequest fields.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Conversation Turns
// =============================================================================

// Turn roles. A completed exchange is stored as a user Turn followed by an
// assistant Turn, appended together.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one immutable history entry: a role and its message content.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnResult is the completed outcome of one successful exchange: the full
// assistant answer and the citations delivered for it, in arrival order.
type TurnResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations,omitempty"`
}
