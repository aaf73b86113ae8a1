// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provider

import "context"

// GenerateRequest is one retrieve-and-generate invocation. SessionToken is
// the provider's own continuation token from a previous turn; empty means
// a fresh upstream context.
type GenerateRequest struct {
	Query        string `json:"query"`
	SessionToken string `json:"session_token,omitempty"`
}

// EventFunc receives each decoded provider event in arrival order.
// Returning an error aborts the stream.
type EventFunc func(Event) error

// Streamer issues one streaming retrieve-and-generate call.
//
// The event sequence is lazy, finite and non-restartable: Stream returns
// after the upstream stream ends (nil) or fails (non-nil). A nil return
// with zero text-delta events delivered is the "empty answer" condition,
// which the caller must distinguish from success.
type Streamer interface {
	Stream(ctx context.Context, req GenerateRequest, fn EventFunc) error
}
