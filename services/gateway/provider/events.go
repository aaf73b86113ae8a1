// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider is the boundary to the managed retrieve-and-generate
// service. It exposes a streaming call that yields a closed set of typed
// events; the heterogeneous wire shapes of the upstream are decoded here,
// once, so nothing downstream ever inspects raw provider payloads.
package provider

import "encoding/json"

// Kind discriminates the closed set of provider event variants.
type Kind int

const (
	// KindUnknown marks a wire event that matched no recognized shape.
	// Unknown events are logged and dropped by the translator; they are
	// an explicit variant rather than an implicit fallthrough.
	KindUnknown Kind = iota

	// KindTextDelta carries one fragment of generated answer text.
	KindTextDelta

	// KindCitation carries one or more source references retrieved for
	// the answer.
	KindCitation

	// KindSessionToken carries the provider's continuation token for
	// resuming this conversation context in a later call.
	KindSessionToken
)

// String returns the variant name for logging.
func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text_delta"
	case KindCitation:
		return "citation"
	case KindSessionToken:
		return "session_token"
	default:
		return "unknown"
	}
}

// Reference is one retrieved source backing part of the answer. URI is the
// provider's opaque storage reference (e.g. gs://bucket/path/doc.pdf);
// Title and Snippet are optional display metadata.
type Reference struct {
	URI     string
	Title   string
	Snippet string
}

// Event is one decoded provider-native event. Exactly the fields implied
// by Kind are meaningful; Raw preserves the undecoded payload for
// KindUnknown so it can be logged.
type Event struct {
	Kind         Kind
	Text         string
	References   []Reference
	SessionToken string
	Raw          json.RawMessage
}
