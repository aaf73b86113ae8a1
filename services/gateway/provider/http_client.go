// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxEventLineBytes bounds a single NDJSON event line from the provider.
// Large retrieved snippets fit comfortably; anything bigger is a protocol
// violation surfaced as a stream error.
const maxEventLineBytes = 1 * 1024 * 1024

// =============================================================================
// Wire Shapes
// =============================================================================

// wireEvent mirrors the provider's NDJSON event envelope. The upstream
// emits one JSON object per line, each carrying exactly one of the
// recognized payloads. Field-presence decides the variant; precedence is
// output > citation > session_token, matching upstream documentation.
type wireEvent struct {
	Output *struct {
		Text string `json:"text"`
	} `json:"output,omitempty"`
	Citation *struct {
		References []wireReference `json:"references"`
	} `json:"citation,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

type wireReference struct {
	Location struct {
		URI string `json:"uri"`
	} `json:"location"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// decode maps a raw NDJSON line to a typed Event. Lines matching none of
// the recognized shapes come back as KindUnknown with the raw payload
// attached for logging.
func decode(line []byte) Event {
	var we wireEvent
	if err := json.Unmarshal(line, &we); err != nil {
		return Event{Kind: KindUnknown, Raw: append(json.RawMessage(nil), line...)}
	}

	switch {
	case we.Output != nil:
		return Event{Kind: KindTextDelta, Text: we.Output.Text}
	case we.Citation != nil:
		refs := make([]Reference, 0, len(we.Citation.References))
		for _, r := range we.Citation.References {
			refs = append(refs, Reference{
				URI:     r.Location.URI,
				Title:   r.Title,
				Snippet: r.Snippet,
			})
		}
		return Event{Kind: KindCitation, References: refs}
	case we.SessionToken != "":
		return Event{Kind: KindSessionToken, SessionToken: we.SessionToken}
	default:
		return Event{Kind: KindUnknown, Raw: append(json.RawMessage(nil), line...)}
	}
}

// =============================================================================
// HTTP Client
// =============================================================================

// HTTPClient is the production Streamer: it calls the RAG service's
// streaming endpoint and decodes the NDJSON event stream line by line.
//
// # Thread Safety
//
// Safe for concurrent use; per-call state lives on the stack.
//
// # Limitations
//
//   - No retry: a failed stream is reported once and the turn fails.
//     The client owns resubmission.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an HTTPClient for the given service base URL.
// The http.Client must not enforce an overall request timeout; streaming
// calls are bounded by the caller's context instead.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Stream issues the retrieve-and-generate call and forwards each decoded
// event to fn in arrival order. Returns the first error from transport,
// decoding bounds, fn, or context cancellation.
func (c *HTTPClient) Stream(ctx context.Context, req GenerateRequest, fn EventFunc) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal generate request: %w", err)
	}

	url := c.baseURL + "/v1/retrieve-and-generate/stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call retrieve-and-generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bound the error body read; it is for logs only.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("retrieve-and-generate returned non-200",
			"status", resp.StatusCode,
			"body", string(msg),
		)
		return fmt.Errorf("retrieve-and-generate: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if err := fn(decode(line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read provider stream: %w", err)
	}
	return nil
}

var _ Streamer = (*HTTPClient)(nil)
