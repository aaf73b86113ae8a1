// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package translator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
	"github.com/AleutianAI/kbchat/services/gateway/provider"
)

// =============================================================================
// Test Setup
// =============================================================================

// prefixResolver resolves gs:// references to a signed-looking URL and
// forwards everything else, mimicking the production fail-soft contract.
type prefixResolver struct{}

func (prefixResolver) Resolve(_ context.Context, rawURI string) string {
	return "https://signed.example/" + rawURI
}

// eventCollector records emitted events and optionally fails.
type eventCollector struct {
	events  []datatypes.StreamEvent
	failWith error
}

func (c *eventCollector) emit(ev datatypes.StreamEvent) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *eventCollector) types() []datatypes.EventType {
	out := make([]datatypes.EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func newTestTranslator(c *eventCollector) *Translator {
	return New("sess-1", prefixResolver{}, c.emit)
}

// =============================================================================
// Handle Tests
// =============================================================================

// TestTranslator_TextDeltas verifies chunks are emitted in order and the
// answer accumulates.
func TestTranslator_TextDeltas(t *testing.T) {
	c := &eventCollector{}
	tr := newTestTranslator(c)
	ctx := context.Background()

	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindTextDelta, Text: "The answer"}))
	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindTextDelta, Text: " is 42."}))

	result, err := tr.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", result.Text)
	assert.Equal(t, 2, result.Chunks)

	require.Len(t, c.events, 2)
	assert.Equal(t, "The answer", c.events[0].Content)
	assert.Equal(t, " is 42.", c.events[1].Content)
}

// TestTranslator_CitationResolvedAndEmitted verifies references are run
// through the resolver before reaching the client.
func TestTranslator_CitationResolvedAndEmitted(t *testing.T) {
	c := &eventCollector{}
	tr := newTestTranslator(c)
	ctx := context.Background()

	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindTextDelta, Text: "x"}))
	require.NoError(t, tr.Handle(ctx, provider.Event{
		Kind: provider.KindCitation,
		References: []provider.Reference{
			{URI: "gs://kb/a.pdf", Title: "Doc A", Snippet: "snippet"},
		},
	}))

	require.Len(t, c.events, 2)
	citation := c.events[1]
	assert.Equal(t, datatypes.EventCitation, citation.Type)
	require.NotNil(t, citation.Citation)
	assert.Equal(t, "https://signed.example/gs://kb/a.pdf", citation.Citation.URL)
	assert.Equal(t, "Doc A", citation.Citation.Title)

	result, err := tr.Finalize()
	require.NoError(t, err)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "https://signed.example/gs://kb/a.pdf", result.Citations[0].URL)
}

// TestTranslator_DeduplicatesByResolvedURL verifies a repeated reference
// is only delivered once per turn.
func TestTranslator_DeduplicatesByResolvedURL(t *testing.T) {
	c := &eventCollector{}
	tr := newTestTranslator(c)
	ctx := context.Background()

	refs := []provider.Reference{{URI: "gs://kb/a.pdf"}}
	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindTextDelta, Text: "x"}))
	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindCitation, References: refs}))
	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindCitation, References: refs}))

	result, err := tr.Finalize()
	require.NoError(t, err)
	assert.Len(t, result.Citations, 1)
	assert.Len(t, c.events, 2, "chunk plus a single citation event")
}

// TestTranslator_DropsReferenceWithoutURI verifies empty-URI references
// produce no client event.
func TestTranslator_DropsReferenceWithoutURI(t *testing.T) {
	c := &eventCollector{}
	tr := newTestTranslator(c)
	ctx := context.Background()

	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindTextDelta, Text: "x"}))
	require.NoError(t, tr.Handle(ctx, provider.Event{
		Kind:       provider.KindCitation,
		References: []provider.Reference{{Title: "no uri"}},
	}))

	result, err := tr.Finalize()
	require.NoError(t, err)
	assert.Empty(t, result.Citations)
	assert.Len(t, c.events, 1)
}

// TestTranslator_SessionTokenEmitsLocalSessionID verifies the metadata
// event carries the gateway session id, never the upstream token.
func TestTranslator_SessionTokenEmitsLocalSessionID(t *testing.T) {
	c := &eventCollector{}
	tr := newTestTranslator(c)
	ctx := context.Background()

	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindTextDelta, Text: "x"}))
	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindSessionToken, SessionToken: "upstream-secret"}))

	require.Len(t, c.events, 2)
	meta := c.events[1]
	assert.Equal(t, datatypes.EventMetadata, meta.Type)
	assert.Equal(t, "sess-1", meta.SessionId)
	assert.NotContains(t, meta.SessionId, "upstream-secret")

	result, err := tr.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "upstream-secret", result.SessionToken)
}

// TestTranslator_UnknownEventsDropped verifies unknown events produce no
// client event and do not fail the stream.
func TestTranslator_UnknownEventsDropped(t *testing.T) {
	c := &eventCollector{}
	tr := newTestTranslator(c)
	ctx := context.Background()

	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindUnknown, Raw: []byte(`{"x":1}`)}))
	require.NoError(t, tr.Handle(ctx, provider.Event{Kind: provider.KindTextDelta, Text: "x"}))

	assert.Equal(t, []datatypes.EventType{datatypes.EventChunk}, c.types())
}

// TestTranslator_EmitErrorPropagates verifies a delivery failure aborts
// the stream callback.
func TestTranslator_EmitErrorPropagates(t *testing.T) {
	sentinel := errors.New("client gone")
	c := &eventCollector{failWith: sentinel}
	tr := newTestTranslator(c)

	err := tr.Handle(context.Background(), provider.Event{Kind: provider.KindTextDelta, Text: "x"})
	assert.ErrorIs(t, err, sentinel)
}

// =============================================================================
// Finalize Tests
// =============================================================================

// TestTranslator_Finalize_EmptyAnswer verifies a stream with no text
// deltas reports ErrEmptyAnswer, even when citations arrived.
func TestTranslator_Finalize_EmptyAnswer(t *testing.T) {
	c := &eventCollector{}
	tr := newTestTranslator(c)
	ctx := context.Background()

	require.NoError(t, tr.Handle(ctx, provider.Event{
		Kind:       provider.KindCitation,
		References: []provider.Reference{{URI: "gs://kb/a.pdf"}},
	}))

	_, err := tr.Finalize()
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}
