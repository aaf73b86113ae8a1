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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

type wsFixture struct {
	server   *httptest.Server
	registry *ConnRegistry
	runner   *mockRunner
}

func newWSFixture(t *testing.T, runner *mockRunner) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := NewConnRegistry()
	router := gin.New()
	router.GET("/v1/chat/ws", NewWSHandler(runner, registry, nil).HandleWS)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, registry: registry, runner: runner}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) datatypes.StreamEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ev datatypes.StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// =============================================================================
// Tests
// =============================================================================

// TestWS_RegisterAck verifies the registered acknowledgment and registry
// bookkeeping.
func TestWS_RegisterAck(t *testing.T) {
	f := newWSFixture(t, &mockRunner{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":      "register",
		"sessionId": "sess-1",
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventRegistered, ev.Type)
	assert.Equal(t, "sess-1", ev.SessionId)
	assert.NotEmpty(t, ev.Id, "ack is stamped like every protocol event")

	_, ok := f.registry.Lookup("sess-1")
	assert.True(t, ok)
}

// TestWS_RegisterWithoutSessionID verifies the rejection path.
func TestWS_RegisterWithoutSessionID(t *testing.T) {
	f := newWSFixture(t, &mockRunner{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "register"}))

	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventError, ev.Type)
	assert.Equal(t, "Missing message or sessionId", ev.Message)
}

// TestWS_ChatStreamsTurn verifies a chat message produces the turn's
// event sequence on the same connection.
func TestWS_ChatStreamsTurn(t *testing.T) {
	runner := &mockRunner{Script: []datatypes.StreamEvent{
		datatypes.StartEvent(),
		datatypes.ChunkEvent("hello"),
		datatypes.DoneEvent(),
	}}
	f := newWSFixture(t, runner)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":      "chat",
		"sessionId": "sess-1",
		"message":   "What is the return policy?",
	}))

	assert.Equal(t, datatypes.EventStart, readEvent(t, conn).Type)
	chunk := readEvent(t, conn)
	assert.Equal(t, datatypes.EventChunk, chunk.Type)
	assert.Equal(t, "hello", chunk.Content)
	assert.Equal(t, datatypes.EventDone, readEvent(t, conn).Type)

	reqs := runner.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "sess-1", reqs[0].SessionId)
}

// TestWS_MalformedMessage verifies a non-JSON frame yields an error event
// and keeps the connection usable.
func TestWS_MalformedMessage(t *testing.T) {
	f := newWSFixture(t, &mockRunner{Script: []datatypes.StreamEvent{datatypes.DoneEvent()}})
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventError, ev.Type)
	assert.Equal(t, "Invalid message format", ev.Message)

	// Connection survives; a valid message still works.
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":      "chat",
		"sessionId": "sess-1",
		"message":   "hi",
	}))
	assert.Equal(t, datatypes.EventDone, readEvent(t, conn).Type)
}

// TestWS_UnknownMessageType verifies unrecognized message types are
// rejected.
func TestWS_UnknownMessageType(t *testing.T) {
	f := newWSFixture(t, &mockRunner{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))

	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventError, ev.Type)
	assert.Equal(t, "Unknown message type", ev.Message)
}

// TestWS_DisconnectUnregisters verifies registry cleanup when the client
// goes away.
func TestWS_DisconnectUnregisters(t *testing.T) {
	f := newWSFixture(t, &mockRunner{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":      "register",
		"sessionId": "sess-1",
	}))
	readEvent(t, conn) // registered ack
	require.Equal(t, 1, f.registry.Count())

	conn.Close()

	assert.Eventually(t, func() bool {
		return f.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWS_DeliveryFollowsRegisteredConn verifies turn events route through
// the session binding, so a session registered on a newer connection
// receives the stream even when the chat arrived on an older one.
func TestWS_DeliveryFollowsRegisteredConn(t *testing.T) {
	runner := &mockRunner{Script: []datatypes.StreamEvent{
		datatypes.StartEvent(),
		datatypes.ChunkEvent("hello"),
		datatypes.DoneEvent(),
	}}
	f := newWSFixture(t, runner)

	sender := f.dial(t)
	receiver := f.dial(t)

	require.NoError(t, receiver.WriteJSON(map[string]string{
		"type":      "register",
		"sessionId": "sess-1",
	}))
	require.Equal(t, datatypes.EventRegistered, readEvent(t, receiver).Type)

	require.NoError(t, sender.WriteJSON(map[string]string{
		"type":      "chat",
		"sessionId": "sess-1",
		"message":   "What is the return policy?",
	}))

	assert.Equal(t, datatypes.EventStart, readEvent(t, receiver).Type)
	chunk := readEvent(t, receiver)
	assert.Equal(t, datatypes.EventChunk, chunk.Type)
	assert.Equal(t, "hello", chunk.Content)
	assert.Equal(t, datatypes.EventDone, readEvent(t, receiver).Type)

	// The sending connection saw none of the turn traffic.
	require.NoError(t, sender.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var ev datatypes.StreamEvent
	assert.Error(t, sender.ReadJSON(&ev))
}
