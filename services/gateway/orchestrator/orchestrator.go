// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives one conversation turn end to end: it owns
// the session state reads and writes, the upstream invocation, and the
// event sequence the client observes. Transports hand it a validated-ish
// request and an emit function and get the full protocol back.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
	"github.com/AleutianAI/kbchat/services/gateway/observability"
	"github.com/AleutianAI/kbchat/services/gateway/provider"
	"github.com/AleutianAI/kbchat/services/gateway/resolver"
	"github.com/AleutianAI/kbchat/services/gateway/store"
	"github.com/AleutianAI/kbchat/services/gateway/translator"
)

// DefaultTurnTimeout bounds one upstream invocation when no timeout is
// configured.
const DefaultTurnTimeout = 120 * time.Second

var tracer = otel.Tracer("aleutian.gateway")

// TurnRunner is the contract the transports program against.
type TurnRunner interface {
	// Run executes one conversation turn, emitting the client event
	// sequence through emit. Once a turn starts it runs to completion:
	// delivery failures and client disconnects never abort it, and its
	// state writes happen regardless. The result is non-nil only for a
	// successful turn. The error is non-nil only when ctx ended while the
	// turn was still queued behind another turn of the same session.
	Run(ctx context.Context, req datatypes.ChatRequest, transport observability.Transport, emit translator.EmitFunc) (*datatypes.TurnResult, error)
}

// Orchestrator coordinates the stores, the provider client, and the
// translator for every turn.
//
// # Description
//
// Turns within one session are serialized: a second turn for a busy
// session queues until the running turn finishes, so history writes
// never interleave. Turns across sessions run concurrently.
//
// # Thread Safety
//
// Safe for concurrent use. One Orchestrator serves the whole process.
type Orchestrator struct {
	history       store.HistoryStore
	continuations store.ContinuationStore
	streamer      provider.Streamer
	resolver      resolver.Resolver
	preparer      QueryPreparer
	turnTimeout   time.Duration
	locks         *sessionLocks
}

var _ TurnRunner = (*Orchestrator)(nil)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTurnTimeout overrides the per-turn upstream deadline.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.turnTimeout = d
		}
	}
}

// WithQueryPreparer overrides the query preparation strategy.
func WithQueryPreparer(p QueryPreparer) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.preparer = p
		}
	}
}

// New creates an Orchestrator with passthrough query preparation and the
// default turn timeout.
func New(
	history store.HistoryStore,
	continuations store.ContinuationStore,
	streamer provider.Streamer,
	res resolver.Resolver,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		history:       history,
		continuations: continuations,
		streamer:      streamer,
		resolver:      res,
		preparer:      PassthroughPreparer{},
		turnTimeout:   DefaultTurnTimeout,
		locks:         newSessionLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// deliverySink wraps the transport emit function so a turn survives its
// client. The first delivery failure marks the client unreachable; later
// events are dropped without further write attempts. Undeliverable
// events are logged, never retried.
type deliverySink struct {
	emit        translator.EmitFunc
	log         *slog.Logger
	transport   observability.Transport
	unreachable bool
}

func (s *deliverySink) send(ev datatypes.StreamEvent) error {
	if s.unreachable {
		s.log.Debug("dropping undeliverable event", "event_type", string(ev.Type))
		return nil
	}
	if err := s.emit(ev); err != nil {
		s.unreachable = true
		s.log.Warn("client unreachable, turn continues undelivered",
			"event_type", string(ev.Type),
			"error", err,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordClientDisconnect(s.transport)
		}
	}
	return nil
}

// Run executes one conversation turn.
//
// # Description
//
// The emitted sequence is: start, then chunk/citation/metadata events in
// provider order, then either (citations, done) on success or (error) on
// failure. An empty upstream answer is reported as an error followed by
// done, and mutates nothing. Session state is written only after the
// provider exchange succeeded, while the session lock is still held, so
// the user+assistant pair is atomic from any observer's point of view.
//
// A client that disconnects mid-turn does not abort anything: the
// provider stream is consumed to its end under the turn deadline alone,
// state is persisted as usual, and the undelivered events are logged and
// dropped. ctx bounds only the wait in the session queue.
//
// # Inputs
//
//   - ctx: Bounds the queue wait for a busy session. A turn that has
//     started ignores it.
//   - req: The submitted turn. Validated here; transports need not.
//   - transport: Metrics label for the serving transport.
//   - emit: Delivery of one protocol event. Failures are absorbed.
//
// # Outputs
//
//   - *datatypes.TurnResult: The answer and citations of a successful
//     turn, nil otherwise.
//   - error: Non-nil only when ctx ended during the queue wait.
func (o *Orchestrator) Run(ctx context.Context, req datatypes.ChatRequest, transport observability.Transport, emit translator.EmitFunc) (*datatypes.TurnResult, error) {
	metrics := observability.DefaultMetrics
	log := slog.With("session_id", req.SessionId)
	sink := &deliverySink{emit: emit, log: log, transport: transport}

	// Step 1: Validate request
	if err := req.Validate(); err != nil {
		log.Warn("rejecting invalid chat request", "error", err)
		if metrics != nil {
			metrics.RecordError(transport, observability.ErrorCodeValidation)
		}
		return nil, sink.send(datatypes.ErrorEvent("Missing message or sessionId"))
	}

	// Step 2: Serialize on the session. Queue wait honors ctx so a
	// disconnected client never blocks the session.
	release, err := o.locks.acquire(ctx, req.SessionId, metrics)
	if err != nil {
		if metrics != nil {
			metrics.RecordClientDisconnect(transport)
		}
		return nil, err
	}
	defer release()

	// From here the turn owns its own lifetime: the client connection
	// going away must not cancel the provider exchange or the writes.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.turnTimeout)
	defer cancel()

	turnCtx, span := tracer.Start(turnCtx, "gateway.Turn",
		trace.WithAttributes(
			attribute.String("chat.session_id", req.SessionId),
			attribute.String("chat.transport", string(transport)),
		))
	defer span.End()

	started := time.Now()
	if metrics != nil {
		metrics.StreamStarted(transport)
		defer metrics.StreamEnded(transport)
	}

	// Step 3: Open the turn
	if err := sink.send(datatypes.StartEvent()); err != nil {
		return nil, err
	}

	// Step 4: Load session state
	history, err := o.history.Get(turnCtx, req.SessionId)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("history read failed", "error", err)
		return nil, o.fail(sink, transport, observability.ErrorCodeInternal, internalErrorMessage)
	}
	token, err := o.continuations.Get(turnCtx, req.SessionId)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("continuation read failed", "error", err)
		return nil, o.fail(sink, transport, observability.ErrorCodeInternal, internalErrorMessage)
	}

	// Step 5: Prepare the retrieval query from message + history
	query := o.preparer.Prepare(turnCtx, req.Message, history)

	// Step 6: Invoke the provider under the turn deadline
	var firstChunk time.Time
	timedEmit := func(ev datatypes.StreamEvent) error {
		if ev.Type == datatypes.EventChunk && firstChunk.IsZero() {
			firstChunk = time.Now()
			if metrics != nil {
				metrics.RecordTimeToFirstChunk(transport, time.Since(started).Seconds())
			}
		}
		return sink.send(ev)
	}

	tr := translator.New(req.SessionId, o.resolver, timedEmit)
	streamErr := o.streamer.Stream(turnCtx, provider.GenerateRequest{
		Query:        query,
		SessionToken: token,
	}, tr.EventFunc(turnCtx))

	if streamErr != nil {
		message, code := sanitizeStreamError(streamErr)
		log.Error("provider stream failed", "error", streamErr, "error_code", string(code))
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, string(code))
		o.recordOutcome(metrics, transport, started, false)
		return nil, o.fail(sink, transport, code, message)
	}

	// Step 7: Close out the turn
	result, err := tr.Finalize()
	if errors.Is(err, translator.ErrEmptyAnswer) {
		log.Warn("provider stream completed without content")
		span.SetStatus(codes.Error, string(observability.ErrorCodeEmptyAnswer))
		if metrics != nil {
			metrics.RecordError(transport, observability.ErrorCodeEmptyAnswer)
		}
		o.recordOutcome(metrics, transport, started, false)
		if err := sink.send(datatypes.ErrorEvent(emptyAnswerMessage)); err != nil {
			return nil, err
		}
		return nil, sink.send(datatypes.DoneEvent())
	}

	if err := sink.send(datatypes.CitationsEvent(result.Citations)); err != nil {
		return nil, err
	}

	// Step 8: Persist the completed exchange while the lock is held
	updated := append(history,
		datatypes.Turn{Role: datatypes.RoleUser, Content: req.Message},
		datatypes.Turn{Role: datatypes.RoleAssistant, Content: result.Text},
	)
	if err := o.history.Set(turnCtx, req.SessionId, updated); err != nil {
		log.Error("history write failed", "error", err)
	}
	if result.SessionToken != "" && result.SessionToken != token {
		if err := o.continuations.Set(turnCtx, req.SessionId, result.SessionToken); err != nil {
			log.Error("continuation write failed", "error", err)
		}
	}

	if metrics != nil {
		metrics.RecordCitations(transport, len(result.Citations))
	}
	span.SetAttributes(
		attribute.Int("chat.chunks", result.Chunks),
		attribute.Int("chat.citations", len(result.Citations)),
	)
	o.recordOutcome(metrics, transport, started, true)
	log.Info("turn completed",
		"chunks", result.Chunks,
		"citations", len(result.Citations),
		"delivered", !sink.unreachable,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	turnResult := &datatypes.TurnResult{
		Answer:    result.Text,
		Citations: result.Citations,
	}
	return turnResult, sink.send(datatypes.DoneEvent())
}

// fail reports a terminal turn failure to the client. Session state is
// never mutated on this path.
func (o *Orchestrator) fail(sink *deliverySink, transport observability.Transport, code observability.ErrorCode, message string) error {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(transport, code)
	}
	return sink.send(datatypes.ErrorEvent(message))
}

func (o *Orchestrator) recordOutcome(m *observability.GatewayMetrics, transport observability.Transport, started time.Time, success bool) {
	if m == nil {
		return
	}
	m.RecordTurn(transport, success)
	m.RecordTurnDuration(transport, time.Since(started).Seconds(), success)
}
