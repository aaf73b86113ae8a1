// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
)

// QueryPreparer turns the raw user message plus the session history into
// the retrieval query sent upstream.
//
// Prepare must not fail the turn: on any internal error implementations
// fall back to returning the raw message.
type QueryPreparer interface {
	Prepare(ctx context.Context, message string, history []datatypes.Turn) string
}

// PassthroughPreparer sends the user message as-is. The upstream provider
// already carries conversational context via its continuation token, so
// this is the default.
type PassthroughPreparer struct{}

var _ QueryPreparer = PassthroughPreparer{}

// Prepare returns message unchanged.
func (PassthroughPreparer) Prepare(_ context.Context, message string, _ []datatypes.Turn) string {
	return message
}

// =============================================================================
// History-Aware Summarization
// =============================================================================

const summarizerSystemPrompt = "You rewrite the user's latest message into a standalone search query. " +
	"Use the conversation so far only to resolve pronouns and implicit references. " +
	"Reply with the rewritten query and nothing else."

// summarizerHistoryTurns bounds how much history is included in the
// rewrite prompt. Older turns rarely change the retrieval intent.
const summarizerHistoryTurns = 6

// SummarizingPreparer rewrites follow-up messages into standalone
// retrieval queries using a chat completion model.
//
// # Description
//
// Follow-ups like "what about the second one?" retrieve poorly verbatim.
// This preparer asks the model to fold the recent history into the
// message before retrieval. Opt-in via configuration.
//
// # Limitations
//
//   - Adds one completion round-trip of latency per turn.
//   - Falls back to the raw message on any API failure.
type SummarizingPreparer struct {
	client *openai.Client
	model  string
}

var _ QueryPreparer = (*SummarizingPreparer)(nil)

// NewSummarizingPreparer creates a SummarizingPreparer.
//
// # Inputs
//
//   - apiKey: OpenAI API key. Must be non-empty.
//   - model: Completion model id, e.g. openai.GPT4oMini.
func NewSummarizingPreparer(apiKey, model string) (*SummarizingPreparer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("summarizing preparer requires an API key")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	slog.Info("Initializing query summarizer", "model", model)
	return &SummarizingPreparer{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Prepare rewrites message into a standalone query, falling back to the
// raw message when the history is empty or the completion fails.
func (p *SummarizingPreparer) Prepare(ctx context.Context, message string, history []datatypes.Turn) string {
	if len(history) == 0 {
		return message
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildRewritePrompt(message, history)},
		},
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("query rewrite failed, using raw message", "error", err)
		return message
	}
	if len(resp.Choices) == 0 {
		return message
	}

	rewritten := strings.TrimSpace(resp.Choices[0].Message.Content)
	if rewritten == "" {
		return message
	}
	return rewritten
}

func buildRewritePrompt(message string, history []datatypes.Turn) string {
	if len(history) > summarizerHistoryTurns {
		history = history[len(history)-summarizerHistoryTurns:]
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	b.WriteString("\nLatest message:\n")
	b.WriteString(message)
	return b.String()
}
