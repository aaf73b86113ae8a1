// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/kbchat/pkg/ux"
	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	chatSessionID string // Session to continue; generated when empty
	chatTimeout   time.Duration
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// chatCmd runs one conversation turn against the gateway's SSE endpoint
// and prints the streamed answer to stdout, with citations at the end.
//
// # Examples
//
//	kbchat chat "What is the return policy?"
//	kbchat chat --session sess-8c21 "And for international orders?"
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one chat message and stream the answer",
	Args:  cobra.ExactArgs(1),
	Run:   runChatCommand,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "",
		"Session ID to continue (generated when omitted)")
	chatCmd.Flags().DurationVar(&chatTimeout, "timeout", 3*time.Minute,
		"Overall turn timeout")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runChatCommand(cmd *cobra.Command, args []string) {
	sessionID := chatSessionID
	if sessionID == "" {
		sessionID = "cli-" + uuid.New().String()[:8]
		ux.Muted("session: " + sessionID)
	}

	body, err := json.Marshal(datatypes.ChatRequest{
		Message:   args[0],
		SessionId: sessionID,
	})
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	spin := ux.NewSpinner("Retrieving...")
	spin.Start()

	client := &http.Client{Timeout: chatTimeout}
	resp, err := client.Post(
		strings.TrimRight(gatewayURL, "/")+"/v1/chat/stream",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		spin.StopWithError(fmt.Sprintf("gateway unreachable: %v", err))
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		spin.StopWithError(fmt.Sprintf("gateway returned %d", resp.StatusCode))
		os.Exit(1)
	}

	if err := streamToStdout(resp, spin); err != nil {
		spin.StopWithError(err.Error())
		os.Exit(1)
	}
}

// streamToStdout consumes the SSE stream, printing chunks as they
// arrive and the citation list after the answer. The spinner is stopped
// on the first chunk.
func streamToStdout(resp *http.Response, spin *ux.Spinner) error {
	var citations []datatypes.Citation

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev datatypes.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case datatypes.EventChunk:
			spin.Stop()
			fmt.Print(ev.Content)
		case datatypes.EventCitations:
			citations = ev.Citations
		case datatypes.EventError:
			return fmt.Errorf("%s", ev.Message)
		case datatypes.EventDone:
			spin.Stop()
			fmt.Println()
			printCitations(citations)
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return fmt.Errorf("stream ended without done event")
}

func printCitations(citations []datatypes.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Println()
	ux.Title("Sources:")
	for i, c := range citations {
		if c.Title != "" {
			fmt.Printf("  [%d] %s %s\n", i+1, c.Title, ux.Styles.Muted.Render(c.URL))
		} else {
			fmt.Printf("  [%d] %s\n", i+1, c.URL)
		}
	}
}
