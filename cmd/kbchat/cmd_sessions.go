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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kbchat/pkg/ux"
	"github.com/AleutianAI/kbchat/services/gateway/datatypes"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Administer gateway sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known session IDs",
	Run:   runSessionsList,
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history [sessionId]",
	Short: "Print a session's conversation history",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsHistory,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [sessionId]",
	Short: "Delete a session's history and upstream context",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsHistoryCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func adminClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func adminURL(path string) string {
	return strings.TrimRight(gatewayURL, "/") + path
}

func runSessionsList(cmd *cobra.Command, args []string) {
	var out struct {
		Sessions []string `json:"sessions"`
		Count    int      `json:"count"`
	}
	if err := adminGet("/v1/sessions", &out); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if out.Count == 0 {
		ux.Muted("No sessions.")
		return
	}
	for _, id := range out.Sessions {
		fmt.Println(id)
	}
}

func runSessionsHistory(cmd *cobra.Command, args []string) {
	var out struct {
		SessionId string           `json:"sessionId"`
		History   []datatypes.Turn `json:"history"`
	}
	if err := adminGet("/v1/sessions/"+args[0]+"/history", &out); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	for _, turn := range out.History {
		fmt.Printf("%s %s\n", ux.Styles.Subtitle.Render("["+turn.Role+"]"), turn.Content)
	}
}

func runSessionsDelete(cmd *cobra.Command, args []string) {
	req, err := http.NewRequest(http.MethodDelete, adminURL("/v1/sessions/"+args[0]), nil)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	resp, err := adminClient().Do(req)
	if err != nil {
		ux.Error(fmt.Sprintf("gateway unreachable: %v", err))
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ux.Error(fmt.Sprintf("gateway returned %d", resp.StatusCode))
		os.Exit(1)
	}
	ux.Success("Deleted session " + args[0])
}

func adminGet(path string, out any) error {
	resp, err := adminClient().Get(adminURL(path))
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return json.Unmarshal(body, out)
}
