// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// kbchat is the operator CLI for the KB chat gateway. It talks to a
// running gateway over its HTTP API: one-shot chat turns via SSE and
// session administration.
package main

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kbchat/pkg/ux"
)

// gatewayURL is the base URL of the gateway, settable via flag or the
// KBCHAT_GATEWAY_URL environment variable.
var gatewayURL string

// plainOutput disables colors and spinners, for scripts and CI.
var plainOutput bool

var rootCmd = &cobra.Command{
	Use:   "kbchat",
	Short: "Operator CLI for the KB chat gateway",
	Long: `kbchat talks to a running KB chat gateway.

Examples:
  kbchat chat "What is the return policy?"
  kbchat sessions list
  kbchat sessions history sess-8c21
  kbchat sessions delete sess-8c21`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	defaultURL := strings.Trim(os.Getenv("KBCHAT_GATEWAY_URL"), "\"' ")
	if defaultURL == "" {
		defaultURL = "http://localhost:12220"
	}
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", defaultURL,
		"Base URL of the KB chat gateway")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Disable colors and spinners")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if plainOutput {
			ux.SetPlain(true)
		}
	}

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
}
