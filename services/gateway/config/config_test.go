// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// TestLoad_DefaultsWithEnvProvider verifies defaults when only the
// provider URL is given.
func TestLoad_DefaultsWithEnvProvider(t *testing.T) {
	t.Setenv("RAG_SERVICE_URL", "http://rag-service:12230")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Server.HeartbeatInterval)
	assert.Equal(t, DefaultTurnTimeout, cfg.Provider.TurnTimeout)
	assert.Equal(t, DefaultMaxHistoryTurns, cfg.Sessions.MaxHistoryTurns)
	assert.Equal(t, ResolverModePassthrough, cfg.Citations.Mode)
	assert.Equal(t, QueryModePassthrough, cfg.Query.Mode)
	assert.Equal(t, "http://rag-service:12230", cfg.Provider.BaseURL)
}

// TestLoad_MissingProviderURL verifies validation rejects a config with
// no upstream.
func TestLoad_MissingProviderURL(t *testing.T) {
	t.Setenv("RAG_SERVICE_URL", "")

	_, err := Load("")
	assert.Error(t, err)
}

// TestLoad_YAMLFile verifies file values land in the right fields.
func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("RAG_SERVICE_URL", "")
	path := writeConfigFile(t, `
server:
  port: 9090
  heartbeat_interval: 30s
  allowed_origins:
    - https://app.example.com
provider:
  base_url: http://rag.internal:8080
  turn_timeout: 90s
sessions:
  max_history_turns: 10
citations:
  mode: gcs
  credentials_file: /etc/gcp/sa.json
  url_expiry: 1h
query:
  mode: summarize
  model: gpt-4o-mini
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.HeartbeatInterval)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "http://rag.internal:8080", cfg.Provider.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Provider.TurnTimeout)
	assert.Equal(t, 10, cfg.Sessions.MaxHistoryTurns)
	assert.Equal(t, ResolverModeGCS, cfg.Citations.Mode)
	assert.Equal(t, "/etc/gcp/sa.json", cfg.Citations.CredentialsFile)
	assert.Equal(t, time.Hour, cfg.Citations.URLExpiry)
	assert.Equal(t, QueryModeSummarize, cfg.Query.Mode)
	assert.Equal(t, "gpt-4o-mini", cfg.Query.Model)
}

// TestLoad_EnvOverridesFile verifies environment wins over the file.
func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
provider:
  base_url: http://from-file:8080
`)
	t.Setenv("GATEWAY_PORT", "7070")
	t.Setenv("RAG_SERVICE_URL", "http://from-env:8081")
	t.Setenv("GATEWAY_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "http://from-env:8081", cfg.Provider.BaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
}

// TestLoad_QuotedEnvValues verifies quotes from container runtimes are
// stripped.
func TestLoad_QuotedEnvValues(t *testing.T) {
	t.Setenv("RAG_SERVICE_URL", `"http://rag-service:12230"`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://rag-service:12230", cfg.Provider.BaseURL)
}

// TestLoad_CredentialsEnvSwitchesMode verifies setting the key file flips
// citation resolution to gcs mode.
func TestLoad_CredentialsEnvSwitchesMode(t *testing.T) {
	t.Setenv("RAG_SERVICE_URL", "http://rag-service:12230")
	t.Setenv("GCS_CREDENTIALS_FILE", "/etc/gcp/sa.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ResolverModeGCS, cfg.Citations.Mode)
	assert.Equal(t, "/etc/gcp/sa.json", cfg.Citations.CredentialsFile)
}

// TestLoad_InvalidPort verifies validation bounds.
func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("RAG_SERVICE_URL", "http://rag-service:12230")
	t.Setenv("GATEWAY_PORT", "70000")

	_, err := Load("")
	assert.Error(t, err)
}

// TestLoad_MissingFile verifies a bad path is an error rather than a
// silent fallback.
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
