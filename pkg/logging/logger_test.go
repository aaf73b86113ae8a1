// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLevel_String verifies level names render as readable strings.
func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

// TestParseLevel verifies case handling and the Info fallback.
func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

// TestSetup_StderrOnly verifies the closer is callable without file
// output configured.
func TestSetup_StderrOnly(t *testing.T) {
	logger, closer := Setup(Config{Level: LevelInfo, Service: "test"})
	require.NotNil(t, logger)
	closer()
}

// TestSetup_FileOutput verifies a JSON log file is written under the
// configured directory with the service attribute attached.
func TestSetup_FileOutput(t *testing.T) {
	dir := t.TempDir()
	logger, closer := Setup(Config{
		Level:   LevelDebug,
		Service: "filetest",
		LogDir:  dir,
	})

	logger.Info("hello from test", "key", "value")
	closer()

	name := "filetest_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record))
	assert.Equal(t, "hello from test", record["msg"])
	assert.Equal(t, "value", record["key"])
	assert.Equal(t, "filetest", record["service"])
}

// TestSetup_LevelFiltering verifies records below the configured level
// never reach the file.
func TestSetup_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger, closer := Setup(Config{
		Level:   LevelWarn,
		Service: "filtered",
		LogDir:  dir,
	})

	logger.Debug("suppressed record")
	logger.Info("suppressed record")
	logger.Warn("kept record")
	closer()

	name := "filtered_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	content := string(data)
	assert.NotContains(t, content, "suppressed record")
	assert.Contains(t, content, "kept record")
}

// TestSetup_BadLogDir verifies file setup failure degrades to stderr
// logging instead of failing.
func TestSetup_BadLogDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	logger, closer := Setup(Config{
		Level:  LevelInfo,
		LogDir: filepath.Join(blocker, "logs"),
	})
	require.NotNil(t, logger)
	logger.Info("still works")
	closer()
}

// TestMultiHandler verifies fan-out honors each handler's own level.
func TestMultiHandler(t *testing.T) {
	var debugBuf, errorBuf strings.Builder
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(mh)

	assert.True(t, mh.Enabled(context.Background(), slog.LevelDebug))

	logger.Debug("debug only")
	logger.Error("both")

	assert.Contains(t, debugBuf.String(), "debug only")
	assert.Contains(t, debugBuf.String(), "both")
	assert.NotContains(t, errorBuf.String(), "debug only")
	assert.Contains(t, errorBuf.String(), "both")
}
