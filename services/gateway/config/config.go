// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads gateway configuration from an optional YAML file
// with environment variable overrides. Environment always wins, so
// container deployments can run without a config file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and environment are read.
const (
	DefaultPort              = 12220
	DefaultTurnTimeout       = 120 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultMaxHistoryTurns   = 20
	DefaultURLExpiry         = 24 * time.Hour
)

// Citation resolver modes.
const (
	ResolverModeGCS         = "gcs"
	ResolverModePassthrough = "passthrough"
)

// Query preparation modes.
const (
	QueryModePassthrough = "passthrough"
	QueryModeSummarize   = "summarize"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Citations CitationsConfig `yaml:"citations"`
	Query     QueryConfig     `yaml:"query"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Port the gateway listens on. Env: GATEWAY_PORT.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// AllowedOrigins restricts WebSocket upgrades by Origin header.
	// Empty allows any origin. Env: GATEWAY_ALLOWED_ORIGINS (comma
	// separated).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// HeartbeatInterval is the SSE keepalive period.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" validate:"min=1s"`
}

// ProviderConfig configures the upstream retrieve-and-generate service.
type ProviderConfig struct {
	// BaseURL of the provider, e.g. http://rag-service:12230.
	// Env: RAG_SERVICE_URL.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// TurnTimeout bounds one upstream invocation.
	TurnTimeout time.Duration `yaml:"turn_timeout" validate:"min=1s"`
}

// SessionsConfig configures per-session state.
type SessionsConfig struct {
	// MaxHistoryTurns caps stored history per session; oldest turns are
	// evicted first.
	MaxHistoryTurns int `yaml:"max_history_turns" validate:"min=1"`
}

// CitationsConfig configures citation reference resolution.
type CitationsConfig struct {
	// Mode selects the resolver: "gcs" signs storage references,
	// "passthrough" returns them untouched.
	Mode string `yaml:"mode" validate:"oneof=gcs passthrough"`

	// CredentialsFile is the service account key used for signing.
	// Env: GCS_CREDENTIALS_FILE. Required in gcs mode.
	CredentialsFile string `yaml:"credentials_file"`

	// URLExpiry is the signed URL lifetime.
	URLExpiry time.Duration `yaml:"url_expiry" validate:"min=1m"`
}

// QueryConfig configures retrieval query preparation.
type QueryConfig struct {
	// Mode selects the strategy: "passthrough" sends the message as-is,
	// "summarize" rewrites follow-ups with a completion model.
	// Env: QUERY_PREP_MODE.
	Mode string `yaml:"mode" validate:"oneof=passthrough summarize"`

	// Model is the completion model for summarize mode. The API key
	// comes from OPENAI_API_KEY only, never from the file.
	Model string `yaml:"model"`
}

var configValidate = validator.New()

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              DefaultPort,
			HeartbeatInterval: DefaultHeartbeatInterval,
		},
		Provider: ProviderConfig{
			TurnTimeout: DefaultTurnTimeout,
		},
		Sessions: SessionsConfig{
			MaxHistoryTurns: DefaultMaxHistoryTurns,
		},
		Citations: CitationsConfig{
			Mode:      ResolverModePassthrough,
			URLExpiry: DefaultURLExpiry,
		},
		Query: QueryConfig{
			Mode: QueryModePassthrough,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides, then
// validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := configValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Values are
// trimmed of quotes and whitespace in case the container runtime passes
// them literally.
func (c *Config) applyEnv() {
	if v := cleanEnv("GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := cleanEnv("GATEWAY_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
	if v := cleanEnv("RAG_SERVICE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := cleanEnv("GCS_CREDENTIALS_FILE"); v != "" {
		c.Citations.CredentialsFile = v
		c.Citations.Mode = ResolverModeGCS
	}
	if v := cleanEnv("QUERY_PREP_MODE"); v != "" {
		c.Query.Mode = v
	}
}

func cleanEnv(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}
