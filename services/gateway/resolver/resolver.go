// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver turns opaque storage references returned by the RAG
// provider into time-limited URLs the browser can fetch directly.
//
// Resolution always fails soft: a malformed reference or a signing error
// returns the original reference unchanged and logs. A citation is never
// the reason a turn fails.
package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// DefaultURLExpiry matches the original deployment: signed URLs live for
// one day.
const DefaultURLExpiry = 24 * time.Hour

const objectScheme = "gs://"

// Resolver resolves a raw storage reference to a fetchable URL.
type Resolver interface {
	// Resolve returns a time-limited fetchable URL for rawURI, or rawURI
	// itself when resolution is not possible. Never returns an error.
	Resolve(ctx context.Context, rawURI string) string
}

// ParseObjectURI splits a gs://bucket/key reference into bucket and key.
// ok is false for anything that is not a well-formed object reference.
func ParseObjectURI(rawURI string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(rawURI, objectScheme) {
		return "", "", false
	}
	rest := rawURI[len(objectScheme):]
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", false
	}
	return rest[:slash], rest[slash+1:], true
}

// =============================================================================
// GCS Resolver
// =============================================================================

// GCSResolver signs gs:// references with V4 signed URLs.
type GCSResolver struct {
	client *storage.Client
	expiry time.Duration
}

// NewGCSResolver creates a GCSResolver using the given service account key
// file. An empty expiry falls back to DefaultURLExpiry.
func NewGCSResolver(ctx context.Context, saKeyPath string, expiry time.Duration) (*GCSResolver, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	return &GCSResolver{client: client, expiry: expiry}, nil
}

// Resolve signs the reference. Malformed references and signing failures
// return rawURI unchanged.
func (r *GCSResolver) Resolve(_ context.Context, rawURI string) string {
	bucket, key, ok := ParseObjectURI(rawURI)
	if !ok {
		slog.Warn("citation reference is not a storage object, forwarding as-is", "uri", rawURI)
		return rawURI
	}

	signed, err := r.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(r.expiry),
	})
	if err != nil {
		slog.Warn("failed to sign citation reference, forwarding as-is",
			"uri", rawURI,
			"error", err,
		)
		return rawURI
	}

	slog.Debug("signed citation reference", "bucket", bucket, "key", key)
	return signed
}

// Close releases the underlying storage client.
func (r *GCSResolver) Close() error {
	return r.client.Close()
}

// =============================================================================
// Passthrough Resolver
// =============================================================================

// Passthrough returns every reference unchanged. Used when no signing
// credentials are configured; the gateway still runs, citations just
// carry raw references.
type Passthrough struct{}

// Resolve returns rawURI unchanged.
func (Passthrough) Resolve(_ context.Context, rawURI string) string {
	return rawURI
}

var (
	_ Resolver = (*GCSResolver)(nil)
	_ Resolver = Passthrough{}
)
