// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"testing"
	"time"
)

func TestNewSpinner_SetsMessage(t *testing.T) {
	spin := NewSpinner("Processing data")
	if spin.message != "Processing data" {
		t.Errorf("expected message 'Processing data', got %q", spin.message)
	}
}

func TestSpinner_StartStop(t *testing.T) {
	spin := NewSpinner("Working")
	spin.Start()
	time.Sleep(10 * time.Millisecond)
	spin.Stop()
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	spin := NewSpinner("Never started")
	spin.Stop()
}

func TestSpinner_DoubleStart(t *testing.T) {
	spin := NewSpinner("Once")
	spin.Start()
	spin.Start()
	spin.Stop()
}

func TestSpinner_DoubleStop(t *testing.T) {
	spin := NewSpinner("Twice")
	spin.Start()
	spin.Stop()
	spin.Stop()
}

func TestSpinner_UpdateMessage(t *testing.T) {
	spin := NewSpinner("Initial")
	spin.Start()
	spin.UpdateMessage("Updated")
	spin.Stop()

	if spin.message != "Updated" {
		t.Errorf("expected message 'Updated', got %q", spin.message)
	}
}
