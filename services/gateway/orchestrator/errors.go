// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"errors"

	"github.com/AleutianAI/kbchat/services/gateway/observability"
)

// Client-facing messages. Upstream error details never reach the client;
// they are logged server side only.
const (
	emptyAnswerMessage   = "No response generated. Please try again."
	timeoutErrorMessage  = "The request timed out. Please try again."
	internalErrorMessage = "An error occurred while processing your request."
	providerErrorMessage = "An error occurred while processing your request."
)

// sanitizeStreamError maps an upstream failure to a client-safe message
// and a metrics error code.
func sanitizeStreamError(err error) (string, observability.ErrorCode) {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutErrorMessage, observability.ErrorCodeTimeout
	}
	return providerErrorMessage, observability.ErrorCodeProviderError
}
