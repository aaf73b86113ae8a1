// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/kbchat/services/gateway/handlers"
	"github.com/AleutianAI/kbchat/services/gateway/orchestrator"
	"github.com/AleutianAI/kbchat/services/gateway/store"
)

// SetupRoutes wires every gateway endpoint onto the router.
func SetupRoutes(
	router *gin.Engine,
	runner orchestrator.TurnRunner,
	registry *handlers.ConnRegistry,
	history store.HistoryStore,
	continuations store.ContinuationStore,
	allowedOrigins []string,
	heartbeat time.Duration,
) {
	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chatStream := handlers.NewChatStreamHandler(runner, heartbeat)
	ws := handlers.NewWSHandler(runner, registry, allowedOrigins)
	sessions := handlers.NewSessionHandler(history, continuations)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat/stream", chatStream.HandleChatStream)
		v1.GET("/chat/ws", ws.HandleWS)

		// Session administration routes
		admin := v1.Group("/sessions")
		{
			admin.GET("", sessions.HandleListSessions)
			admin.GET("/:sessionId/history", sessions.HandleGetHistory)
			admin.DELETE("/:sessionId", sessions.HandleDeleteSession)
		}
	}
}
