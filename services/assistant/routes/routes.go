// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quaymarket/quay/services/assistant/graph"
	"github.com/quaymarket/quay/services/assistant/handlers"
	"github.com/quaymarket/quay/services/assistant/middleware"
)

// SetupRoutes registers all HTTP routes for the assistant service.
//
// The health and metrics endpoints are unauthenticated; the conversational
// WebSocket endpoint sits behind the bearer auth middleware (permissive
// when authToken is empty).
func SetupRoutes(router *gin.Engine, g *graph.RoutingGraph, authToken string) {
	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.BearerAuth(authToken))
	{
		v1.GET("/assistant/ws", handlers.HandleAssistantWebSocket(g))
	}
}
