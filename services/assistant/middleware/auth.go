// Copyright (C) 2025 Quay Market (engineering@quaymarket.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the assistant service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, with a "token" query parameter fallback for WebSocket clients
// that cannot set headers. The token is compared against a single static
// secret in constant time.
//
// # Permissive Default
//
// When no secret is configured (empty string), every request is accepted
// and attributed to "local-user". This keeps local single-user deployments
// working with zero auth infrastructure.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the Gin context key for the authenticated user ID.
const userIDKey = "quay_user_id"

// localUser is the identity assigned when auth is disabled.
const localUser = "local-user"

// UserID returns the authenticated user ID for the request, or "" when
// the auth middleware did not run.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// BearerAuth creates a middleware validating requests against a static
// bearer token.
//
// # Inputs
//
//   - secret: the expected token. Empty disables authentication entirely.
//
// # Outputs
//
//   - gin.HandlerFunc: aborts with 401 on mismatch, otherwise stores the
//     user ID in the context and continues.
//
// # Limitations
//
//   - Single shared secret, no per-user identity. The user ID is the
//     static local user in all cases.
func BearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Set(userIDKey, localUser)
			c.Next()
			return
		}

		token := extractToken(c)
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Set(userIDKey, localUser)
		c.Next()
	}
}

// extractToken pulls the bearer token from the Authorization header, or
// from the "token" query parameter when the header is absent.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}
