// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/google/uuid"
)

// Header carrying the request ID on responses.
const RequestHeader = "X-Request-Id"

type RequestID struct{}

// WithUUID ensures c carries a request ID, minting one if absent.
func WithUUID(c context.Context) (context.Context, string) {
	if id := c.Value(RequestID{}); id != nil {
		return c, id.(string)
	}
	newID := uuid.New().String()
	c = context.WithValue(c, RequestID{}, newID)
	return c, newID
}

// FromUUID attaches a caller-supplied request ID to c.
func FromUUID(c context.Context, reqID string) context.Context {
	return context.WithValue(c, RequestID{}, reqID)
}

// UUID returns the request ID on c, or empty.
func UUID(c context.Context) string {
	if id := c.Value(RequestID{}); id != nil {
		return id.(string)
	}
	return ""
}
