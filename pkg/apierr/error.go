// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package apierr defines the service error taxonomy. Every error that can
// reach a client is an *Error carrying the HTTP transport status, the
// application code embedded in the response envelope, and a human detail
// string. The two codes are independent: several endpoints report a
// missing resource with a 200 transport status and a 404 envelope code.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
)

// Kind classifies an error independently of how it is surfaced over HTTP.
type Kind int

const (
	KindUnknown Kind = iota

	// Request shape or parameter problems.
	KindValidation

	// Resource lookups.
	KindNotFound
	KindSessionNotFound

	// Share lifecycle.
	KindExpired
	KindIncompleteUpload
	KindMergeFailed

	// Admission control.
	KindQuotaExceeded
	KindSizeLimit
	KindRateLimited
)

// Error is the canonical service error.
type Error struct {
	Kind       Kind
	HTTPStatus int    // transport status line
	AppCode    int    // code field inside the response envelope
	Detail     string // client-facing message
	Err        error  // wrapped cause, never sent to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// =========================================================================
// Constructors
// =========================================================================

// Validation reports a malformed request. Transport 400, envelope 400.
func Validation(format string, args ...any) *Error {
	return &Error{
		Kind:       KindValidation,
		HTTPStatus: http.StatusBadRequest,
		AppCode:    http.StatusBadRequest,
		Detail:     fmt.Sprintf(format, args...),
	}
}

// NotFound reports an unknown or expired share. Surfaced with transport
// 200 on retrieval endpoints; handlers downgrade the status themselves.
func NotFound(detail string) *Error {
	return &Error{
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
		AppCode:    http.StatusNotFound,
		Detail:     detail,
	}
}

// SessionNotFound reports an unknown upload session.
func SessionNotFound(uploadID string) *Error {
	return &Error{
		Kind:       KindSessionNotFound,
		HTTPStatus: http.StatusNotFound,
		AppCode:    http.StatusNotFound,
		Detail:     fmt.Sprintf("upload session %s not found", uploadID),
	}
}

// Expired reports a share past its validity window.
func Expired() *Error {
	return &Error{
		Kind:       KindExpired,
		HTTPStatus: http.StatusNotFound,
		AppCode:    http.StatusNotFound,
		Detail:     "share has expired",
	}
}

// IncompleteUpload reports a merge attempt before all chunks arrived.
func IncompleteUpload(have, want int64) *Error {
	return &Error{
		Kind:       KindIncompleteUpload,
		HTTPStatus: http.StatusBadRequest,
		AppCode:    http.StatusBadRequest,
		Detail:     fmt.Sprintf("upload incomplete: %d of %d chunks received", have, want),
	}
}

// MergeFailed reports a backend failure while assembling chunks. The
// session survives so the client can retry the completion call.
func MergeFailed(cause error) *Error {
	return &Error{
		Kind:       KindMergeFailed,
		HTTPStatus: http.StatusInternalServerError,
		AppCode:    http.StatusInternalServerError,
		Detail:     "failed to merge chunks",
		Err:        cause,
	}
}

// QuotaExceeded reports an owner over their storage ceiling.
func QuotaExceeded(limit int64) *Error {
	return &Error{
		Kind:       KindQuotaExceeded,
		HTTPStatus: http.StatusBadRequest,
		AppCode:    http.StatusBadRequest,
		Detail:     fmt.Sprintf("storage quota of %s exceeded", humanize.IBytes(uint64(limit))),
	}
}

// SizeLimit reports a file above the global per-file ceiling.
func SizeLimit(limit int64) *Error {
	return &Error{
		Kind:       KindSizeLimit,
		HTTPStatus: http.StatusForbidden,
		AppCode:    http.StatusForbidden,
		Detail:     fmt.Sprintf("file exceeds maximum size of %s", humanize.IBytes(uint64(limit))),
	}
}

// RateLimited reports a client over one of the per-IP buckets.
func RateLimited(detail string) *Error {
	return &Error{
		Kind:       KindRateLimited,
		HTTPStatus: http.StatusTooManyRequests,
		AppCode:    http.StatusTooManyRequests,
		Detail:     detail,
	}
}

// =========================================================================
// Classification helpers
// =========================================================================

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool {
	k := KindOf(err)
	return k == KindNotFound || k == KindExpired
}

func IsSessionNotFound(err error) bool { return KindOf(err) == KindSessionNotFound }

func IsRetryable(err error) bool { return KindOf(err) == KindMergeFailed }

// From converts an arbitrary error into an *Error, defaulting unknown
// causes to an opaque internal error.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:       KindUnknown,
		HTTPStatus: http.StatusInternalServerError,
		AppCode:    http.StatusInternalServerError,
		Detail:     "internal server error",
		Err:        err,
	}
}
