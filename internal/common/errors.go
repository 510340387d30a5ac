// Package common defines sentinel errors and small helpers shared by every
// gateway layer. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Auth errors.
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidGrant     = errors.New("invalid grant")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")

	// Request shape errors.
	ErrRelationNotFound = errors.New("relation not found")
	ErrValidation       = errors.New("validation error")

	// Upstream monitoring API errors.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamError       = errors.New("upstream error")
	ErrMethodNotAllowed    = errors.New("upstream method not allowed")
)
