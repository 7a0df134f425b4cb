// Package common defines shared constants and sentinel errors used across
// client and server layers of Shopkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrOfflineCredential is returned when a session obtained without
	// reaching the server attempts an operation that needs the server.
	ErrOfflineCredential = errors.New("offline credential cannot be used for sync, log in online first")

	// Sync preconditions.
	ErrNoServer      = errors.New("no server configured")
	ErrDeviceOffline = errors.New("device is offline")
	ErrUnavailable   = errors.New("server unavailable")

	// Record-level errors.
	ErrMalformedRecord = errors.New("malformed record")
	ErrRecordDeleted   = errors.New("record deleted")
	ErrUnknownTable    = errors.New("unknown table")
	ErrInvalidArgument = errors.New("invalid argument")
)
