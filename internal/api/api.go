// Package api holds the JSON shapes exchanged between the shop client and
// the sync server. The HTTP transport sends them as request/response bodies;
// the gRPC transport carries the same objects inside google.protobuf.Struct.
package api

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/records"
)

// Route paths of the HTTP API.
const (
	PathSync       = "/sync"
	PathSyncStatus = "/sync/status"
	PathAuthSalt   = "/auth/salt"
	PathAuthLogin  = "/auth/login"
	PathPresign    = "/media/presign"
	PathPing       = "/ping"
)

// ChangeSet carries one table's local changes since its watermark.
// Records stay raw so the server can reject a malformed row by id without
// failing the rest of the batch.
type ChangeSet struct {
	Table        string            `json:"table"`
	Records      []json.RawMessage `json:"records"`
	Deletions    []string          `json:"deletions"`
	LastSyncedAt *time.Time        `json:"lastSyncedAt,omitempty"`
}

type SyncRequest struct {
	Changes []ChangeSet `json:"changes"`
}

// TableResult is the per-table outcome of a sync request.
type TableResult struct {
	Pushed        int               `json:"pushed"`
	Deleted       int               `json:"deleted"`
	Pulled        []*records.Record `json:"pulled"`
	DeletedIDs    []string          `json:"deletedIds"`
	PushedIDs     []string          `json:"pushedIds"`
	FailedPushIDs []string          `json:"failedPushIds"`

	// AcknowledgedDeletions lists the deletions the server applied (or found
	// already applied). Only these may leave the client's ledger.
	AcknowledgedDeletions []string `json:"acknowledgedDeletions"`
	// RejectedIDs are mutations refused by the ownership check.
	RejectedIDs []string `json:"rejectedIds"`
	// SyncedAt is the server time to use as the next watermark.
	SyncedAt *time.Time `json:"syncedAt,omitempty"`
	// PullError is set when the pull half failed; the watermark must not move.
	PullError string `json:"pullError,omitempty"`
}

// NewTableResult returns a result whose lists encode as [] rather than null.
func NewTableResult() *TableResult {
	return &TableResult{
		Pulled:                []*records.Record{},
		DeletedIDs:            []string{},
		PushedIDs:             []string{},
		FailedPushIDs:         []string{},
		AcknowledgedDeletions: []string{},
		RejectedIDs:           []string{},
	}
}

type SyncResponse struct {
	Success bool                    `json:"success"`
	Results map[string]*TableResult `json:"results,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// StatusResponse maps table names to live (non-deleted) row counts.
type StatusResponse map[string]int64

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type SaltRequest struct {
	Username string `json:"username"`
}

type SaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	Role        string `json:"role"`
}

type PresignRequest struct {
	ProductID   string `json:"productId"`
	ContentType string `json:"contentType,omitempty"`
}

type PresignResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
