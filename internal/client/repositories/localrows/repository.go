// Package localrows stores the client replica of every syncable table in
// SQLite. Each table keeps the record envelope in columns and the business
// fields as a JSON document.
package localrows

import (
	"context"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

type Repository interface {
	// Get returns the row with id, deleted or not, or common.ErrorNotFound.
	Get(ctx context.Context, t tables.Table, id string) (*records.Record, error)

	// List returns the non-deleted rows ordered by creation time.
	List(ctx context.Context, t tables.Table) ([]*records.Record, error)

	// ListByStatus returns the non-deleted rows in the given sync state.
	ListByStatus(ctx context.Context, t tables.Table, status records.Status) ([]*records.Record, error)

	// Put inserts rec or replaces the stored row with the same id.
	Put(ctx context.Context, t tables.Table, rec *records.Record) error

	// MarkSynced flips a pending row to synced, but only while its
	// updatedAt still equals updatedAt. It reports whether the row changed.
	MarkSynced(ctx context.Context, t tables.Table, id string, updatedAt, at time.Time) (bool, error)

	// SetStatus overwrites the sync state of id.
	SetStatus(ctx context.Context, t tables.Table, id string, status records.Status) (bool, error)

	// SoftDelete flags id as deleted and stamps updatedAt.
	SoftDelete(ctx context.Context, t tables.Table, id string, at time.Time) (bool, error)

	// HardDelete removes id.
	HardDelete(ctx context.Context, t tables.Table, id string) (bool, error)

	// Count returns the number of non-deleted rows.
	Count(ctx context.Context, t tables.Table) (int64, error)
}
