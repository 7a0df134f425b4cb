// Package syncrows stores the server-of-record copy of every syncable table.
//
// Rows carry two server-clock columns besides the record envelope:
// inserted_at (first insert) and changed_at (every write, including
// soft-deletes). Pulls compare against one of them depending on the
// table's cursor, so client clock skew never hides a change.
package syncrows

import (
	"context"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// Outcome reports what Upsert did with a pushed record.
type Outcome int

const (
	// Applied means the record is now the stored state.
	Applied Outcome = iota
	// Stale means a row with a newer updatedAt is already stored.
	Stale
	// Tombstoned means the id was deleted; deletions are terminal.
	Tombstoned
	// Exists means an append-only row with this id is already stored.
	Exists
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Tombstoned:
		return "tombstoned"
	case Exists:
		return "exists"
	default:
		return "unknown"
	}
}

type Repository interface {
	// Owner returns the stored owner of id. exists is false when no live or
	// soft-deleted row has that id.
	Owner(ctx context.Context, t tables.Table, id string) (owner string, exists bool, err error)

	// Get returns the stored row, soft-deleted or not.
	Get(ctx context.Context, t tables.Table, id string) (*records.Record, error)

	// Upsert stores rec under owner with last-writer-wins on updatedAt.
	// now stamps lastSyncedAt and the server-clock columns.
	Upsert(ctx context.Context, t tables.Table, rec *records.Record, owner string, now time.Time) (Outcome, error)

	// SoftDelete flags id as deleted. It reports false when there was no
	// live row to flag.
	SoftDelete(ctx context.Context, t tables.Table, id string, now time.Time) (bool, error)

	// HardDelete removes id and records a tombstone for it.
	HardDelete(ctx context.Context, t tables.Table, id string, now time.Time) (bool, error)

	// ChangedSince returns live rows written after since, or every live row
	// when since is nil.
	ChangedSince(ctx context.Context, t tables.Table, since *time.Time) ([]*records.Record, error)

	// DeletedSince returns ids deleted after since, or all deleted ids when
	// since is nil.
	DeletedSince(ctx context.Context, t tables.Table, since *time.Time) ([]string, error)

	// CountLive returns the number of non-deleted rows.
	CountLive(ctx context.Context, t tables.Table) (int64, error)
}
