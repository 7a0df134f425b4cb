package replica

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// PendingDeletions returns the ledger entries of t not yet settled by the
// server.
func (r *Replica) PendingDeletions(ctx context.Context, t tables.Table) ([]*models.DeletionEntry, error) {
	return r.repos.Ledger(r.db).ListByTable(ctx, t)
}

// DrainDeletions removes the ledger entries of t for ids.
func (r *Replica) DrainDeletions(ctx context.Context, t tables.Table, ids []string) (int64, error) {
	return r.repos.Ledger(r.db).RemoveRecords(ctx, t, ids)
}

// PendingDeletionCount returns the number of unsettled ledger entries.
func (r *Replica) PendingDeletionCount(ctx context.Context) (int64, error) {
	return r.repos.Ledger(r.db).Count(ctx)
}

// MarkSynced flips id to synced if it still carries updatedAt. A record
// edited while the round was in flight stays pending.
func (r *Replica) MarkSynced(ctx context.Context, t tables.Table, id string, updatedAt, at time.Time) (bool, error) {
	return r.repos.Records(r.db).MarkSynced(ctx, t, id, updatedAt, records.Stamp(at))
}

// MarkConflict parks id so it is no longer pushed automatically.
func (r *Replica) MarkConflict(ctx context.Context, t tables.Table, id string) error {
	_, err := r.repos.Records(r.db).SetStatus(ctx, t, id, records.StatusConflict)
	return err
}

// ApplyPulled stores a record the server returned. It reports false when
// the local copy wins: the row was deleted locally (deletions are
// terminal), or it is pending with a strictly newer updatedAt.
func (r *Replica) ApplyPulled(ctx context.Context, t tables.Table, rec *records.Record, at time.Time) (bool, error) {
	applied := false
	err := r.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repos.Records(tx)

		cur, err := repo.Get(ctx, t, rec.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			deleting, err := r.repos.Ledger(tx).Contains(ctx, t, rec.ID)
			if err != nil || deleting {
				return err
			}
		case err != nil:
			return err
		case cur.Deleted:
			return nil
		case cur.SyncStatus == records.StatusPending && cur.UpdatedAt.After(rec.UpdatedAt):
			return nil
		}

		in := rec.Clone()
		in.SyncStatus = records.StatusSynced
		in.Deleted = false
		if in.LastSyncedAt == nil {
			ts := records.Stamp(at)
			in.LastSyncedAt = &ts
		}
		if in.UpdatedAt.IsZero() {
			in.UpdatedAt = in.CreatedAt
		}
		if err := repo.Put(ctx, t, in); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// RemoveDeleted drops a record the server reported as deleted.
func (r *Replica) RemoveDeleted(ctx context.Context, t tables.Table, id string) error {
	_, err := r.repos.Records(r.db).HardDelete(ctx, t, id)
	return err
}

// Watermark returns the last sync point of t, or nil for a full pull.
func (r *Replica) Watermark(ctx context.Context, t tables.Table) (*time.Time, error) {
	return metadata.Watermark(ctx, r.repos.Metadata(r.db), t)
}

func (r *Replica) SetWatermark(ctx context.Context, t tables.Table, at time.Time) error {
	return metadata.SetWatermark(ctx, r.repos.Metadata(r.db), t, at)
}

// ResetWatermarks makes the next round pull every table in full.
func (r *Replica) ResetWatermarks(ctx context.Context) error {
	return metadata.ResetWatermarks(ctx, r.repos.Metadata(r.db))
}
