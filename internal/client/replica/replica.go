// Package replica is the client's local copy of the shop data. Business
// code writes through it (every write leaves the record pending), and the
// sync client reads pending work from it and merges server results back.
//
// Deletes always go through the deletion ledger in the same transaction as
// the row change, so a delete intent is never lost even when the row itself
// is hard-deleted.
package replica

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/ledger"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/localrows"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"github.com/google/uuid"
)

// Repositories vends repositories bound to a handle or a transaction.
type Repositories interface {
	Records(db dbx.DBTX) localrows.Repository
	Ledger(db dbx.DBTX) ledger.Repository
	Metadata(db dbx.DBTX) metadata.Repository
}

type Replica struct {
	db     *sql.DB
	repos  Repositories
	logger logging.Logger
	now    func() time.Time
}

func New(db *sql.DB, repos Repositories, logger logging.Logger) *Replica {
	return &Replica{
		db:     db,
		repos:  repos,
		logger: logger.With("module", "replica"),
		now:    time.Now,
	}
}

// SetClock replaces the clock used to stamp writes.
func (r *Replica) SetClock(now func() time.Time) { r.now = now }

func (r *Replica) stamp() time.Time { return records.Stamp(r.now()) }

func (r *Replica) withTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, r.db, nil, fn)
}

// Save writes rec as a local change. A missing id is generated. createdAt
// is kept from the stored row, updatedAt is stamped now and the record
// becomes pending. Saving over a deleted record fails with
// common.ErrRecordDeleted.
func (r *Replica) Save(ctx context.Context, t tables.Table, rec *records.Record) (*records.Record, error) {
	out := rec.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	err := r.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repos.Records(tx)
		now := r.stamp()

		cur, err := repo.Get(ctx, t, out.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			pending, err := r.repos.Ledger(tx).Contains(ctx, t, out.ID)
			if err != nil {
				return err
			}
			if pending {
				return fmt.Errorf("%w: %s[%s]", common.ErrRecordDeleted, t, out.ID)
			}
			if out.CreatedAt.IsZero() {
				out.CreatedAt = now
			}
			out.LastSyncedAt = nil
		case err != nil:
			return err
		case cur.Deleted:
			return fmt.Errorf("%w: %s[%s]", common.ErrRecordDeleted, t, out.ID)
		default:
			out.CreatedAt = cur.CreatedAt
			out.LastSyncedAt = cur.LastSyncedAt
			// updatedAt must move so a round in flight can tell the row
			// was edited after it was gathered.
			if !now.After(cur.UpdatedAt) {
				now = cur.UpdatedAt.Add(time.Microsecond)
			}
		}

		out.CreatedAt = records.Stamp(out.CreatedAt)
		out.UpdatedAt = now
		out.SyncStatus = records.StatusPending
		out.Deleted = false
		return repo.Put(ctx, t, out)
	})
	if err != nil {
		return nil, fmt.Errorf("error saving %s record: %w", t, err)
	}
	return out, nil
}

// Get returns a live record. Deleted records are reported as not found.
func (r *Replica) Get(ctx context.Context, t tables.Table, id string) (*records.Record, error) {
	rec, err := r.repos.Records(r.db).Get(ctx, t, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func (r *Replica) List(ctx context.Context, t tables.Table) ([]*records.Record, error) {
	return r.repos.Records(r.db).List(ctx, t)
}

// Pending returns the live records waiting to be pushed.
func (r *Replica) Pending(ctx context.Context, t tables.Table) ([]*records.Record, error) {
	return r.repos.Records(r.db).ListByStatus(ctx, t, records.StatusPending)
}

// Conflicts returns the records the server refused for ownership reasons.
// Saving one again makes it pending.
func (r *Replica) Conflicts(ctx context.Context, t tables.Table) ([]*records.Record, error) {
	return r.repos.Records(r.db).ListByStatus(ctx, t, records.StatusConflict)
}

func (r *Replica) Count(ctx context.Context, t tables.Table) (int64, error) {
	return r.repos.Records(r.db).Count(ctx, t)
}

// Delete removes id locally and appends a delete intent to the ledger.
// Tables with soft delete keep the row flagged; the others drop it.
// Deleting an already deleted record is a no-op.
func (r *Replica) Delete(ctx context.Context, t tables.Table, id string) error {
	err := r.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repos.Records(tx)
		now := r.stamp()

		cur, err := repo.Get(ctx, t, id)
		if err != nil {
			return err
		}
		if !cur.Deleted {
			if t.Spec().SoftDelete {
				_, err = repo.SoftDelete(ctx, t, id, now)
			} else {
				_, err = repo.HardDelete(ctx, t, id)
			}
			if err != nil {
				return err
			}
		}

		return r.repos.Ledger(tx).Add(ctx, &models.DeletionEntry{
			ID:        uuid.NewString(),
			Table:     t,
			RecordID:  id,
			DeletedAt: now,
		})
	})
	if err != nil {
		return fmt.Errorf("error deleting %s[%s]: %w", t, id, err)
	}
	r.logger.Debug(ctx, "record deleted", "table", t.String(), "id", id)
	return nil
}
