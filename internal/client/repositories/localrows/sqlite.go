package localrows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// Table names come from the registry, so formatting them into statements
// is safe.

const (
	selectColumns = `id, data, created_at, updated_at, sync_status, last_synced_at, deleted`

	putQuery = `INSERT INTO %s (id, data, created_at, updated_at, sync_status, last_synced_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status,
			last_synced_at = excluded.last_synced_at,
			deleted = excluded.deleted`

	markSyncedQuery = `UPDATE %s SET sync_status = 'synced', last_synced_at = ?
		WHERE id = ? AND sync_status = 'pending' AND updated_at = ?`
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*records.Record, error) {
	var (
		rec                  records.Record
		data                 string
		createdAt, updatedAt string
		status               string
		lastSynced           sql.NullString
		deleted              bool
	)
	if err := s.Scan(&rec.ID, &data, &createdAt, &updatedAt, &status, &lastSynced, &deleted); err != nil {
		return nil, err
	}

	var err error
	if rec.CreatedAt, err = records.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = records.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at for %s: %w", rec.ID, err)
	}
	if lastSynced.Valid {
		ts, err := records.ParseTime(lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("bad last_synced_at for %s: %w", rec.ID, err)
		}
		rec.LastSyncedAt = &ts
	}
	rec.SyncStatus = records.Status(status)
	rec.Deleted = deleted

	if err := rec.SetData([]byte(data)); err != nil {
		return nil, fmt.Errorf("bad data for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, t tables.Table, id string) (*records.Record, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, selectColumns, t), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to get %s[%s]: %w", t, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) query(ctx context.Context, t tables.Table, where string, args ...any) ([]*records.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE deleted = 0%s ORDER BY created_at, id`, selectColumns, t, where)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", t, err)
	}
	defer rows.Close()

	out := []*records.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", t, err)
	}
	return out, nil
}

func (r *SQLiteRepository) List(ctx context.Context, t tables.Table) ([]*records.Record, error) {
	return r.query(ctx, t, "")
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, t tables.Table, status records.Status) ([]*records.Record, error) {
	return r.query(ctx, t, " AND sync_status = ?", string(status))
}

func (r *SQLiteRepository) Put(ctx context.Context, t tables.Table, rec *records.Record) error {
	data, err := rec.Data()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedRecord, err)
	}

	status := rec.SyncStatus
	if status == "" {
		status = records.StatusPending
	}

	var lastSynced any
	if rec.LastSyncedAt != nil {
		lastSynced = records.FormatTime(*rec.LastSyncedAt)
	}

	_, err = r.db.ExecContext(ctx, fmt.Sprintf(putQuery, t),
		rec.ID, string(data), records.FormatTime(rec.CreatedAt), records.FormatTime(rec.UpdatedAt),
		string(status), lastSynced, rec.Deleted)
	if err != nil {
		return fmt.Errorf("failed to put %s[%s]: %w", t, rec.ID, err)
	}
	return nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, t tables.Table, id string, updatedAt, at time.Time) (bool, error) {
	ok, err := affected(r.db.ExecContext(ctx, fmt.Sprintf(markSyncedQuery, t),
		records.FormatTime(at), id, records.FormatTime(updatedAt)))
	if err != nil {
		return false, fmt.Errorf("failed to mark %s[%s] synced: %w", t, id, err)
	}
	return ok, nil
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, t tables.Table, id string, status records.Status) (bool, error) {
	ok, err := affected(r.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET sync_status = ? WHERE id = ?`, t), string(status), id))
	if err != nil {
		return false, fmt.Errorf("failed to set %s[%s] status: %w", t, id, err)
	}
	return ok, nil
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, t tables.Table, id string, at time.Time) (bool, error) {
	ok, err := affected(r.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`, t),
		records.FormatTime(at), id))
	if err != nil {
		return false, fmt.Errorf("failed to delete %s[%s]: %w", t, id, err)
	}
	return ok, nil
}

func (r *SQLiteRepository) HardDelete(ctx context.Context, t tables.Table, id string) (bool, error) {
	ok, err := affected(r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t), id))
	if err != nil {
		return false, fmt.Errorf("failed to remove %s[%s]: %w", t, id, err)
	}
	return ok, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, t tables.Table) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE deleted = 0`, t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t, err)
	}
	return n, nil
}
