package syncrows

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

// Table names come from the registry, never from requests, so they are
// safe to format into statements.

const (
	upsertQuery = `INSERT INTO %[1]s AS cur (id, owner, data, created_at, updated_at, sync_status, last_synced_at, deleted, inserted_at, changed_at)
		VALUES ($1, $2, $3, $4, $5, 'synced', $6, false, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			data = EXCLUDED.data,
			created_at = COALESCE(cur.created_at, EXCLUDED.created_at),
			updated_at = EXCLUDED.updated_at,
			sync_status = 'synced',
			last_synced_at = EXCLUDED.last_synced_at,
			changed_at = EXCLUDED.changed_at
		WHERE cur.deleted = false
			AND (cur.updated_at IS NULL OR cur.updated_at <= EXCLUDED.updated_at)
		RETURNING id`

	insertOnlyQuery = `INSERT INTO %[1]s (id, owner, data, created_at, updated_at, sync_status, last_synced_at, deleted, inserted_at, changed_at)
		VALUES ($1, $2, $3, $4, $5, 'synced', $6, false, $6, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING id`

	softDeleteQuery = `UPDATE %[1]s SET deleted = true, updated_at = $2, sync_status = 'pending', changed_at = $2
		WHERE id = $1 AND deleted = false`

	hardDeleteQuery = `WITH gone AS (DELETE FROM %[1]s WHERE id = $1 RETURNING id),
		mark AS (INSERT INTO tombstones (table_name, record_id, deleted_at) VALUES ($2, $1, $3)
			ON CONFLICT (table_name, record_id) DO NOTHING)
		SELECT count(*) FROM gone`

	selectColumns = `id, data, created_at, updated_at, sync_status, last_synced_at, deleted`
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Owner(ctx context.Context, t tables.Table, id string) (string, bool, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT owner FROM %s WHERE id = $1`, t), id).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("db error: %w", err)
	}
	return owner, true, nil
}

func (r *PostgresRepository) Get(ctx context.Context, t tables.Table, id string) (*records.Record, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, t), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, t tables.Table, rec *records.Record, owner string, now time.Time) (Outcome, error) {
	spec := t.Spec()

	if !spec.SoftDelete {
		tomb, err := r.isTombstoned(ctx, t, rec.ID)
		if err != nil {
			return 0, err
		}
		if tomb {
			return Tombstoned, nil
		}
	}

	data, err := rec.Data()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrMalformedRecord, err)
	}

	query := upsertQuery
	if spec.Cursor == tables.CursorCreated {
		query = insertOnlyQuery
	}

	var id string
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(query, t),
		rec.ID, owner, string(data), nullTime(rec.CreatedAt), nullTime(rec.UpdatedAt), now).Scan(&id)
	if err == nil {
		return Applied, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	// The conflict clause skipped the write; find out why.
	var deleted bool
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT deleted FROM %s WHERE id = $1`, t), rec.ID).Scan(&deleted)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	switch {
	case deleted:
		return Tombstoned, nil
	case spec.Cursor == tables.CursorCreated:
		return Exists, nil
	default:
		return Stale, nil
	}
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, t tables.Table, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(softDeleteQuery, t), id, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) HardDelete(ctx context.Context, t tables.Table, id string, now time.Time) (bool, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(hardDeleteQuery, t), id, t.String(), now).Scan(&n); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) ChangedSince(ctx context.Context, t tables.Table, since *time.Time) ([]*records.Record, error) {
	cursor := cursorColumn(t)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE deleted = false`, selectColumns, t)
	args := []any{}
	if since != nil {
		query += fmt.Sprintf(` AND %s > $1`, cursor)
		args = append(args, *since)
	}
	query += fmt.Sprintf(` ORDER BY %s, id`, cursor)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []*records.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) DeletedSince(ctx context.Context, t tables.Table, since *time.Time) ([]string, error) {
	var (
		query string
		args  []any
	)
	if t.Spec().SoftDelete {
		query = fmt.Sprintf(`SELECT id FROM %s WHERE deleted = true`, t)
		if since != nil {
			query += ` AND changed_at > $1`
			args = append(args, *since)
		}
		query += ` ORDER BY id`
	} else {
		query = `SELECT record_id FROM tombstones WHERE table_name = $1`
		args = append(args, t.String())
		if since != nil {
			query += ` AND deleted_at > $2`
			args = append(args, *since)
		}
		query += ` ORDER BY record_id`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) CountLive(ctx context.Context, t tables.Table) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE deleted = false`, t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) isTombstoned(ctx context.Context, t tables.Table, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tombstones WHERE table_name = $1 AND record_id = $2)`, t.String(), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func cursorColumn(t tables.Table) string {
	if t.Spec().Cursor == tables.CursorCreated {
		return "inserted_at"
	}
	return "changed_at"
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*records.Record, error) {
	var (
		rec                              records.Record
		data                             []byte
		createdAt, updatedAt, lastSynced sql.NullTime
		status                           string
	)
	if err := s.Scan(&rec.ID, &data, &createdAt, &updatedAt, &status, &lastSynced, &rec.Deleted); err != nil {
		return nil, err
	}
	if err := rec.SetData(data); err != nil {
		return nil, err
	}
	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time.UTC()
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time.UTC()
	}
	if lastSynced.Valid {
		ts := lastSynced.Time.UTC()
		rec.LastSyncedAt = &ts
	}
	rec.SyncStatus = records.Status(status)
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
