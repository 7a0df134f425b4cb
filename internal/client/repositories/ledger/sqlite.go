package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, e *models.DeletionEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deletion_ledger (id, table_name, record_id, deleted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(table_name, record_id) DO NOTHING
	`, e.ID, e.Table.String(), e.RecordID, records.FormatTime(e.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to add ledger entry %s[%s]: %w", e.Table, e.RecordID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListByTable(ctx context.Context, t tables.Table) ([]*models.DeletionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, record_id, deleted_at FROM deletion_ledger
		WHERE table_name = ? ORDER BY deleted_at, id
	`, t.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger for %s: %w", t, err)
	}
	defer rows.Close()

	out := []*models.DeletionEntry{}
	for rows.Next() {
		e := &models.DeletionEntry{Table: t}
		var deletedAt string
		if err := rows.Scan(&e.ID, &e.RecordID, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		if e.DeletedAt, err = records.ParseTime(deletedAt); err != nil {
			return nil, fmt.Errorf("bad deleted_at for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Contains(ctx context.Context, t tables.Table, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM deletion_ledger WHERE table_name = ? AND record_id = ?`, t.String(), id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up ledger entry %s[%s]: %w", t, id, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) RemoveRecords(ctx context.Context, t tables.Table, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, t.String())
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM deletion_ledger WHERE table_name = ? AND record_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to drain ledger for %s: %w", t, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM deletion_ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ledger: %w", err)
	}
	return n, nil
}
