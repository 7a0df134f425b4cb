package syncrows

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

type memRow struct {
	rec        *records.Record
	owner      string
	insertedAt time.Time
	changedAt  time.Time
}

// InMemoryRepository mirrors PostgresRepository semantics in process
// memory. It backs the "memory" database mode and tests.
type InMemoryRepository struct {
	mu         sync.RWMutex
	rows       map[tables.Table]map[string]*memRow
	tombstones map[tables.Table]map[string]time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rows:       make(map[tables.Table]map[string]*memRow),
		tombstones: make(map[tables.Table]map[string]time.Time),
	}
}

func (r *InMemoryRepository) table(t tables.Table) map[string]*memRow {
	m, ok := r.rows[t]
	if !ok {
		m = make(map[string]*memRow)
		r.rows[t] = m
	}
	return m
}

func (r *InMemoryRepository) Owner(ctx context.Context, t tables.Table, id string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[t][id]
	if !ok {
		return "", false, nil
	}
	return row.owner, true, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, t tables.Table, id string) (*records.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[t][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return row.rec.Clone(), nil
}

func (r *InMemoryRepository) Upsert(ctx context.Context, t tables.Table, rec *records.Record, owner string, now time.Time) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec := t.Spec()
	if _, tomb := r.tombstones[t][rec.ID]; tomb && !spec.SoftDelete {
		return Tombstoned, nil
	}

	stored := rec.Clone()
	stored.SyncStatus = records.StatusSynced
	synced := now
	stored.LastSyncedAt = &synced
	stored.Deleted = false

	rows := r.table(t)
	cur, ok := rows[rec.ID]
	if !ok {
		rows[rec.ID] = &memRow{rec: stored, owner: owner, insertedAt: now, changedAt: now}
		return Applied, nil
	}

	switch {
	case cur.rec.Deleted:
		return Tombstoned, nil
	case spec.Cursor == tables.CursorCreated:
		return Exists, nil
	case !cur.rec.UpdatedAt.IsZero() && cur.rec.UpdatedAt.After(rec.UpdatedAt):
		return Stale, nil
	}

	if !cur.rec.CreatedAt.IsZero() {
		stored.CreatedAt = cur.rec.CreatedAt
	}
	cur.rec = stored
	cur.owner = owner
	cur.changedAt = now
	return Applied, nil
}

func (r *InMemoryRepository) SoftDelete(ctx context.Context, t tables.Table, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[t][id]
	if !ok || row.rec.Deleted {
		return false, nil
	}
	row.rec.Deleted = true
	row.rec.UpdatedAt = now
	row.rec.SyncStatus = records.StatusPending
	row.changedAt = now
	return true, nil
}

func (r *InMemoryRepository) HardDelete(ctx context.Context, t tables.Table, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.rows[t][id]
	delete(r.rows[t], id)

	tombs, ok := r.tombstones[t]
	if !ok {
		tombs = make(map[string]time.Time)
		r.tombstones[t] = tombs
	}
	if _, seen := tombs[id]; !seen {
		tombs[id] = now
	}
	return existed, nil
}

func (r *InMemoryRepository) ChangedSince(ctx context.Context, t tables.Table, since *time.Time) ([]*records.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	created := t.Spec().Cursor == tables.CursorCreated
	cursor := func(row *memRow) time.Time {
		if created {
			return row.insertedAt
		}
		return row.changedAt
	}

	matched := make([]*memRow, 0)
	for _, row := range r.rows[t] {
		if row.rec.Deleted {
			continue
		}
		if since != nil && !cursor(row).After(*since) {
			continue
		}
		matched = append(matched, row)
	}
	sort.Slice(matched, func(i, j int) bool {
		ci, cj := cursor(matched[i]), cursor(matched[j])
		if ci.Equal(cj) {
			return matched[i].rec.ID < matched[j].rec.ID
		}
		return ci.Before(cj)
	})

	out := make([]*records.Record, 0, len(matched))
	for _, row := range matched {
		out = append(out, row.rec.Clone())
	}
	return out, nil
}

func (r *InMemoryRepository) DeletedSince(ctx context.Context, t tables.Table, since *time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := []string{}
	if t.Spec().SoftDelete {
		for id, row := range r.rows[t] {
			if row.rec.Deleted && (since == nil || row.changedAt.After(*since)) {
				ids = append(ids, id)
			}
		}
	} else {
		for id, at := range r.tombstones[t] {
			if since == nil || at.After(*since) {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *InMemoryRepository) CountLive(ctx context.Context, t tables.Table) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, row := range r.rows[t] {
		if !row.rec.Deleted {
			n++
		}
	}
	return n, nil
}
