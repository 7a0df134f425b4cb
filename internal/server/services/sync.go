// Package services contains server-side business logic: applying sync
// batches, account login, and product image uploads.
package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/syncrows"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// SyncService applies client change sets to the server of record and
// computes what each client has to pull back.
//
// Tables are processed independently and no transaction spans rows: one bad
// row or one unauthorized table never blocks the rest of the batch. Replaying
// a batch converges to the same state because every write is by id.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time

	mu       sync.Mutex
	writeSeq uint64
	inflight map[uint64]time.Time
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "sync_service"),
		now:         time.Now,
		inflight:    map[uint64]time.Time{},
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *SyncService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SyncService) stamp() time.Time {
	return records.Stamp(s.now())
}

// beginWrite stamps a write and keeps the stamp registered until done is
// called, so a concurrent pull never hands out a cursor past it.
func (s *SyncService) beginWrite() (time.Time, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	s.writeSeq++
	seq := s.writeSeq
	s.inflight[seq] = now
	return now, func() {
		s.mu.Lock()
		delete(s.inflight, seq)
		s.mu.Unlock()
	}
}

// cursor returns the watermark handed back with a pull. It is taken before
// the pull runs and stays below every write stamped but not yet stored.
func (s *SyncService) cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.stamp()
	for _, w := range s.inflight {
		if !w.After(at) {
			at = w.Add(-time.Microsecond)
		}
	}
	return at
}

// Apply processes every change set for caller and returns one result per
// table name it was given. Unknown tables get an empty result. The error is
// non-nil only when ctx is done.
func (s *SyncService) Apply(ctx context.Context, caller tables.Caller, changes []api.ChangeSet) (map[string]*api.TableResult, error) {
	results := make(map[string]*api.TableResult, len(changes))

	for _, cs := range mergeChangeSets(changes) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, ok := tables.Parse(cs.Table)
		if !ok {
			s.logger.Warn(ctx, "unknown table ignored", "table", cs.Table)
			results[cs.Table] = api.NewTableResult()
			continue
		}
		results[cs.Table] = s.applyTable(ctx, caller, t, cs)
	}

	return results, nil
}

// Status counts live rows per table.
func (s *SyncService) Status(ctx context.Context) (api.StatusResponse, error) {
	repo := s.repomanager.SyncRows(s.db)
	out := make(api.StatusResponse, len(tables.All()))
	for _, t := range tables.All() {
		n, err := repo.CountLive(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t.String()] = n
	}
	return out, nil
}

func (s *SyncService) applyTable(ctx context.Context, caller tables.Caller, t tables.Table, cs api.ChangeSet) *api.TableResult {
	res := api.NewTableResult()
	repo := s.repomanager.SyncRows(s.db)
	log := s.logger.With("table", t.String(), "user", caller.UserID)

	deletedNow := map[string]struct{}{}
	var superseded []string
	var tombstoned []string

	if tables.CanMutate(t, caller) {
		for _, id := range uniqueIDs(cs.Deletions) {
			if s.applyDeletion(ctx, log, repo, caller, t, id, res) {
				deletedNow[id] = struct{}{}
			}
		}
		for _, raw := range cs.Records {
			switch s.applyPush(ctx, log, repo, caller, t, raw, res) {
			case syncrows.Stale:
				superseded = append(superseded, records.PeekID(raw))
			case syncrows.Tombstoned:
				tombstoned = append(tombstoned, records.PeekID(raw))
			}
		}
	} else if len(cs.Records) > 0 || len(cs.Deletions) > 0 {
		log.Warn(ctx, "mutations skipped, table requires elevated role",
			"records", len(cs.Records), "deletions", len(cs.Deletions))
	}

	syncedAt := s.cursor()

	pulled, err := repo.ChangedSince(ctx, t, cs.LastSyncedAt)
	if err != nil {
		log.Error(ctx, "pull failed", "error", err)
		res.PullError = err.Error()
		return res
	}
	deletedIDs, err := repo.DeletedSince(ctx, t, cs.LastSyncedAt)
	if err != nil {
		log.Error(ctx, "deleted ids lookup failed", "error", err)
		res.PullError = err.Error()
		return res
	}

	// Superseded pushes were acknowledged, so the client needs the winning
	// row even when it predates the watermark.
	inPull := make(map[string]struct{}, len(pulled))
	for _, rec := range pulled {
		inPull[rec.ID] = struct{}{}
	}
	for _, id := range superseded {
		if _, ok := inPull[id]; ok {
			continue
		}
		cur, err := repo.Get(ctx, t, id)
		if err != nil {
			log.Warn(ctx, "superseded row lookup failed", "id", id, "error", err)
			continue
		}
		if cur.Deleted {
			tombstoned = append(tombstoned, id)
			continue
		}
		pulled = append(pulled, cur)
		inPull[id] = struct{}{}
	}

	res.Pulled = pulled
	res.DeletedIDs = mergeDeleted(deletedIDs, tombstoned, deletedNow)
	res.SyncedAt = &syncedAt
	return res
}

// applyDeletion reports whether the deletion was acknowledged.
func (s *SyncService) applyDeletion(ctx context.Context, log logging.Logger, repo syncrows.Repository,
	caller tables.Caller, t tables.Table, id string, res *api.TableResult) bool {

	if tables.NeedsOwnerCheck(t, caller) {
		owner, _, err := repo.Owner(ctx, t, id)
		if err != nil {
			log.Warn(ctx, "owner lookup failed", "id", id, "error", err)
			return false
		}
		if !tables.CheckOwner(t, caller, owner) {
			log.Warn(ctx, "deletion rejected, not the owner", "id", id)
			res.RejectedIDs = append(res.RejectedIDs, id)
			return false
		}
	}

	now, done := s.beginWrite()
	defer done()

	var err error
	if t.Spec().SoftDelete {
		_, err = repo.SoftDelete(ctx, t, id, now)
	} else {
		_, err = repo.HardDelete(ctx, t, id, now)
	}
	if err != nil {
		log.Warn(ctx, "deletion failed", "id", id, "error", err)
		return false
	}

	res.AcknowledgedDeletions = append(res.AcknowledgedDeletions, id)
	res.Deleted++
	return true
}

// applyPush stores one pushed record and files its id into res. The
// returned outcome is meaningful only when the id landed in PushedIDs.
func (s *SyncService) applyPush(ctx context.Context, log logging.Logger, repo syncrows.Repository,
	caller tables.Caller, t tables.Table, raw []byte, res *api.TableResult) syncrows.Outcome {

	rec, err := records.Parse(raw)
	if err != nil {
		id := records.PeekID(raw)
		log.Warn(ctx, "malformed record", "id", id, "error", err)
		if id != "" {
			res.FailedPushIDs = append(res.FailedPushIDs, id)
		}
		return -1
	}

	spec := t.Spec()
	owner := ""
	if spec.OwnerScoped() {
		stored, _, err := repo.Owner(ctx, t, rec.ID)
		if err != nil {
			log.Warn(ctx, "owner lookup failed", "id", rec.ID, "error", err)
			res.FailedPushIDs = append(res.FailedPushIDs, rec.ID)
			return -1
		}
		if !tables.CheckOwner(t, caller, stored) {
			log.Warn(ctx, "push rejected, not the owner", "id", rec.ID)
			res.RejectedIDs = append(res.RejectedIDs, rec.ID)
			return -1
		}
		// An elevated edit of an existing row leaves it with its owner.
		owner = caller.UserID
		if caller.Elevated() && stored != "" {
			owner = stored
		}
		rec.Set(spec.OwnerField, owner)
	}

	now, done := s.beginWrite()
	defer done()

	rec.StripBookkeeping()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	outcome, err := repo.Upsert(ctx, t, rec, owner, now)
	if err != nil {
		log.Warn(ctx, "push failed", "id", rec.ID, "error", err)
		res.FailedPushIDs = append(res.FailedPushIDs, rec.ID)
		return -1
	}

	if outcome == syncrows.Applied {
		res.Pushed++
	} else {
		log.Debug(ctx, "push acknowledged without write", "id", rec.ID, "outcome", outcome.String())
	}
	res.PushedIDs = append(res.PushedIDs, rec.ID)
	return outcome
}

func mergeChangeSets(changes []api.ChangeSet) []api.ChangeSet {
	out := make([]api.ChangeSet, 0, len(changes))
	index := make(map[string]int, len(changes))

	for _, cs := range changes {
		i, seen := index[cs.Table]
		if !seen {
			index[cs.Table] = len(out)
			out = append(out, cs)
			continue
		}
		prev := &out[i]
		prev.Records = append(prev.Records, cs.Records...)
		prev.Deletions = append(prev.Deletions, cs.Deletions...)
		if prev.LastSyncedAt != nil && (cs.LastSyncedAt == nil || cs.LastSyncedAt.Before(*prev.LastSyncedAt)) {
			prev.LastSyncedAt = cs.LastSyncedAt
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// mergeDeleted unions the stored deletions with pushes that hit a tombstone,
// minus what the caller deleted itself in this request.
func mergeDeleted(stored, tombstoned []string, own map[string]struct{}) []string {
	out := make([]string, 0, len(stored)+len(tombstoned))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]string{stored, tombstoned} {
		for _, id := range list {
			if _, mine := own[id]; mine {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
