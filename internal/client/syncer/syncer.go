// Package syncer runs sync rounds between the local replica and the
// server, on demand and on a timer.
//
// A round gathers every table's pending records, pending deletions and
// watermark, sends them as one batch and merges the per-table results back.
// A transport failure aborts the round before any local state changes;
// response processing is row by row and safe to abandon and resume.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/transport"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"golang.org/x/sync/singleflight"
)

// Replica is the part of the local replica a round needs.
type Replica interface {
	Pending(ctx context.Context, t tables.Table) ([]*records.Record, error)
	PendingDeletions(ctx context.Context, t tables.Table) ([]*models.DeletionEntry, error)
	Watermark(ctx context.Context, t tables.Table) (*time.Time, error)
	SetWatermark(ctx context.Context, t tables.Table, at time.Time) error
	ResetWatermarks(ctx context.Context) error

	MarkSynced(ctx context.Context, t tables.Table, id string, updatedAt, at time.Time) (bool, error)
	MarkConflict(ctx context.Context, t tables.Table, id string) error
	ApplyPulled(ctx context.Context, t tables.Table, rec *records.Record, at time.Time) (bool, error)
	RemoveDeleted(ctx context.Context, t tables.Table, id string) error
	DrainDeletions(ctx context.Context, t tables.Table, ids []string) (int64, error)
}

// Result is the outcome of one round.
type Result struct {
	Success bool
	Pulled  int
	Err     error
}

type Syncer struct {
	replica   Replica
	transport transport.Transport
	logger    logging.Logger
	now       func() time.Time

	mu      sync.RWMutex
	session *models.Session
	online  func() bool

	inflight singleflight.Group
}

// New returns a Syncer. tr may be nil when no server is configured; every
// round then fails with common.ErrNoServer.
func New(r Replica, tr transport.Transport, logger logging.Logger) *Syncer {
	return &Syncer{
		replica:   r,
		transport: tr,
		logger:    logger.With("module", "syncer"),
		now:       time.Now,
		online:    func() bool { return true },
	}
}

// SetClock replaces the clock used when the server sends no syncedAt.
func (s *Syncer) SetClock(now func() time.Time) { s.now = now }

// SetSession sets the credential rounds run under. nil logs out.
func (s *Syncer) SetSession(sess *models.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// SetOnline installs the connectivity probe consulted before each round.
func (s *Syncer) SetOnline(online func() bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

func (s *Syncer) state() (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.online()
}

// Run performs one round. A call made while a round is in flight waits for
// that round and shares its result instead of starting another.
//
// The round itself is detached from ctx and bounded by the transport
// timeout, so cancelling the caller that started it does not fail the
// callers that joined. A cancelled caller stops waiting and gets ctx.Err().
func (s *Syncer) Run(ctx context.Context, force bool) Result {
	roundCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan("round", func() (any, error) {
		return s.run(roundCtx, force), nil
	})

	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		return fail(ctx.Err())
	}
}

func fail(err error) Result {
	return Result{Success: false, Err: err}
}

// tableRound is what a round sent for one table.
type tableRound struct {
	table     tables.Table
	pushed    map[string]time.Time
	deletions []string
}

func (s *Syncer) run(ctx context.Context, force bool) Result {
	sess, online := s.state()
	switch {
	case s.transport == nil:
		return fail(common.ErrNoServer)
	case !online:
		return fail(common.ErrDeviceOffline)
	case sess == nil:
		return fail(common.ErrorUnauthorized)
	case sess.Offline || sess.AccessToken == "":
		return fail(common.ErrOfflineCredential)
	}

	if force {
		if err := s.replica.ResetWatermarks(ctx); err != nil {
			return fail(err)
		}
	}

	req, sent, err := s.gather(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to gather local changes", "error", err)
		return fail(err)
	}

	s.transport.SetAccessToken(sess.AccessToken)
	resp, err := s.transport.Sync(ctx, req)
	if err != nil {
		s.logger.Error(ctx, "sync request failed", "error", err)
		return fail(err)
	}

	pulled := 0
	for name, res := range resp.Results {
		round, ok := sent[name]
		if !ok || res == nil {
			s.logger.Warn(ctx, "ignoring result for unknown table", "table", name)
			continue
		}
		pulled += s.reconcile(ctx, round, res)
	}

	s.logger.Info(ctx, "sync round finished", "pulled", pulled, "force", force)
	return Result{Success: true, Pulled: pulled}
}

func (s *Syncer) gather(ctx context.Context) (*api.SyncRequest, map[string]*tableRound, error) {
	req := &api.SyncRequest{Changes: make([]api.ChangeSet, 0, len(tables.All()))}
	sent := make(map[string]*tableRound, len(tables.All()))

	for _, t := range tables.All() {
		pending, err := s.replica.Pending(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		entries, err := s.replica.PendingDeletions(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		wm, err := s.replica.Watermark(ctx, t)
		if err != nil {
			return nil, nil, err
		}

		round := &tableRound{table: t, pushed: make(map[string]time.Time, len(pending))}
		cs := api.ChangeSet{
			Table:        t.String(),
			Records:      make([]json.RawMessage, 0, len(pending)),
			Deletions:    make([]string, 0, len(entries)),
			LastSyncedAt: wm,
		}
		for _, rec := range pending {
			raw, err := json.Marshal(rec)
			if err != nil {
				return nil, nil, err
			}
			cs.Records = append(cs.Records, raw)
			round.pushed[rec.ID] = rec.UpdatedAt
		}
		for _, e := range entries {
			cs.Deletions = append(cs.Deletions, e.RecordID)
		}
		round.deletions = cs.Deletions

		req.Changes = append(req.Changes, cs)
		sent[cs.Table] = round
	}
	return req, sent, nil
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// reconcile merges one table's result and returns the number of pulled
// records stored.
func (s *Syncer) reconcile(ctx context.Context, round *tableRound, res *api.TableResult) int {
	t := round.table
	now := records.Stamp(s.now())
	failed := toSet(res.FailedPushIDs)
	rejected := toSet(res.RejectedIDs)

	for _, id := range res.PushedIDs {
		updatedAt, ok := round.pushed[id]
		if !ok {
			continue
		}
		if _, bad := failed[id]; bad {
			continue
		}
		if _, err := s.replica.MarkSynced(ctx, t, id, updatedAt, now); err != nil {
			s.logger.Warn(ctx, "failed to mark record synced", "table", t.String(), "id", id, "error", err)
		}
	}

	for _, id := range res.RejectedIDs {
		if _, ok := round.pushed[id]; !ok {
			continue
		}
		if err := s.replica.MarkConflict(ctx, t, id); err != nil {
			s.logger.Warn(ctx, "failed to mark record conflicted", "table", t.String(), "id", id, "error", err)
		}
	}

	stored, complete := 0, true
	for _, rec := range res.Pulled {
		if rec == nil {
			continue
		}
		applied, err := s.replica.ApplyPulled(ctx, t, rec, now)
		if err != nil {
			complete = false
			s.logger.Warn(ctx, "failed to store pulled record", "table", t.String(), "id", rec.ID, "error", err)
			continue
		}
		if applied {
			stored++
		}
	}

	for _, id := range res.DeletedIDs {
		if err := s.replica.RemoveDeleted(ctx, t, id); err != nil {
			s.logger.Warn(ctx, "failed to remove deleted record", "table", t.String(), "id", id, "error", err)
		}
	}

	s.drain(ctx, round, res, rejected)

	if res.PullError != "" {
		s.logger.Warn(ctx, "server could not compute pull set", "table", t.String(), "error", res.PullError)
		return stored
	}
	if !complete {
		return stored
	}

	mark := now
	if res.SyncedAt != nil {
		mark = records.Stamp(*res.SyncedAt)
	}
	if err := s.replica.SetWatermark(ctx, t, mark); err != nil {
		s.logger.Warn(ctx, "failed to advance watermark", "table", t.String(), "error", err)
	}
	return stored
}

// drain settles the ledger entries the round sent. Servers that predate
// acknowledgedDeletions get every sent entry drained.
func (s *Syncer) drain(ctx context.Context, round *tableRound, res *api.TableResult, rejected map[string]struct{}) {
	if len(round.deletions) == 0 {
		return
	}

	var settled []string
	if res.AcknowledgedDeletions == nil {
		settled = round.deletions
	} else {
		acked := toSet(res.AcknowledgedDeletions)
		for _, id := range round.deletions {
			_, ok := acked[id]
			_, no := rejected[id]
			if ok || no {
				settled = append(settled, id)
			}
		}
	}

	if _, err := s.replica.DrainDeletions(ctx, round.table, settled); err != nil {
		s.logger.Warn(ctx, "failed to drain deletion ledger", "table", round.table.String(), "error", err)
	}
}
