package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/replica"
	"github.com/dmitrijs2005/shopkeeper/internal/client/storage"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeTransport struct {
	calls  atomic.Int32
	token  string
	lastRQ *api.SyncRequest
	syncFn func(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error)
}

func (f *fakeTransport) Ping(context.Context) error { return nil }
func (f *fakeTransport) Salt(context.Context, string) ([]byte, error) {
	return nil, errors.New("not used")
}
func (f *fakeTransport) Login(context.Context, string, []byte) (*api.LoginResponse, error) {
	return nil, errors.New("not used")
}
func (f *fakeTransport) Status(context.Context) (api.StatusResponse, error) { return nil, nil }
func (f *fakeTransport) Presign(context.Context, *api.PresignRequest) (*api.PresignResponse, error) {
	return nil, errors.New("not used")
}
func (f *fakeTransport) SetAccessToken(token string) { f.token = token }
func (f *fakeTransport) Close() error                { return nil }

func (f *fakeTransport) Sync(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
	f.calls.Add(1)
	f.lastRQ = req
	if f.syncFn == nil {
		return &api.SyncResponse{Success: true}, nil
	}
	return f.syncFn(ctx, req)
}

func (f *fakeTransport) changeSet(table string) *api.ChangeSet {
	for i := range f.lastRQ.Changes {
		if f.lastRQ.Changes[i].Table == table {
			return &f.lastRQ.Changes[i]
		}
	}
	return nil
}

var onlineSession = &models.Session{UserName: "ann", UserID: "u1", Role: tables.RoleStaff, AccessToken: "tok"}

func setup(t *testing.T, tr *fakeTransport) (*Syncer, *replica.Replica) {
	t.Helper()
	s, err := storage.InitDatabase(context.Background(), storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rep := replica.New(s.DB, s, logging.Nop{})
	sy := New(rep, tr, logging.Nop{})
	sy.SetClock(func() time.Time { return t0.Add(time.Hour) })
	sy.SetSession(onlineSession)
	return sy, rep
}

func results(m map[string]*api.TableResult) *api.SyncResponse {
	return &api.SyncResponse{Success: true, Results: m}
}

func TestRun_Preconditions(t *testing.T) {
	ctx := context.Background()

	s := New(nil, nil, logging.Nop{})
	assert.ErrorIs(t, s.Run(ctx, false).Err, common.ErrNoServer)

	tr := &fakeTransport{}
	sy, _ := setup(t, tr)

	sy.SetOnline(func() bool { return false })
	assert.ErrorIs(t, sy.Run(ctx, false).Err, common.ErrDeviceOffline)

	sy.SetOnline(func() bool { return true })
	sy.SetSession(&models.Session{UserName: "ann", Offline: true})
	res := sy.Run(ctx, false)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrOfflineCredential)

	sy.SetSession(nil)
	assert.ErrorIs(t, sy.Run(ctx, false).Err, common.ErrorUnauthorized)

	assert.Zero(t, tr.calls.Load(), "no precondition failure reaches the network")
}

func TestRun_TransportFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{syncFn: func(context.Context, *api.SyncRequest) (*api.SyncResponse, error) {
		return nil, common.ErrUnavailable
	}}
	sy, rep := setup(t, tr)

	_, err := rep.Save(ctx, tables.Customers, &records.Record{ID: "C1"})
	require.NoError(t, err)
	_, err = rep.Save(ctx, tables.Customers, &records.Record{ID: "C2"})
	require.NoError(t, err)
	require.NoError(t, rep.Delete(ctx, tables.Customers, "C2"))

	res := sy.Run(ctx, false)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrUnavailable)

	pending, err := rep.Pending(ctx, tables.Customers)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	entries, err := rep.PendingDeletions(ctx, tables.Customers)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	wm, err := rep.Watermark(ctx, tables.Customers)
	require.NoError(t, err)
	assert.Nil(t, wm)
}

func TestRun_GathersEveryTable(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	sy, rep := setup(t, tr)

	_, err := rep.Save(ctx, tables.Sales, &records.Record{ID: "S1", Fields: map[string]any{"total": 5}})
	require.NoError(t, err)
	_, err = rep.Save(ctx, tables.SaleItems, &records.Record{ID: "I1"})
	require.NoError(t, err)
	require.NoError(t, rep.Delete(ctx, tables.SaleItems, "I1"))
	require.NoError(t, rep.SetWatermark(ctx, tables.Products, t0))

	res := sy.Run(ctx, false)
	require.True(t, res.Success)
	assert.Equal(t, "tok", tr.token)

	require.Len(t, tr.lastRQ.Changes, len(tables.All()))
	sales := tr.changeSet("sales")
	require.Len(t, sales.Records, 1)
	assert.Contains(t, string(sales.Records[0]), `"id":"S1"`)
	assert.Equal(t, []string{"I1"}, tr.changeSet("sale_items").Deletions)
	require.NotNil(t, tr.changeSet("products").LastSyncedAt)
	assert.Equal(t, t0, *tr.changeSet("products").LastSyncedAt)
	assert.Nil(t, tr.changeSet("customers").LastSyncedAt)
	assert.NotNil(t, tr.changeSet("customers").Records, "empty lists are sent as []")
}

func TestRun_Reconciles(t *testing.T) {
	ctx := context.Background()
	syncedAt := t0.Add(30 * time.Minute)

	tr := &fakeTransport{}
	sy, rep := setup(t, tr)

	for _, id := range []string{"S1", "S2", "S3", "S4"} {
		_, err := rep.Save(ctx, tables.Sales, &records.Record{ID: id})
		require.NoError(t, err)
	}
	for _, id := range []string{"S5", "S6", "S7"} {
		_, err := rep.Save(ctx, tables.Sales, &records.Record{ID: id})
		require.NoError(t, err)
		require.NoError(t, rep.Delete(ctx, tables.Sales, id))
	}
	_, err := rep.Save(ctx, tables.Sales, &records.Record{ID: "GONE"})
	require.NoError(t, err)

	tr.syncFn = func(context.Context, *api.SyncRequest) (*api.SyncResponse, error) {
		res := api.NewTableResult()
		res.PushedIDs = []string{"S1", "S2"}
		res.FailedPushIDs = []string{"S2", "S3"}
		res.RejectedIDs = []string{"S4", "S6"}
		res.AcknowledgedDeletions = []string{"S5"}
		res.Pulled = []*records.Record{{ID: "R1", CreatedAt: t0, UpdatedAt: t0, Fields: map[string]any{"cashierId": "u2"}}}
		res.DeletedIDs = []string{"GONE"}
		res.SyncedAt = &syncedAt
		return results(map[string]*api.TableResult{"sales": res, "not_a_table": api.NewTableResult()}), nil
	}

	out := sy.Run(ctx, false)
	require.True(t, out.Success)
	assert.Equal(t, 1, out.Pulled)

	status := func(id string) records.Status {
		rec, err := rep.Get(ctx, tables.Sales, id)
		require.NoError(t, err)
		return rec.SyncStatus
	}
	assert.Equal(t, records.StatusSynced, status("S1"))
	assert.Equal(t, records.StatusPending, status("S2"), "failed wins over pushed")
	assert.Equal(t, records.StatusPending, status("S3"))
	assert.Equal(t, records.StatusConflict, status("S4"))
	assert.Equal(t, records.StatusSynced, status("R1"))

	_, err = rep.Get(ctx, tables.Sales, "GONE")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	entries, err := rep.PendingDeletions(ctx, tables.Sales)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only unsettled deletions stay")
	assert.Equal(t, "S7", entries[0].RecordID)

	wm, err := rep.Watermark(ctx, tables.Sales)
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, syncedAt, *wm)

	wm, err = rep.Watermark(ctx, tables.Products)
	require.NoError(t, err)
	assert.Nil(t, wm, "tables missing from the response keep their watermark")
}

func TestRun_WatermarkFallsBackToLocalNow(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{syncFn: func(context.Context, *api.SyncRequest) (*api.SyncResponse, error) {
		return results(map[string]*api.TableResult{"products": api.NewTableResult()}), nil
	}}
	sy, rep := setup(t, tr)

	require.True(t, sy.Run(ctx, false).Success)
	wm, err := rep.Watermark(ctx, tables.Products)
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, t0.Add(time.Hour), *wm)
}

func TestRun_PullErrorKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	synced := t0.Add(time.Minute)
	tr := &fakeTransport{syncFn: func(context.Context, *api.SyncRequest) (*api.SyncResponse, error) {
		res := api.NewTableResult()
		res.PullError = "pull failed"
		res.SyncedAt = &synced
		return results(map[string]*api.TableResult{"products": res}), nil
	}}
	sy, rep := setup(t, tr)
	require.NoError(t, rep.SetWatermark(ctx, tables.Products, t0))

	require.True(t, sy.Run(ctx, false).Success)
	wm, err := rep.Watermark(ctx, tables.Products)
	require.NoError(t, err)
	assert.Equal(t, t0, *wm)
}

func TestRun_OlderServerDrainsEverySentDeletion(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{syncFn: func(context.Context, *api.SyncRequest) (*api.SyncResponse, error) {
		return results(map[string]*api.TableResult{"customers": {Deleted: 2}}), nil
	}}
	sy, rep := setup(t, tr)

	for _, id := range []string{"C1", "C2"} {
		_, err := rep.Save(ctx, tables.Customers, &records.Record{ID: id})
		require.NoError(t, err)
		require.NoError(t, rep.Delete(ctx, tables.Customers, id))
	}

	require.True(t, sy.Run(ctx, false).Success)
	entries, err := rep.PendingDeletions(ctx, tables.Customers)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_ForceClearsWatermarks(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	sy, rep := setup(t, tr)
	require.NoError(t, rep.SetWatermark(ctx, tables.Products, t0))

	require.True(t, sy.Run(ctx, true).Success)
	assert.Nil(t, tr.changeSet("products").LastSyncedAt)
}

func TestRun_RecordEditedDuringRoundStaysPending(t *testing.T) {
	ctx := context.Background()
	tr := &fakeTransport{}
	sy, rep := setup(t, tr)

	_, err := rep.Save(ctx, tables.Customers, &records.Record{ID: "C1", Fields: map[string]any{"name": "a"}})
	require.NoError(t, err)

	tr.syncFn = func(ctx context.Context, _ *api.SyncRequest) (*api.SyncResponse, error) {
		_, err := rep.Save(ctx, tables.Customers, &records.Record{ID: "C1", Fields: map[string]any{"name": "b"}})
		require.NoError(t, err)
		res := api.NewTableResult()
		res.PushedIDs = []string{"C1"}
		return results(map[string]*api.TableResult{"customers": res}), nil
	}

	require.True(t, sy.Run(ctx, false).Success)
	rec, err := rep.Get(ctx, tables.Customers, "C1")
	require.NoError(t, err)
	assert.Equal(t, records.StatusPending, rec.SyncStatus)
	assert.Equal(t, "b", rec.Field("name"))
}

func TestRun_OverlappingCallsShareOneRound(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	tr := &fakeTransport{syncFn: func(context.Context, *api.SyncRequest) (*api.SyncResponse, error) {
		once.Do(func() { close(entered) })
		<-release
		return results(nil), nil
	}}
	sy, _ := setup(t, tr)

	var wg sync.WaitGroup
	out := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		out[0] = sy.Run(ctx, false)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		out[1] = sy.Run(ctx, false)
	}()

	// Give the second call time to join the in-flight round.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), tr.calls.Load())
	assert.True(t, out[0].Success)
	assert.True(t, out[1].Success)
}

func TestRun_CancelledStarterDoesNotFailJoinedCaller(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	var roundCtxErr atomic.Value
	tr := &fakeTransport{syncFn: func(ctx context.Context, _ *api.SyncRequest) (*api.SyncResponse, error) {
		once.Do(func() { close(entered) })
		<-release
		if err := ctx.Err(); err != nil {
			roundCtxErr.Store(err)
		}
		return results(nil), nil
	}}
	sy, _ := setup(t, tr)

	starterCtx, cancel := context.WithCancel(context.Background())
	starter := make(chan Result, 1)
	go func() { starter <- sy.Run(starterCtx, false) }()
	<-entered

	joined := make(chan Result, 1)
	go func() { joined <- sy.Run(context.Background(), false) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	first := <-starter
	assert.ErrorIs(t, first.Err, context.Canceled)

	close(release)
	second := <-joined
	assert.True(t, second.Success, "joined caller failed: %v", second.Err)
	assert.Nil(t, roundCtxErr.Load(), "the shared round must not see the starter's cancellation")
	assert.Equal(t, int32(1), tr.calls.Load())
}
