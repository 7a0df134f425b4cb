package metadata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k1", []byte{0x01, 0x02}))

	v, err := r.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, v)
}

func TestGet_Absent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSet_Overwrites(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)

	require.NoError(t, r.Set(ctx, "nil", nil))
	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, m, "nil")
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "x", []byte{0x01}))
	require.NoError(t, r.Delete(ctx, "x"))

	v, err := r.Get(ctx, "x")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, r.Delete(ctx, "x"))
}

func TestDeletePrefix_TreatsWildcardsLiterally(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, k := range []string{"lastSync_products", "lastSync_sales", "lastSyncXproducts", "auth.user"} {
		require.NoError(t, r.Set(ctx, k, []byte("v")))
	}

	require.NoError(t, r.DeletePrefix(ctx, "lastSync_"))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Contains(t, m, "lastSyncXproducts")
	assert.Contains(t, m, "auth.user")
}

func TestClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte{1}))
	require.NoError(t, r.Set(ctx, "b", []byte{2}))
	require.NoError(t, r.Clear(ctx))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	assert.ErrorContains(t, err, "failed to get metadata[k]")
	assert.ErrorContains(t, r.Set(ctx, "k", []byte("v")), "failed to set metadata[k]")
	assert.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete metadata[k]")
	assert.ErrorContains(t, r.DeletePrefix(ctx, "k"), "failed to delete metadata[k*]")
	assert.ErrorContains(t, r.Clear(ctx), "failed to clear metadata")
	_, err = r.List(ctx)
	assert.ErrorContains(t, err, "failed to list metadata")
}

func TestWatermarks(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	wm, err := Watermark(ctx, r, tables.Products)
	require.NoError(t, err)
	assert.Nil(t, wm)

	at := time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)
	require.NoError(t, SetWatermark(ctx, r, tables.Products, at))
	require.NoError(t, SetWatermark(ctx, r, tables.Sales, at))

	v, err := r.Get(ctx, "lastSync_products")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:00.123456Z", string(v))

	wm, err = Watermark(ctx, r, tables.Products)
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, at, *wm)

	require.NoError(t, ResetWatermarks(ctx, r))
	wm, err = Watermark(ctx, r, tables.Sales)
	require.NoError(t, err)
	assert.Nil(t, wm)

	require.NoError(t, r.Set(ctx, WatermarkKey(tables.Users), []byte("garbage")))
	_, err = Watermark(ctx, r, tables.Users)
	assert.ErrorContains(t, err, "bad watermark for users")
}
