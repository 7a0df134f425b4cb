//go:build integration

package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/cryptox"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/server/config"
	"github.com/dmitrijs2005/shopkeeper/internal/server/services"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("shopkeeper_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgres_SyncScenarios(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	rm, db, err := OpenStorage(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	// Migrations are idempotent.
	require.NoError(t, rm.RunMigrations(ctx, db))

	svc := services.NewSyncService(db, rm, logging.Nop{})
	admin := tables.Caller{UserID: "admin", Role: tables.RoleAdmin}
	staffA := tables.Caller{UserID: "a", Role: tables.RoleStaff}
	staffB := tables.Caller{UserID: "b", Role: tables.RoleStaff}

	rec := func(s string) json.RawMessage { return json.RawMessage(s) }

	// First push from admin, pulled back with a server watermark.
	res, err := svc.Apply(ctx, admin, []api.ChangeSet{{
		Table:   "products",
		Records: []json.RawMessage{rec(`{"id":"p1","name":"Milk","price":1.2,"updatedAt":"2026-01-01T08:00:00Z"}`)},
	}})
	require.NoError(t, err)
	p := res["products"]
	assert.Equal(t, []string{"p1"}, p.PushedIDs)
	require.Len(t, p.Pulled, 1)
	require.NotNil(t, p.SyncedAt)
	wm := p.SyncedAt

	// Staff cannot change products.
	res, err = svc.Apply(ctx, staffA, []api.ChangeSet{{
		Table:   "products",
		Records: []json.RawMessage{rec(`{"id":"p1","name":"Free","updatedAt":"2026-02-01T08:00:00Z"}`)},
	}})
	require.NoError(t, err)
	assert.Empty(t, res["products"].PushedIDs)

	// Ownership: B may not edit A's sale, and cashierId is forced.
	_, err = svc.Apply(ctx, staffA, []api.ChangeSet{{
		Table:   "sales",
		Records: []json.RawMessage{rec(`{"id":"s1","cashierId":"b","total":5,"updatedAt":"2026-01-01T09:00:00Z"}`)},
	}})
	require.NoError(t, err)
	res, err = svc.Apply(ctx, staffB, []api.ChangeSet{{Table: "sales", Deletions: []string{"s1"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, res["sales"].RejectedIDs)
	got, err := rm.SyncRows(db).Get(ctx, tables.Sales, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Field("cashierId"))

	// Stale push is acknowledged and the winning row is returned.
	res, err = svc.Apply(ctx, admin, []api.ChangeSet{{
		Table:        "products",
		Records:      []json.RawMessage{rec(`{"id":"p1","name":"Old","updatedAt":"2025-01-01T08:00:00Z"}`)},
		LastSyncedAt: wm,
	}})
	require.NoError(t, err)
	p = res["products"]
	assert.Equal(t, []string{"p1"}, p.PushedIDs)
	require.Len(t, p.Pulled, 1)
	assert.Equal(t, "Milk", p.Pulled[0].Field("name"))

	// Hard delete leaves a tombstone other replicas see.
	_, err = svc.Apply(ctx, staffA, []api.ChangeSet{{
		Table:   "sale_items",
		Records: []json.RawMessage{rec(`{"id":"i1","saleId":"s1","qty":1}`)},
	}})
	require.NoError(t, err)
	before := time.Now().Add(-time.Minute).UTC()
	_, err = svc.Apply(ctx, staffA, []api.ChangeSet{{Table: "sale_items", Deletions: []string{"i1"}}})
	require.NoError(t, err)
	res, err = svc.Apply(ctx, staffB, []api.ChangeSet{{Table: "sale_items", LastSyncedAt: &before}})
	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, res["sale_items"].DeletedIDs)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st["products"])
	assert.EqualValues(t, 1, st["sales"])
	assert.EqualValues(t, 0, st["sale_items"])
}

func TestPostgres_Accounts(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	rm, db, err := OpenStorage(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	svc := services.NewAccountService(db, rm, &config.Config{SecretKey: "k", AccessTokenValidityDuration: time.Hour})
	_, err = svc.Create(ctx, "carol", []byte("pw"), tables.RoleStaff)
	require.NoError(t, err)

	salt, err := svc.GetSalt(ctx, "carol")
	require.NoError(t, err)
	sess, err := svc.Login(ctx, "carol", cryptox.VerifierFor([]byte("pw"), salt))
	require.NoError(t, err)
	assert.Equal(t, tables.RoleStaff, sess.Caller.Role)
}
