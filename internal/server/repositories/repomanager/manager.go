// Package repomanager vends repositories bound to a database handle, so
// services can run the same repository code on a *sql.DB or inside a
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/syncrows"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	SyncRows(db dbx.DBTX) syncrows.Repository
}
