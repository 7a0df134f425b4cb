package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/syncrows"
)

// MemoryDSN selects the in-memory manager instead of PostgreSQL.
const MemoryDSN = "memory"

// InMemoryRepositoryManager hands out the same process-local repositories
// regardless of the handle it is given. Nothing survives a restart.
type InMemoryRepositoryManager struct {
	accounts *accounts.InMemoryRepository
	rows     *syncrows.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		accounts: accounts.NewInMemoryRepository(),
		rows:     syncrows.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

func (m *InMemoryRepositoryManager) Accounts(dbx.DBTX) accounts.Repository {
	return m.accounts
}

func (m *InMemoryRepositoryManager) SyncRows(dbx.DBTX) syncrows.Repository {
	return m.rows
}
