// Package models defines the client-side types shared by the replica, the
// deletion ledger and the sync client.
package models

import (
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// DeletionEntry is one pending delete intent in the ledger. It outlives the
// record it refers to.
type DeletionEntry struct {
	ID        string
	Table     tables.Table
	RecordID  string
	DeletedAt time.Time
}
