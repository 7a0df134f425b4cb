// Package ledger is the client's deletion outbox. An entry records that a
// record was deleted locally and stays until the server acknowledges or
// rejects the deletion, whether or not the record itself still exists.
package ledger

import (
	"context"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

type Repository interface {
	// Add appends e. A second entry for the same table and record is
	// ignored so repeated deletes stay one intent.
	Add(ctx context.Context, e *models.DeletionEntry) error

	// ListByTable returns the entries for t, oldest first.
	ListByTable(ctx context.Context, t tables.Table) ([]*models.DeletionEntry, error)

	// Contains reports whether a delete intent for id in t is pending.
	Contains(ctx context.Context, t tables.Table, id string) (bool, error)

	// RemoveRecords drops the entries of t that refer to ids.
	RemoveRecords(ctx context.Context, t tables.Table, ids []string) (int64, error)

	// Count returns the number of entries across all tables.
	Count(ctx context.Context) (int64, error)
}
