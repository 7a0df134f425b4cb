package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/records"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

func parseTable(name string) (tables.Table, error) {
	t, ok := tables.Parse(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", common.ErrUnknownTable, name)
	}
	return t, nil
}

// authorize applies the same gates the server does, so a change the server
// would drop is refused here instead of staying pending forever.
func (a *App) authorize(t tables.Table, currentOwner string) error {
	c := a.session.Caller()
	if !tables.CanMutate(t, c) {
		return fmt.Errorf("%w: %s can only be changed by an admin", common.ErrForbidden, t)
	}
	if !tables.CheckOwner(t, c, currentOwner) {
		return fmt.Errorf("%w: record belongs to another user", common.ErrForbidden)
	}
	return nil
}

// Tables prints every syncable table with its local row counts.
func (a *App) Tables(ctx context.Context) error {
	for _, t := range tables.All() {
		live, err := a.replica.Count(ctx, t)
		if err != nil {
			return err
		}
		pending, err := a.replica.Pending(ctx, t)
		if err != nil {
			return err
		}
		scope := "open"
		if t.Spec().Scope == tables.ScopeElevated {
			scope = "admin"
		}
		printlnFn(fmt.Sprintf("%-22s %6d rows %4d pending  %s", t, live, len(pending), scope))
	}
	return nil
}

// Put saves a record from its JSON body. Without an inline body the user is
// prompted for one. A body with an id replaces that record's fields; a body
// without one creates a record.
func (a *App) Put(ctx context.Context, table, body string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}

	if strings.TrimSpace(body) == "" {
		body, err = GetMultiline(a.reader, "Enter record JSON", a.out)
		if err != nil {
			return err
		}
	}

	raw := json.RawMessage(body)
	rec := &records.Record{ID: records.PeekID(raw)}
	if err := rec.SetData(raw); err != nil {
		return err
	}

	currentOwner := ""
	if rec.ID != "" {
		cur, err := a.replica.Get(ctx, t, rec.ID)
		switch {
		case err == nil:
			if f := t.Spec().OwnerField; f != "" {
				currentOwner = cur.Field(f)
			}
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}
	}
	if err := a.authorize(t, currentOwner); err != nil {
		return err
	}

	if f := t.Spec().OwnerField; f != "" && rec.Field(f) == "" {
		rec.Set(f, a.session.UserID)
	}

	saved, err := a.replica.Save(ctx, t, rec)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Saved %s/%s", t, saved.ID))
	return nil
}

// Get prints one record as indented JSON.
func (a *App) Get(ctx context.Context, table, id string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	rec, err := a.replica.Get(ctx, t, id)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	printlnFn(string(b))
	return nil
}

// List prints every live record of a table, one per line.
func (a *App) List(ctx context.Context, table string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	recs, err := a.replica.List(ctx, t)
	if err != nil {
		return err
	}
	return printRecords(recs)
}

// Conflicts lists records the server refused. Saving one again queues it
// for the next round.
func (a *App) Conflicts(ctx context.Context, table string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}
	recs, err := a.replica.Conflicts(ctx, t)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		printlnFn("No conflicts")
		return nil
	}
	return printRecords(recs)
}

// Delete removes a record locally and queues its deletion for the server.
func (a *App) Delete(ctx context.Context, table, id string) error {
	t, err := parseTable(table)
	if err != nil {
		return err
	}

	cur, err := a.replica.Get(ctx, t, id)
	if err != nil {
		return err
	}
	owner := ""
	if f := t.Spec().OwnerField; f != "" {
		owner = cur.Field(f)
	}
	if err := a.authorize(t, owner); err != nil {
		return err
	}

	if err := a.replica.Delete(ctx, t, id); err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Deleted %s/%s", t, id))
	return nil
}

func printRecords(recs []*records.Record) error {
	for _, rec := range recs {
		data, err := rec.Data()
		if err != nil {
			return err
		}
		printlnFn(fmt.Sprintf("%s  %-8s %s  %s", rec.ID, rec.SyncStatus, records.FormatTime(rec.UpdatedAt), data))
	}
	return nil
}
