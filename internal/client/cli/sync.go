package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// Sync runs a round in the foreground and reports its outcome. force drops
// every watermark first so the round pulls the full server state.
func (a *App) Sync(ctx context.Context, force bool) error {
	res := a.syncer.Run(ctx, force)
	if !res.Success {
		if res.Err == nil {
			return common.ErrorInternal
		}
		return res.Err
	}
	printlnFn(fmt.Sprintf("Sync complete, %d record(s) received", res.Pulled))
	return nil
}

// Status prints local counts per table and, when the server is reachable
// with an online session, the server's live counts next to them.
func (a *App) Status(ctx context.Context) error {
	printlnFn(fmt.Sprintf("Mode: %s", a.mode()))

	var server map[string]int64
	if err := a.requireServer(); err == nil {
		a.transport.SetAccessToken(a.session.AccessToken)
		resp, err := a.transport.Status(ctx)
		if err != nil {
			printlnFn("Server status unavailable:", err.Error())
		} else {
			server = resp
		}
	}

	for _, t := range tables.All() {
		live, err := a.replica.Count(ctx, t)
		if err != nil {
			return err
		}
		pending, err := a.replica.Pending(ctx, t)
		if err != nil {
			return err
		}
		conflicts, err := a.replica.Conflicts(ctx, t)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%-22s local %6d  pending %4d  conflicts %4d", t, live, len(pending), len(conflicts))
		if server != nil {
			line += fmt.Sprintf("  server %6d", server[t.String()])
		}
		printlnFn(line)
	}

	deletions, err := a.replica.PendingDeletionCount(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Pending deletions: %d", deletions))
	return nil
}

// requireServer reports why the server cannot be used right now, if it
// cannot.
func (a *App) requireServer() error {
	switch {
	case a.transport == nil:
		return common.ErrNoServer
	case a.mode() != syncer.ModeOnline:
		return common.ErrDeviceOffline
	case a.session == nil:
		return common.ErrorUnauthorized
	case a.session.Offline || a.session.AccessToken == "":
		return common.ErrOfflineCredential
	}
	return nil
}
