package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server cannot be reached
// (common.ErrUnavailable or common.ErrNoServer) it falls back to the cached
// offline credential. An offline session can read and write the local
// replica but cannot sync until the user logs in again while online.
//
// An online login starts the sync scheduler and asks it for a round right
// away. The password is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	sess, err := a.authService.OnlineLogin(ctx, userName, password)
	if err != nil {
		if !errors.Is(err, common.ErrUnavailable) && !errors.Is(err, common.ErrNoServer) {
			printlnFn("Login unsuccessful:", err.Error())
			return err
		}
		printlnFn("Server unavailable, trying offline login...")
		sess, err = a.authService.OfflineLogin(ctx, userName, password)
		if err != nil {
			printlnFn("Offline login unsuccessful:", err.Error())
			return err
		}
	}

	a.startSession(ctx, sess)
	return nil
}

func (a *App) startSession(ctx context.Context, sess *models.Session) {
	a.session = sess
	a.syncer.SetSession(sess)

	if sess.Offline {
		printlnFn(fmt.Sprintf("Logged in offline as %s (%s), changes stay local until an online login", sess.UserName, sess.Role))
		return
	}

	printlnFn(fmt.Sprintf("Logged in as %s (%s)", sess.UserName, sess.Role))
	a.scheduler.Start(ctx)
	a.scheduler.Trigger()
}

// Logout stops background sync, forgets the session and removes the cached
// offline credential. Local records and pending changes are kept.
func (a *App) Logout(ctx context.Context) error {
	a.scheduler.Stop()
	a.syncer.SetSession(nil)
	if a.transport != nil {
		a.transport.SetAccessToken("")
	}
	a.session = nil

	if err := a.authService.ClearOfflineData(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}
