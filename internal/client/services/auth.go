// Package services contains application services for the shop client.
// This file defines authentication: online login against the server,
// offline login against a locally cached verifier, and logout.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/shopkeeper/internal/client/transport"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/cryptox"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// ErrLocalDataNotAvailable is returned by OfflineLogin when no credential
// has been cached yet.
var ErrLocalDataNotAvailable = errors.New("no cached credential, log in online first")

// Metadata keys of the cached credential.
const (
	keyUserName = "auth.username"
	keySalt     = "auth.salt"
	keyVerifier = "auth.verifier"
	keyUserID   = "auth.user_id"
	keyRole     = "auth.role"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - OnlineLogin: authenticate against the server and cache the verifier.
//   - OfflineLogin: verify against the cache; the session cannot sync.
//   - ClearOfflineData: forget the cached credential.
//   - Ping: check server liveness.
type AuthService interface {
	OnlineLogin(ctx context.Context, username string, password []byte) (*models.Session, error)
	OfflineLogin(ctx context.Context, username string, password []byte) (*models.Session, error)
	ClearOfflineData(ctx context.Context) error
	Ping(ctx context.Context) error
}

type authService struct {
	transport transport.Transport
	db        *sql.DB
}

// NewAuthService binds the service to a transport (nil when no server is
// configured) and the client database.
func NewAuthService(tr transport.Transport, db *sql.DB) AuthService {
	return &authService{transport: tr, db: db}
}

func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) (*models.Session, error) {
	if a.transport == nil {
		return nil, common.ErrNoServer
	}

	salt, err := a.transport.Salt(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get salt error: %w", err)
	}

	verifier := cryptox.VerifierFor(password, salt)

	resp, err := a.transport.Login(ctx, username, verifier)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	sess := &models.Session{
		UserName:    username,
		UserID:      resp.UserID,
		Role:        tables.ParseRole(resp.Role),
		AccessToken: resp.AccessToken,
	}

	if err := a.saveOfflineData(ctx, sess, salt, verifier); err != nil {
		return nil, fmt.Errorf("offline data saving error: %w", err)
	}
	return sess, nil
}

// saveOfflineData caches what OfflineLogin needs in one transaction.
func (a *authService) saveOfflineData(ctx context.Context, sess *models.Session, salt, verifier []byte) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		values := map[string][]byte{
			keyUserName: []byte(sess.UserName),
			keySalt:     salt,
			keyVerifier: verifier,
			keyUserID:   []byte(sess.UserID),
			keyRole:     []byte(sess.Role),
		}
		for k, v := range values {
			if err := repo.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// OfflineLogin checks password against the cached verifier of username.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) (*models.Session, error) {
	repo := metadata.NewSQLiteRepository(a.db)

	cached := make(map[string][]byte, 5)
	for _, k := range []string{keyUserName, keySalt, keyVerifier, keyUserID, keyRole} {
		v, err := repo.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		cached[k] = v
	}

	if len(cached[keyUserName]) == 0 || len(cached[keySalt]) == 0 || len(cached[keyVerifier]) == 0 {
		return nil, ErrLocalDataNotAvailable
	}
	if string(cached[keyUserName]) != username {
		return nil, common.ErrorUnauthorized
	}

	candidate := cryptox.VerifierFor(password, cached[keySalt])
	if !cryptox.VerifiersEqual(cached[keyVerifier], candidate) {
		return nil, common.ErrorUnauthorized
	}

	return &models.Session{
		UserName: username,
		UserID:   string(cached[keyUserID]),
		Role:     tables.ParseRole(string(cached[keyRole])),
		Offline:  true,
	}, nil
}

func (a *authService) ClearOfflineData(ctx context.Context) error {
	repo := metadata.NewSQLiteRepository(a.db)
	return repo.DeletePrefix(ctx, "auth.")
}

func (a *authService) Ping(ctx context.Context) error {
	if a.transport == nil {
		return common.ErrNoServer
	}
	return a.transport.Ping(ctx)
}
