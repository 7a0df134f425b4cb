// Package transport carries the sync API from the client to the server.
// HTTP is the default; gRPC is used when a gRPC address is configured. Both
// exchange the shapes in package api and map failures onto the sentinel
// errors in package common.
package transport

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/client/config"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

type Transport interface {
	Ping(ctx context.Context) error
	Salt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (*api.LoginResponse, error)
	Sync(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error)
	Status(ctx context.Context) (api.StatusResponse, error)
	Presign(ctx context.Context, req *api.PresignRequest) (*api.PresignResponse, error)

	// SetAccessToken sets the credential sent with authenticated calls.
	// An empty token clears it.
	SetAccessToken(token string)
	Close() error
}

// New picks the transport the configuration asks for. It returns
// common.ErrNoServer when no server is configured.
func New(cfg *config.Config) (Transport, error) {
	switch {
	case cfg.GRPCAddr != "":
		return NewGRPC(cfg.GRPCAddr, cfg.RequestTimeout)
	case cfg.ServerURL != "":
		return NewHTTP(cfg.ServerURL, cfg.RequestTimeout), nil
	default:
		return nil, common.ErrNoServer
	}
}

type tokenHolder struct {
	mu    sync.RWMutex
	token string
}

func (h *tokenHolder) SetAccessToken(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

func (h *tokenHolder) accessToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}
