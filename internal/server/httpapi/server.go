// Package httpapi exposes the sync endpoint, login and media presigning over
// plain HTTP with JSON bodies.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/server/models"
	"github.com/dmitrijs2005/shopkeeper/internal/server/services"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

// maxBodyBytes caps a request body. A full first-time push of a busy shop
// fits comfortably.
const maxBodyBytes = 32 << 20

type SyncService interface {
	Apply(ctx context.Context, caller tables.Caller, changes []api.ChangeSet) (map[string]*api.TableResult, error)
	Status(ctx context.Context) (api.StatusResponse, error)
}

type AccountService interface {
	GetSalt(ctx context.Context, userName string) ([]byte, error)
	Login(ctx context.Context, userName string, verifier []byte) (*services.Session, error)
}

type MediaService interface {
	PresignProductImage(ctx context.Context, caller tables.Caller, productID, contentType string) (*models.PresignedUpload, error)
}

type Server struct {
	address   string
	logger    logging.Logger
	sync      SyncService
	accounts  AccountService
	media     MediaService
	jwtSecret []byte
}

func NewServer(address string, l logging.Logger, ss SyncService, as AccountService, ms MediaService, secretKey string) *Server {
	return &Server{
		address:   address,
		logger:    l.With("module", "http_server"),
		sync:      ss,
		accounts:  as,
		media:     ms,
		jwtSecret: []byte(secretKey),
	}
}

// Handler returns the routed handler with logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api.PathPing, s.handlePing)
	mux.HandleFunc("POST "+api.PathAuthSalt, s.handleSalt)
	mux.HandleFunc("POST "+api.PathAuthLogin, s.handleLogin)

	mux.Handle("POST "+api.PathSync, s.requireCaller(http.HandlerFunc(s.handleSync)))
	mux.Handle("GET "+api.PathSyncStatus, s.requireCaller(http.HandlerFunc(s.handleStatus)))
	mux.Handle("POST "+api.PathPresign, s.requireCaller(http.HandlerFunc(s.handlePresign)))

	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
