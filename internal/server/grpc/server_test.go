package grpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/api/syncrpc"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/cryptox"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/server/auth"
	"github.com/dmitrijs2005/shopkeeper/internal/server/config"
	"github.com/dmitrijs2005/shopkeeper/internal/server/models"
	"github.com/dmitrijs2005/shopkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/shopkeeper/internal/server/services"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const secret = "secret"

type fakeMedia struct{ err error }

func (f *fakeMedia) PresignProductImage(ctx context.Context, caller tables.Caller, productID, contentType string) (*models.PresignedUpload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.PresignedUpload{Key: "products/" + productID + "/k", URL: "http://s3/put"}, nil
}

type harness struct {
	client   *syncrpc.Client
	accounts *services.AccountService
	media    *fakeMedia
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rm := repomanager.NewInMemoryRepositoryManager()
	cfg := &config.Config{SecretKey: secret, AccessTokenValidityDuration: time.Hour}
	as := services.NewAccountService(nil, rm, cfg)
	media := &fakeMedia{}

	s := NewGRPCServer("bufnet", logging.Nop{}, services.NewSyncService(nil, rm, logging.Nop{}), as, media, secret)
	lis := bufconn.Listen(1 << 20)
	srv := s.NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{client: syncrpc.NewClient(conn), accounts: as, media: media}
}

func withToken(t *testing.T, c tables.Caller) context.Context {
	t.Helper()
	tok, err := auth.GenerateToken(c, []byte(secret), time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, common.BearerPrefix+tok)
}

func TestPing_NoToken(t *testing.T) {
	h := newHarness(t)
	var out map[string]string
	require.NoError(t, h.client.Call(context.Background(), syncrpc.MethodPing, nil, &out))
	assert.Equal(t, "OK", out["status"])
}

func TestSync_RequiresToken(t *testing.T) {
	h := newHarness(t)

	err := h.client.Call(context.Background(), syncrpc.MethodSync, api.SyncRequest{}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "missing token", status.Convert(err).Message())

	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "Bearer not-a-jwt")
	err = h.client.Call(ctx, syncrpc.MethodSync, api.SyncRequest{}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "invalid token", status.Convert(err).Message())

	err = h.client.Call(context.Background(), syncrpc.MethodStatus, nil, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSync_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	tok, err := auth.GenerateToken(tables.Caller{UserID: "u"}, []byte(secret), -time.Minute)
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)

	err = h.client.Call(ctx, syncrpc.MethodSync, api.SyncRequest{}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "token expired", status.Convert(err).Message())
}

func TestSync_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := withToken(t, tables.Caller{UserID: "cashier-1", Role: tables.RoleStaff})

	var resp api.SyncResponse
	require.NoError(t, h.client.Call(ctx, syncrpc.MethodSync, api.SyncRequest{Changes: []api.ChangeSet{{
		Table:   "customers",
		Records: []json.RawMessage{json.RawMessage(`{"id":"c1","name":"Ann","updatedAt":"2026-01-01T08:00:00Z"}`)},
	}}}, &resp))

	assert.True(t, resp.Success)
	res := resp.Results["customers"]
	require.NotNil(t, res)
	assert.Equal(t, []string{"c1"}, res.PushedIDs)
	require.Len(t, res.Pulled, 1)
	assert.Equal(t, "Ann", res.Pulled[0].Field("name"))

	var st api.StatusResponse
	require.NoError(t, h.client.Call(ctx, syncrpc.MethodStatus, nil, &st))
	assert.EqualValues(t, 1, st["customers"])
}

func TestSaltAndLogin(t *testing.T) {
	h := newHarness(t)
	_, err := h.accounts.Create(context.Background(), "bob", []byte("pw"), tables.RoleStaff)
	require.NoError(t, err)

	var salt api.SaltResponse
	require.NoError(t, h.client.Call(context.Background(), syncrpc.MethodSalt, api.SaltRequest{Username: "bob"}, &salt))

	err = h.client.Call(context.Background(), syncrpc.MethodLogin, api.LoginRequest{Username: "bob", Verifier: []byte("x")}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	var login api.LoginResponse
	require.NoError(t, h.client.Call(context.Background(), syncrpc.MethodLogin,
		api.LoginRequest{Username: "bob", Verifier: cryptox.VerifierFor([]byte("pw"), salt.Salt)}, &login))
	assert.Equal(t, "staff", login.Role)
	assert.NotEmpty(t, login.AccessToken)
}

func TestPresign_ErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := withToken(t, tables.Caller{UserID: "a", Role: tables.RoleAdmin})

	var out api.PresignResponse
	require.NoError(t, h.client.Call(ctx, syncrpc.MethodPresign, api.PresignRequest{ProductID: "p1"}, &out))
	assert.Equal(t, "products/p1/k", out.Key)

	h.media.err = common.ErrForbidden
	err := h.client.Call(ctx, syncrpc.MethodPresign, api.PresignRequest{ProductID: "p1"}, nil)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	h.media.err = common.ErrInvalidArgument
	err = h.client.Call(ctx, syncrpc.MethodPresign, api.PresignRequest{ProductID: "p1"}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop{}, nil, nil, nil, secret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, nil, nil, nil, secret)
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
