package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/api/syncrpc"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCTransport struct {
	tokenHolder
	conn    *grpc.ClientConn
	client  *syncrpc.Client
	timeout time.Duration
}

// NewGRPC connects lazily to addr. Extra dial options are appended to the
// defaults (plaintext, credential interceptor).
func NewGRPC(addr string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCTransport, error) {
	t := &GRPCTransport{timeout: timeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(t.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	t.client = syncrpc.NewClient(conn)
	return t, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, common.BearerPrefix+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (t *GRPCTransport) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if tok := t.accessToken(); tok != "" {
		ctx = withAccessToken(ctx, tok)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}

func (t *GRPCTransport) call(ctx context.Context, method string, in, out any) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := t.client.Call(ctx, method, in, out); err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", common.ErrorUnauthorized, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", common.ErrForbidden, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrInvalidArgument, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", common.ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func (t *GRPCTransport) Ping(ctx context.Context) error {
	return t.call(ctx, syncrpc.MethodPing, nil, nil)
}

func (t *GRPCTransport) Salt(ctx context.Context, username string) ([]byte, error) {
	var resp api.SaltResponse
	if err := t.call(ctx, syncrpc.MethodSalt, api.SaltRequest{Username: username}, &resp); err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

func (t *GRPCTransport) Login(ctx context.Context, username string, verifier []byte) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := t.call(ctx, syncrpc.MethodLogin, api.LoginRequest{Username: username, Verifier: verifier}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *GRPCTransport) Sync(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := t.call(ctx, syncrpc.MethodSync, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New("sync rejected by server")
	}
	return &resp, nil
}

func (t *GRPCTransport) Status(ctx context.Context) (api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := t.call(ctx, syncrpc.MethodStatus, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *GRPCTransport) Presign(ctx context.Context, req *api.PresignRequest) (*api.PresignResponse, error) {
	var resp api.PresignResponse
	if err := t.call(ctx, syncrpc.MethodPresign, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
