package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

type HTTPTransport struct {
	tokenHolder
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, authenticated bool, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if tok := t.accessToken(); tok != "" {
			req.Header.Set(common.AccessTokenHeaderName, common.BearerPrefix+tok)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response from %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var e api.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	msg := e.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", common.ErrorUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", common.ErrForbidden, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", common.ErrInvalidArgument, msg)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", common.ErrUnavailable, msg)
	default:
		return fmt.Errorf("server error: %s", msg)
	}
}

func (t *HTTPTransport) Ping(ctx context.Context) error {
	return t.do(ctx, http.MethodGet, api.PathPing, false, nil, nil)
}

func (t *HTTPTransport) Salt(ctx context.Context, username string) ([]byte, error) {
	var resp api.SaltResponse
	if err := t.do(ctx, http.MethodPost, api.PathAuthSalt, false, api.SaltRequest{Username: username}, &resp); err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

func (t *HTTPTransport) Login(ctx context.Context, username string, verifier []byte) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := t.do(ctx, http.MethodPost, api.PathAuthLogin, false, api.LoginRequest{Username: username, Verifier: verifier}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) Sync(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := t.do(ctx, http.MethodPost, api.PathSync, true, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Error == "" {
			return nil, errors.New("sync rejected by server")
		}
		return nil, fmt.Errorf("sync rejected by server: %s", resp.Error)
	}
	return &resp, nil
}

func (t *HTTPTransport) Status(ctx context.Context) (api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := t.do(ctx, http.MethodGet, api.PathSyncStatus, true, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *HTTPTransport) Presign(ctx context.Context, req *api.PresignRequest) (*api.PresignResponse, error) {
	var resp api.PresignResponse
	if err := t.do(ctx, http.MethodPost, api.PathPresign, true, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
