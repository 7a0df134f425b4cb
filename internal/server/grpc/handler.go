package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/shopkeeper/internal/api"
	"github.com/dmitrijs2005/shopkeeper/internal/api/syncrpc"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/server/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func reply(v any) (*structpb.Struct, error) {
	out, err := syncrpc.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func decode(in *structpb.Struct, v any) error {
	if err := syncrpc.FromStruct(in, v); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	return nil
}

func (s *GRPCServer) Ping(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return reply(map[string]string{"status": "OK"})
}

func (s *GRPCServer) Salt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.SaltRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	salt, err := s.accounts.GetSalt(ctx, req.Username)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return reply(api.SaltResponse{Salt: salt})
}

func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.LoginRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	sess, err := s.accounts.Login(ctx, req.Username, req.Verifier)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		return nil, status.Error(codes.Internal, "internal error")
	}

	s.logger.Info(ctx, "Logged in", "username", req.Username, "role", string(sess.Caller.Role))
	return reply(api.LoginResponse{
		AccessToken: sess.AccessToken,
		UserID:      sess.Caller.UserID,
		Role:        string(sess.Caller.Role),
	})
}

func (s *GRPCServer) Sync(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	var req api.SyncRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	results, err := s.sync.Apply(ctx, caller, req.Changes)
	if err != nil {
		s.logger.Error(ctx, "sync failed", "user", caller.UserID, "error", err)
		return nil, status.Error(codes.Internal, "sync failed")
	}

	s.logger.Info(ctx, "Sync applied", "user", caller.UserID, "tables", len(results))
	return reply(api.SyncResponse{Success: true, Results: results})
}

func (s *GRPCServer) Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, ok := auth.CallerFromContext(ctx); !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	st, err := s.sync.Status(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return reply(st)
}

func (s *GRPCServer) Presign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	var req api.PresignRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	up, err := s.media.PresignProductImage(ctx, caller, req.ProductID, req.ContentType)
	switch {
	case err == nil:
		return reply(api.PresignResponse{Key: up.Key, URL: up.URL})
	case errors.Is(err, common.ErrForbidden):
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, common.ErrInvalidArgument):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.Error(ctx, "presign failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
}
