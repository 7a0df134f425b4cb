package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/shopkeeper/internal/api/syncrpc"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var authenticatedMethods = map[string]struct{}{
	syncrpc.FullMethod(syncrpc.MethodSync):    {},
	syncrpc.FullMethod(syncrpc.MethodStatus):  {},
	syncrpc.FullMethod(syncrpc.MethodPresign): {},
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if _, ok := authenticatedMethods[info.FullMethod]; !ok {
		return handler(ctx, req)
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			header = values[0]
		}
	}

	token, err := auth.BearerToken(header)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	caller, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(auth.WithCaller(ctx, caller), req)
}
