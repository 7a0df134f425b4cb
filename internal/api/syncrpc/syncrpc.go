// Package syncrpc describes the gRPC flavour of the sync API.
//
// There is no generated code: every method takes and returns a
// google.protobuf.Struct holding the same JSON object the HTTP API uses, so
// both transports share the types in package api.
package syncrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "shopkeeper.sync.SyncService"

// Method names.
const (
	MethodPing    = "Ping"
	MethodSalt    = "Salt"
	MethodLogin   = "Login"
	MethodSync    = "Sync"
	MethodStatus  = "Status"
	MethodPresign = "Presign"
)

// FullMethod returns the "/service/method" form used by interceptors and
// ClientConn.Invoke.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// SyncServiceServer is implemented by the server.
type SyncServiceServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Salt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sync(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Presign(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFn func(SyncServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, fn unaryFn) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(SyncServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return fn(srv.(SyncServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc registers a SyncServiceServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodPing, Handler: handler(MethodPing, SyncServiceServer.Ping)},
		{MethodName: MethodSalt, Handler: handler(MethodSalt, SyncServiceServer.Salt)},
		{MethodName: MethodLogin, Handler: handler(MethodLogin, SyncServiceServer.Login)},
		{MethodName: MethodSync, Handler: handler(MethodSync, SyncServiceServer.Sync)},
		{MethodName: MethodStatus, Handler: handler(MethodStatus, SyncServiceServer.Status)},
		{MethodName: MethodPresign, Handler: handler(MethodPresign, SyncServiceServer.Presign)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shopkeeper/sync.proto",
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ToStruct converts any JSON-encodable object into a Struct. nil yields an
// empty Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if v == nil {
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	return out, nil
}

// FromStruct decodes s into v using v's JSON tags.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Client calls the sync service over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with in as the request and decodes the reply into out.
// out may be nil when the reply is not needed.
func (c *Client) Call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return FromStruct(resp, out)
}
