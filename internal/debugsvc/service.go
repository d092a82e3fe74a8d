package debugsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the gRPC service's fully-qualified name, the same
// role a .proto file's "service DebugService" line plays for generated
// stubs; this file hand-authors that stub layer instead of running
// protoc, with jsonCodec standing in for the wire format.
const ServiceName = "serena.debug.v1.DebugService"

// SnapshotRequest takes no parameters; it exists so Snapshot has a
// request type to match the unary-RPC shape.
type SnapshotRequest struct{}

// WatchRequest configures how often Watch pushes a new KernelSnapshot.
type WatchRequest struct {
	IntervalMillis int64 `json:"interval_millis"`
}

// PushSummary acknowledges a batch of snapshots a Forwarder pushed
// upstream through Push.
type PushSummary struct {
	Accepted int64 `json:"accepted"`
}

// DebugServiceServer is the service a kernel instance (Snapshot/Watch)
// or an upstream aggregator (Push) implements. A concrete server
// embeds UnimplementedDebugServiceServer and overrides only the RPCs
// it actually answers, the same partial-implementation pattern
// protoc-gen-go-grpc generates.
type DebugServiceServer interface {
	Snapshot(context.Context, *SnapshotRequest) (*KernelSnapshot, error)
	Watch(*WatchRequest, DebugService_WatchServer) error
	Push(DebugService_PushServer) error
}

// UnimplementedDebugServiceServer provides Unimplemented-status
// defaults for every RPC; embed it and override what you serve.
type UnimplementedDebugServiceServer struct{}

func (UnimplementedDebugServiceServer) Snapshot(context.Context, *SnapshotRequest) (*KernelSnapshot, error) {
	return nil, status.Error(codes.Unimplemented, "method Snapshot not implemented")
}

func (UnimplementedDebugServiceServer) Watch(*WatchRequest, DebugService_WatchServer) error {
	return status.Error(codes.Unimplemented, "method Watch not implemented")
}

func (UnimplementedDebugServiceServer) Push(DebugService_PushServer) error {
	return status.Error(codes.Unimplemented, "method Push not implemented")
}

// DebugService_PushServer is the server side of the Push stream: an
// upstream aggregator receives a stream of KernelSnapshots and
// acknowledges once the sender half-closes.
type DebugService_PushServer interface {
	SendAndClose(*PushSummary) error
	Recv() (*KernelSnapshot, error)
	grpc.ServerStream
}

type debugServicePushServer struct {
	grpc.ServerStream
}

func (s *debugServicePushServer) SendAndClose(m *PushSummary) error {
	return s.ServerStream.SendMsg(m)
}

func (s *debugServicePushServer) Recv() (*KernelSnapshot, error) {
	m := new(KernelSnapshot)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _DebugService_Push_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(DebugServiceServer).Push(&debugServicePushServer{stream})
}

// DebugService_WatchServer is the server side of the Watch stream.
type DebugService_WatchServer interface {
	Send(*KernelSnapshot) error
	grpc.ServerStream
}

type debugServiceWatchServer struct {
	grpc.ServerStream
}

func (s *debugServiceWatchServer) Send(m *KernelSnapshot) error {
	return s.ServerStream.SendMsg(m)
}

func callContentSubtype() grpc.CallOption {
	return grpc.CallContentSubtype(codecName)
}

func _DebugService_Snapshot_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SnapshotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DebugServiceServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Snapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DebugServiceServer).Snapshot(ctx, req.(*SnapshotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _DebugService_Watch_Handler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DebugServiceServer).Watch(in, &debugServiceWatchServer{stream})
}

// ServiceDesc is this service's grpc.ServiceDesc, registered the same
// way a generated _grpc.pb.go file's var would be.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DebugServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: _DebugService_Snapshot_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: _DebugService_Watch_Handler, ServerStreams: true},
		{StreamName: "Push", Handler: _DebugService_Push_Handler, ClientStreams: true},
	},
	Metadata: "debugsvc.proto",
}

// RegisterDebugServiceServer registers srv against s, mirroring the
// generated RegisterXxxServer helper's signature.
func RegisterDebugServiceServer(s grpc.ServiceRegistrar, srv DebugServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// DebugServiceClient is the client side of the service.
type DebugServiceClient interface {
	Snapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*KernelSnapshot, error)
	Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (DebugService_WatchClient, error)
	Push(ctx context.Context, opts ...grpc.CallOption) (DebugService_PushClient, error)
}

// DebugService_PushClient is the client side of the Push stream.
type DebugService_PushClient interface {
	Send(*KernelSnapshot) error
	CloseAndRecv() (*PushSummary, error)
	grpc.ClientStream
}

type debugServicePushClient struct {
	grpc.ClientStream
}

func (c *debugServicePushClient) Send(m *KernelSnapshot) error {
	return c.ClientStream.SendMsg(m)
}

func (c *debugServicePushClient) CloseAndRecv() (*PushSummary, error) {
	if err := c.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(PushSummary)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *debugServiceClient) Push(ctx context.Context, opts ...grpc.CallOption) (DebugService_PushClient, error) {
	opts = append(opts, callContentSubtype())
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], ServiceName+"/Push", opts...)
	if err != nil {
		return nil, err
	}
	return &debugServicePushClient{stream}, nil
}

type debugServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDebugServiceClient(cc grpc.ClientConnInterface) DebugServiceClient {
	return &debugServiceClient{cc}
}

func (c *debugServiceClient) Snapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*KernelSnapshot, error) {
	out := new(KernelSnapshot)
	opts = append(opts, callContentSubtype())
	if err := c.cc.Invoke(ctx, ServiceName+"/Snapshot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DebugService_WatchClient is the client side of the Watch stream.
type DebugService_WatchClient interface {
	Recv() (*KernelSnapshot, error)
	grpc.ClientStream
}

type debugServiceWatchClient struct {
	grpc.ClientStream
}

func (c *debugServiceWatchClient) Recv() (*KernelSnapshot, error) {
	m := new(KernelSnapshot)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *debugServiceClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (DebugService_WatchClient, error) {
	opts = append(opts, callContentSubtype())
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ServiceName+"/Watch", opts...)
	if err != nil {
		return nil, err
	}
	x := &debugServiceWatchClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
