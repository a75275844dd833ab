package wire

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "dataconnect.TagBus"
)

// TagBusServer is implemented by the remote backplane server.
type TagBusServer interface {
	RegisterTags(context.Context, *RegisterTagsRequest) (*RegisterTagsResponse, error)
	Publish(context.Context, *PublishRequest) (*PublishResponse, error)
	GetLastValue(context.Context, *GetRequest) (*GetResponse, error)
	Subscribe(*SubscribeRequest, TagBus_SubscribeServer) error
}

// TagBus_SubscribeServer is the server-side handle for a Subscribe stream.
type TagBus_SubscribeServer interface {
	Send(*Update) error
	grpc.ServerStream
}

type tagBusSubscribeServer struct {
	grpc.ServerStream
}

func (x *tagBusSubscribeServer) Send(m *Update) error {
	return x.ServerStream.SendMsg(m)
}

func _TagBus_RegisterTags_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterTagsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TagBusServer).RegisterTags(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RegisterTags"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TagBusServer).RegisterTags(ctx, req.(*RegisterTagsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _TagBus_Publish_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PublishRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TagBusServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Publish"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TagBusServer).Publish(ctx, req.(*PublishRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _TagBus_GetLastValue_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TagBusServer).GetLastValue(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetLastValue"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TagBusServer).GetLastValue(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _TagBus_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TagBusServer).Subscribe(in, &tagBusSubscribeServer{stream})
}

// TagBus_ServiceDesc is the grpc.ServiceDesc a *grpc.Server registers this
// contract under, in the same shape protoc-gen-go-grpc would emit.
var TagBus_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TagBusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterTags", Handler: _TagBus_RegisterTags_Handler},
		{MethodName: "Publish", Handler: _TagBus_Publish_Handler},
		{MethodName: "GetLastValue", Handler: _TagBus_GetLastValue_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _TagBus_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "dataconnect/tagbus.proto",
}

// RegisterTagBusServer registers srv with s under TagBus_ServiceDesc.
func RegisterTagBusServer(s grpc.ServiceRegistrar, srv TagBusServer) {
	s.RegisterService(&TagBus_ServiceDesc, srv)
}

// TagBusClient is the client stub for TagBusServer.
type TagBusClient interface {
	RegisterTags(ctx context.Context, in *RegisterTagsRequest, opts ...grpc.CallOption) (*RegisterTagsResponse, error)
	Publish(ctx context.Context, in *PublishRequest, opts ...grpc.CallOption) (*PublishResponse, error)
	GetLastValue(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error)
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (TagBus_SubscribeClient, error)
}

type tagBusClient struct {
	cc grpc.ClientConnInterface
}

// NewTagBusClient wraps an established connection as a TagBusClient.
func NewTagBusClient(cc grpc.ClientConnInterface) TagBusClient {
	return &tagBusClient{cc}
}

func (c *tagBusClient) RegisterTags(ctx context.Context, in *RegisterTagsRequest, opts ...grpc.CallOption) (*RegisterTagsResponse, error) {
	out := new(RegisterTagsResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/RegisterTags", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tagBusClient) Publish(ctx context.Context, in *PublishRequest, opts ...grpc.CallOption) (*PublishResponse, error) {
	out := new(PublishResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Publish", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tagBusClient) GetLastValue(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetLastValue", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tagBusClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (TagBus_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &TagBus_ServiceDesc.Streams[0], "/"+serviceName+"/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	x := &tagBusSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// TagBus_SubscribeClient is the client-side handle for a Subscribe stream.
type TagBus_SubscribeClient interface {
	Recv() (*Update, error)
	grpc.ClientStream
}

type tagBusSubscribeClient struct {
	grpc.ClientStream
}

func (x *tagBusSubscribeClient) Recv() (*Update, error) {
	m := new(Update)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
