package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	serviceName       = "thermowatch.v1.ReadingService"
	sendReadingMethod = "/" + serviceName + "/SendReading"
)

// ReadingServiceServer is implemented by the server-side receiver.
type ReadingServiceServer interface {
	SendReading(context.Context, *ReadingMessage) (*SendResponse, error)
}

// UnimplementedReadingServiceServer returns codes.Unimplemented for every method.
type UnimplementedReadingServiceServer struct{}

func (UnimplementedReadingServiceServer) SendReading(context.Context, *ReadingMessage) (*SendResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SendReading not implemented")
}

// RegisterReadingServiceServer attaches srv to s.
func RegisterReadingServiceServer(s grpc.ServiceRegistrar, srv ReadingServiceServer) {
	s.RegisterService(&readingServiceDesc, srv)
}

func sendReadingHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReadingMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReadingServiceServer).SendReading(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendReadingMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReadingServiceServer).SendReading(ctx, req.(*ReadingMessage))
	}
	return interceptor(ctx, in, info, handler)
}

var readingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReadingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendReading", Handler: sendReadingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "thermowatch/v1/reading.proto",
}

// ReadingServiceClient is the agent-side stub.
type ReadingServiceClient interface {
	SendReading(ctx context.Context, in *ReadingMessage, opts ...grpc.CallOption) (*SendResponse, error)
}

type readingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReadingServiceClient wraps cc. Every call uses the JSON codec.
func NewReadingServiceClient(cc grpc.ClientConnInterface) ReadingServiceClient {
	return &readingServiceClient{cc: cc}
}

func (c *readingServiceClient) SendReading(ctx context.Context, in *ReadingMessage, opts ...grpc.CallOption) (*SendResponse, error) {
	out := new(SendResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, sendReadingMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
