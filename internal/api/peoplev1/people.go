// Package peoplev1 declares the diaspora.people.v1.People gRPC service.
// Messages are protobuf well-known types carrying person documents
// (see package convert), so no generated code is needed.
package peoplev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "diaspora.people.v1.People"

// Full method names.
const (
	ResolveMethod       = "/" + ServiceName + "/Resolve"
	ExportMethod        = "/" + ServiceName + "/Export"
	SearchMethod        = "/" + ServiceName + "/Search"
	LoginMethod         = "/" + ServiceName + "/Login"
	UpdateProfileMethod = "/" + ServiceName + "/UpdateProfile"
)

// PeopleServer is implemented by the pod.
type PeopleServer interface {
	// Resolve returns the document of any person, fetching remote ones on a miss.
	Resolve(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Export returns the document of a local person; peer pods call it.
	Export(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Search returns a list of person documents.
	Search(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	// Login takes {"handle", "password"} and returns tokens with the person.
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// UpdateProfile replaces the caller's profile and returns the person document.
	UpdateProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedPeopleServer answers Unimplemented for every method.
type UnimplementedPeopleServer struct{}

func (UnimplementedPeopleServer) Resolve(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Resolve not implemented")
}
func (UnimplementedPeopleServer) Export(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Export not implemented")
}
func (UnimplementedPeopleServer) Search(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Search not implemented")
}
func (UnimplementedPeopleServer) Login(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Login not implemented")
}
func (UnimplementedPeopleServer) UpdateProfile(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateProfile not implemented")
}

// RegisterPeopleServer attaches srv to s.
func RegisterPeopleServer(s grpc.ServiceRegistrar, srv PeopleServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the People service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PeopleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: handler(ResolveMethod, newString, PeopleServer.Resolve)},
		{MethodName: "Export", Handler: handler(ExportMethod, newString, PeopleServer.Export)},
		{MethodName: "Search", Handler: handler(SearchMethod, newString, PeopleServer.Search)},
		{MethodName: "Login", Handler: handler(LoginMethod, newStruct, PeopleServer.Login)},
		{MethodName: "UpdateProfile", Handler: handler(UpdateProfileMethod, newStruct, PeopleServer.UpdateProfile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "diaspora/people/v1/people.proto",
}

func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newStruct() *structpb.Struct        { return new(structpb.Struct) }

func handler[Req, Resp proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(PeopleServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PeopleServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		h := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PeopleServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, h)
	}
}

// PeopleClient is the client side of the People service.
type PeopleClient struct {
	cc grpc.ClientConnInterface
}

// NewPeopleClient wraps an established connection.
func NewPeopleClient(cc grpc.ClientConnInterface) *PeopleClient {
	return &PeopleClient{cc: cc}
}

func (c *PeopleClient) Resolve(ctx context.Context, handle string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResolveMethod, wrapperspb.String(handle), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeopleClient) Export(ctx context.Context, handle string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ExportMethod, wrapperspb.String(handle), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeopleClient) Search(ctx context.Context, query string, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, SearchMethod, wrapperspb.String(query), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeopleClient) Login(ctx context.Context, handle, password string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"handle": handle, "password": password})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LoginMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile needs a bearer token in the outgoing metadata.
func (c *PeopleClient) UpdateProfile(ctx context.Context, profile *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, UpdateProfileMethod, profile, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
