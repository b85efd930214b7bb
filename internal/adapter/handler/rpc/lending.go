// Package rpc declares the lending.v1.Lending gRPC service. Messages are plain
// structs carried by the json codec, so no generated code is involved.
package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "lending.v1.Lending"

	BorrowMethod = "/" + ServiceName + "/Borrow"
	ReturnMethod = "/" + ServiceName + "/Return"
)

type BorrowRequest struct {
	BookID         string `json:"book_id"`
	UserID         string `json:"user_id"`
	ReturnDate     string `json:"return_date"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type BorrowResponse struct {
	LoanID string `json:"loan_id"`
}

type ReturnRequest struct {
	LoanID string `json:"loan_id"`
}

type ReturnResponse struct {
	Success bool `json:"success"`
}

type LendingServer interface {
	Borrow(context.Context, *BorrowRequest) (*BorrowResponse, error)
	Return(context.Context, *ReturnRequest) (*ReturnResponse, error)
}

func RegisterLendingServer(s grpc.ServiceRegistrar, srv LendingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LendingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Borrow", Handler: borrowHandler},
		{MethodName: "Return", Handler: returnHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lending/v1/lending.proto",
}

func borrowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BorrowRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LendingServer).Borrow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: BorrowMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LendingServer).Borrow(ctx, req.(*BorrowRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func returnHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReturnRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LendingServer).Return(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReturnMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LendingServer).Return(ctx, req.(*ReturnRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// LendingClient calls the service over any client connection.
type LendingClient struct {
	cc grpc.ClientConnInterface
}

func NewLendingClient(cc grpc.ClientConnInterface) *LendingClient {
	return &LendingClient{cc: cc}
}

func (c *LendingClient) Borrow(ctx context.Context, in *BorrowRequest, opts ...grpc.CallOption) (*BorrowResponse, error) {
	out := new(BorrowResponse)
	if err := c.cc.Invoke(ctx, BorrowMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LendingClient) Return(ctx context.Context, in *ReturnRequest, opts ...grpc.CallOption) (*ReturnResponse, error) {
	out := new(ReturnResponse)
	if err := c.cc.Invoke(ctx, ReturnMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
