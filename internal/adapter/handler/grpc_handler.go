package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/book-lending/internal/adapter/handler/rpc"
	"github.com/rl1809/book-lending/internal/config"
	"github.com/rl1809/book-lending/internal/core/service"
	"github.com/rl1809/book-lending/internal/logger"
)

type GRPCHandler struct {
	lending *service.LendingService
}

func NewGRPCHandler(lending *service.LendingService) *GRPCHandler {
	return &GRPCHandler{lending: lending}
}

func (h *GRPCHandler) Borrow(ctx context.Context, req *rpc.BorrowRequest) (*rpc.BorrowResponse, error) {
	returnDate, err := parseReturnDate(req.ReturnDate)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	userID := req.UserID
	if userID == "" {
		userID, _ = ctx.Value(sessionUserKey{}).(string)
	}

	loanID, err := h.lending.Borrow(ctx, service.BorrowRequest{
		BookID:         req.BookID,
		UserID:         userID,
		ReturnDate:     returnDate,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	return &rpc.BorrowResponse{LoanID: loanID}, nil
}

func (h *GRPCHandler) Return(ctx context.Context, req *rpc.ReturnRequest) (*rpc.ReturnResponse, error) {
	if err := h.lending.Return(ctx, req.LoanID); err != nil {
		return nil, grpcError(ctx, err)
	}
	return &rpc.ReturnResponse{Success: true}, nil
}

var grpcCodes = []struct {
	target error
	code   codes.Code
}{
	{service.ErrUnavailable, codes.Unavailable},
	{service.ErrValidation, codes.InvalidArgument},
	{service.ErrNotFound, codes.NotFound},
	{service.ErrOutOfStock, codes.FailedPrecondition},
	{service.ErrBookMissing, codes.FailedPrecondition},
	{service.ErrDuplicateRequest, codes.AlreadyExists},
	{service.ErrUpdateFailed, codes.Aborted},
	{service.ErrUnauthorized, codes.Unauthenticated},
	{service.ErrForbidden, codes.PermissionDenied},
}

func grpcError(ctx context.Context, err error) error {
	for _, c := range grpcCodes {
		if errors.Is(err, c.target) {
			return status.Error(c.code, c.target.Error())
		}
	}
	logger.GetLogger(ctx).WithError(err).Error("unexpected error")
	return status.Error(codes.Internal, "internal error")
}

// UnaryLogger attaches a request-scoped logger and logs each call's outcome.
func UnaryLogger() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		entry := logrus.WithField("method", info.FullMethod)

		resp, err := handler(logger.WithLogger(ctx, entry), req)

		entry.WithFields(logrus.Fields{
			"code":    status.Code(err).String(),
			"latency": time.Since(start).String(),
		}).Info("rpc completed")
		return resp, err
	}
}

type sessionUserKey struct{}

// ProtectedMethods maps the configured route protection onto the gRPC methods
// serving the same operations.
func ProtectedMethods(protected map[string]bool) map[string]bool {
	return map[string]bool{
		rpc.BorrowMethod: protected[config.RouteBorrow],
		rpc.ReturnMethod: protected[config.RouteReturn],
	}
}

// UnaryAuth requires a session token on the protected methods. The token comes
// from the "authorization" metadata, with or without a Bearer prefix, or from
// "token".
func UnaryAuth(sessions *service.SessionService, protected map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !protected[info.FullMethod] {
			return handler(ctx, req)
		}

		claims, err := sessions.Authenticate(ctx, metadataToken(ctx))
		if err != nil {
			return nil, grpcError(ctx, err)
		}

		ctx = context.WithValue(ctx, sessionUserKey{}, claims.User)
		ctx = logger.WithLogger(ctx, logger.GetLogger(ctx).WithField("user", claims.User))
		return handler(ctx, req)
	}
}

func metadataToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get("authorization"); len(values) > 0 {
		token := strings.TrimSpace(values[0])
		if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		return token
	}
	if values := md.Get("token"); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
