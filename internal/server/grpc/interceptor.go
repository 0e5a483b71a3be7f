package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/authpb"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/reqctx"
	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeaderName may carry a caller-chosen request id.
const RequestIDHeaderName = "x-request-id"

// publicMethods need no access token. Refresh in particular must work after
// the access token has expired.
var publicMethods = map[string]struct{}{
	authpb.FullMethod(authpb.MethodLogin):    {},
	authpb.FullMethod(authpb.MethodRegister): {},
	authpb.FullMethod(authpb.MethodRefresh):  {},
	authpb.FullMethod(authpb.MethodPing):     {},
}

type ctxKey struct{}

// accessTokenFrom returns the bearer token the gate validated for this call.
func accessTokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// requestIDInterceptor binds a request id and logs every call.
func (s *GRPCServer) requestIDInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id := firstHeader(ctx, RequestIDHeaderName)
	if id == "" {
		id = ulid.Make().String()
	}
	ctx = reqctx.WithRequestID(ctx, id)

	start := time.Now()
	resp, err := handler(ctx, req)

	s.logger.Info(ctx, "grpc call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

// accessTokenInterceptor is the authentication gate. For protected methods
// it requires "authorization: Bearer <token>", verifies the token, rejects
// denylisted tokens and binds the caller as the request's actor.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if _, ok := publicMethods[info.FullMethod]; ok {
		return handler(ctx, req)
	}

	token, ok := strings.CutPrefix(firstHeader(ctx, common.AuthorizationHeaderName), common.BearerPrefix)
	if !ok || token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	if s.auth.IsTokenBlacklisted(ctx, token) {
		return nil, status.Error(codes.Unauthenticated, common.ErrTokenRevoked.Error())
	}

	ctx = context.WithValue(ctx, ctxKey{}, token)
	ctx = reqctx.WithActor(ctx, &reqctx.Actor{ID: claims.Subject, Role: claims.Role})
	return handler(ctx, req)
}

func firstHeader(ctx context.Context, name string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(name); len(values) > 0 {
		return values[0]
	}
	return ""
}
