package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/authpb"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/reqctx"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// mapError turns service errors into gRPC statuses. Unknown errors never
// leak their text.
func mapError(err error) error {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrorBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		return status.Error(codes.Internal, common.ErrorInternal.Error())
	}
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	result, err := s.auth.Login(ctx, authpb.String(req, authpb.FieldEmail), authpb.String(req, authpb.FieldPassword))
	if err != nil {
		return nil, mapError(err)
	}
	return loginResponse(result), nil
}

// Register creates an EDITOR account; the reply is shaped like Login's.
func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	result, err := s.auth.Register(ctx, authpb.String(req, authpb.FieldEmail), authpb.String(req, authpb.FieldPassword))
	if err != nil {
		return nil, mapError(err)
	}
	return loginResponse(result), nil
}

func loginResponse(result *services.LoginResult) *structpb.Struct {
	user := authpb.Strings(map[string]string{
		authpb.FieldUserID: result.User.ID,
		authpb.FieldEmail:  result.User.Email,
		authpb.FieldRole:   result.User.Role,
	})

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		authpb.FieldUser:         structpb.NewStructValue(user),
		authpb.FieldAccessToken:  structpb.NewStringValue(result.Tokens.AccessToken),
		authpb.FieldRefreshToken: structpb.NewStringValue(result.Tokens.RefreshToken),
		authpb.FieldExpiresIn:    structpb.NewNumberValue(float64(result.Tokens.ExpiresIn)),
	}}
}

func (s *GRPCServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	pair, err := s.auth.Refresh(ctx, authpb.String(req, authpb.FieldRefreshToken))
	if err != nil {
		return nil, mapError(err)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		authpb.FieldAccessToken:  structpb.NewStringValue(pair.AccessToken),
		authpb.FieldRefreshToken: structpb.NewStringValue(pair.RefreshToken),
		authpb.FieldExpiresIn:    structpb.NewNumberValue(float64(pair.ExpiresIn)),
	}}, nil
}

// Logout ends every session of the caller and revokes the access token the
// call was authenticated with.
func (s *GRPCServer) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	msg, err := s.auth.Logout(ctx, reqctx.ActorID(ctx), accessTokenFrom(ctx))
	if err != nil {
		return nil, mapError(err)
	}

	return authpb.Strings(map[string]string{authpb.FieldMessage: msg}), nil
}

func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {

	actor, ok := reqctx.ActorFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.ErrorUnauthorized.Error())
	}

	return authpb.Strings(map[string]string{
		authpb.FieldUserID:    actor.ID,
		authpb.FieldRole:      actor.Role,
		authpb.FieldRequestID: reqctx.RequestIDFrom(ctx),
	}), nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return authpb.Strings(map[string]string{authpb.FieldStatus: "OK"}), nil
}
