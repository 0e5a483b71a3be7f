package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/authpb"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// User is the identity returned by Login.
type User struct {
	ID    string
	Email string
	Role  string
}

// Tokens is a token pair as returned by the server.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Identity is the actor the server bound to an authenticated call.
type Identity struct {
	UserID    string
	Role      string
	RequestID string
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *authpb.AuthServiceClient

	mu     sync.Mutex
	tokens Tokens
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AuthorizationHeaderName)
	if token != "" {
		md.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func isPublic(method string) bool {
	switch method {
	case authpb.FullMethod(authpb.MethodLogin), authpb.FullMethod(authpb.MethodRegister),
		authpb.FullMethod(authpb.MethodRefresh), authpb.FullMethod(authpb.MethodPing):
		return true
	}
	return false
}

// accessTokenInterceptor attaches the access token and retries once after a
// refresh when the server says the token expired.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if isPublic(method) {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	tokens := s.Tokens()
	err := invoker(withAccessToken(ctx, tokens.AccessToken), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if tokens.RefreshToken == "" {
		return err
	}

	if _, err := s.Refresh(ctx); err != nil {
		return err
	}

	// TOKENS REFRESHED, retrying with the new access token
	return invoker(withAccessToken(ctx, s.Tokens().AccessToken), method, req, reply, cc, opts...)
}

func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = authpb.NewAuthServiceClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// Tokens returns the current token pair.
func (s *GRPCClient) Tokens() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// SetTokens restores a pair, e.g. from a saved Session.
func (s *GRPCClient) SetTokens(t Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = t
}

func tokensFrom(resp *structpb.Struct) Tokens {
	return Tokens{
		AccessToken:  authpb.String(resp, authpb.FieldAccessToken),
		RefreshToken: authpb.String(resp, authpb.FieldRefreshToken),
		ExpiresIn:    authpb.Int(resp, authpb.FieldExpiresIn),
	}
}

type credentialCall func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (s *GRPCClient) Login(ctx context.Context, email string, password []byte) (*User, error) {
	return s.authenticate(ctx, s.client.Login, email, password)
}

// Register creates an account and keeps the pair of its first session.
func (s *GRPCClient) Register(ctx context.Context, email string, password []byte) (*User, error) {
	return s.authenticate(ctx, s.client.Register, email, password)
}

func (s *GRPCClient) authenticate(ctx context.Context, call credentialCall, email string, password []byte) (*User, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		authpb.FieldEmail:    structpb.NewStringValue(email),
		authpb.FieldPassword: structpb.NewStringValue(string(password)),
	}}

	resp, err := call(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}

	s.SetTokens(tokensFrom(resp))

	u := authpb.Object(resp, authpb.FieldUser)
	return &User{
		ID:    authpb.String(u, authpb.FieldUserID),
		Email: authpb.String(u, authpb.FieldEmail),
		Role:  authpb.String(u, authpb.FieldRole),
	}, nil
}

// Refresh rotates the stored refresh token.
func (s *GRPCClient) Refresh(ctx context.Context) (Tokens, error) {
	current := s.Tokens()
	if current.RefreshToken == "" {
		return Tokens{}, ErrNoSession
	}

	resp, err := s.client.Refresh(ctx, authpb.Strings(map[string]string{
		authpb.FieldRefreshToken: current.RefreshToken,
	}))
	if err != nil {
		return Tokens{}, s.mapError(err)
	}

	t := tokensFrom(resp)
	s.SetTokens(t)
	return t, nil
}

func (s *GRPCClient) Logout(ctx context.Context) (string, error) {
	resp, err := s.client.Logout(ctx, nil)
	if err != nil {
		return "", s.mapError(err)
	}
	s.SetTokens(Tokens{})
	return authpb.String(resp, authpb.FieldMessage), nil
}

func (s *GRPCClient) Me(ctx context.Context) (*Identity, error) {
	resp, err := s.client.Me(ctx, nil)
	if err != nil {
		return nil, s.mapError(err)
	}
	return &Identity{
		UserID:    authpb.String(resp, authpb.FieldUserID),
		Role:      authpb.String(resp, authpb.FieldRole),
		RequestID: authpb.String(resp, authpb.FieldRequestID),
	}, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	_, err := s.client.Ping(ctx, nil)
	return s.mapError(err)
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
