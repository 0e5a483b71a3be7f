package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/authpb"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	email    = "bob@example.com"
	password = "s3cret-password"
)

type harness struct {
	client *authpb.AuthServiceClient
	issuer *auth.Issuer
	svc    *services.AuthService
}

func startServer(t *testing.T) *harness {
	t.Helper()

	hasher, err := cryptox.NewArgon2(cryptox.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	require.NoError(t, err)
	lookup, err := cryptox.NewLookupHasher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	issuer, err := auth.NewIssuer([]byte("grpc-test-secret-grpc-test-secret"), 15*time.Minute)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	svc := services.NewAuthService(memory.NewRepositoryManager(), issuer, hasher, lookup, metrics.New(), logging.Nop{}, cfg)
	_, err = svc.CreateUser(context.Background(), email, password, models.RoleAdmin)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", logging.Nop{}, svc, issuer).build()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: authpb.NewAuthServiceClient(conn), issuer: issuer, svc: svc}
}

func bearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, common.BearerPrefix+token)
}

func login(t *testing.T, h *harness) *structpb.Struct {
	t.Helper()
	resp, err := h.client.Login(context.Background(), authpb.Strings(map[string]string{
		authpb.FieldEmail:    email,
		authpb.FieldPassword: password,
	}))
	require.NoError(t, err)
	return resp
}

func TestPing(t *testing.T) {
	h := startServer(t)
	resp, err := h.client.Ping(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "OK", authpb.String(resp, authpb.FieldStatus))
}

func TestLoginMeLogout(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	resp := login(t, h)
	access := authpb.String(resp, authpb.FieldAccessToken)
	require.NotEmpty(t, access)
	assert.NotEmpty(t, authpb.String(resp, authpb.FieldRefreshToken))
	assert.EqualValues(t, 900, authpb.Int(resp, authpb.FieldExpiresIn))
	user := authpb.Object(resp, authpb.FieldUser)
	assert.Equal(t, email, authpb.String(user, authpb.FieldEmail))
	assert.Equal(t, models.RoleAdmin, authpb.String(user, authpb.FieldRole))

	rid := metadata.AppendToOutgoingContext(bearer(ctx, access), RequestIDHeaderName, "req-1")
	me, err := h.client.Me(rid, nil)
	require.NoError(t, err)
	assert.Equal(t, authpb.String(user, authpb.FieldUserID), authpb.String(me, authpb.FieldUserID))
	assert.Equal(t, models.RoleAdmin, authpb.String(me, authpb.FieldRole))
	assert.Equal(t, "req-1", authpb.String(me, authpb.FieldRequestID))

	out, err := h.client.Logout(bearer(ctx, access), nil)
	require.NoError(t, err)
	assert.Equal(t, services.LogoutMessage, authpb.String(out, authpb.FieldMessage))

	_, err = h.client.Me(bearer(ctx, access), nil)
	st := status.Convert(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, common.ErrTokenRevoked.Error(), st.Message())

	_, err = h.client.Refresh(ctx, authpb.Strings(map[string]string{
		authpb.FieldRefreshToken: authpb.String(resp, authpb.FieldRefreshToken),
	}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRefresh_WorksWithoutAccessToken(t *testing.T) {
	h := startServer(t)

	resp := login(t, h)
	out, err := h.client.Refresh(context.Background(), authpb.Strings(map[string]string{
		authpb.FieldRefreshToken: authpb.String(resp, authpb.FieldRefreshToken),
	}))
	require.NoError(t, err)
	assert.NotEqual(t, authpb.String(resp, authpb.FieldRefreshToken), authpb.String(out, authpb.FieldRefreshToken))

	_, err = h.client.Refresh(context.Background(), authpb.Strings(map[string]string{
		authpb.FieldRefreshToken: authpb.String(resp, authpb.FieldRefreshToken),
	}))
	st := status.Convert(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, common.ErrInvalidRefreshToken.Error(), st.Message())
}

func TestLogin_Errors(t *testing.T) {
	h := startServer(t)

	_, err := h.client.Login(context.Background(), authpb.Strings(map[string]string{
		authpb.FieldEmail: email, authpb.FieldPassword: "wrong",
	}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.client.Refresh(context.Background(), nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRegister(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	resp, err := h.client.Register(ctx, authpb.Strings(map[string]string{
		authpb.FieldEmail:    "New@Example.com",
		authpb.FieldPassword: "long-enough",
	}))
	require.NoError(t, err)
	user := authpb.Object(resp, authpb.FieldUser)
	assert.Equal(t, "new@example.com", authpb.String(user, authpb.FieldEmail))
	assert.Equal(t, models.RoleEditor, authpb.String(user, authpb.FieldRole))

	me, err := h.client.Me(bearer(ctx, authpb.String(resp, authpb.FieldAccessToken)), nil)
	require.NoError(t, err)
	assert.Equal(t, authpb.String(user, authpb.FieldUserID), authpb.String(me, authpb.FieldUserID))

	_, err = h.client.Register(ctx, authpb.Strings(map[string]string{
		authpb.FieldEmail:    "new@example.com",
		authpb.FieldPassword: "long-enough",
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Register(ctx, authpb.Strings(map[string]string{
		authpb.FieldEmail:    "other@example.com",
		authpb.FieldPassword: "short",
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGate(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	_, err := h.client.Me(ctx, nil)
	st := status.Convert(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "missing token", st.Message())

	_, err = h.client.Me(bearer(ctx, "garbage"), nil)
	assert.Equal(t, common.ErrInvalidToken.Error(), status.Convert(err).Message())

	noPrefix := metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "token-without-scheme")
	_, err = h.client.Logout(noPrefix, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	expired, err := auth.NewIssuer([]byte("grpc-test-secret-grpc-test-secret"), time.Nanosecond)
	require.NoError(t, err)
	tok, err := expired.GenerateAccessToken("u1", models.RoleAdmin)
	require.NoError(t, err)
	time.Sleep(time.Second)
	_, err = h.client.Me(bearer(ctx, tok), nil)
	assert.Equal(t, common.ErrTokenExpired.Error(), status.Convert(err).Message())
}
