package grpc_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/memory"
	transport "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/grpc"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/password"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/token"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/channel"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/server"
	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var signingKey = func() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}()

type fixture struct {
	client *transport.SessionClient
	conn   *grpc.ClientConn
	store  *memory.Store
	tokens *token.Service
}

func newFixture(t *testing.T, channels transport.ChannelViews) *fixture {
	t.Helper()
	store := memory.New()
	util := jwt.NewJWTUtilFromKeys(signingKey, &signingKey.PublicKey, jwt.Settings{
		AccessTTL: time.Minute, RefreshTTL: time.Hour, Issuer: "test", Audience: "test",
	})
	tokens := token.New(store, util, nil, zap.NewNop())
	hasher := password.NewArgon2Hasher("pepper", &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	svc := account.New(store, nil, tokens, hasher, dto.NewValidator(), zap.NewNop(), account.Options{})
	if channels == nil {
		channels = channel.New(store, store, store, store)
	}

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(transport.NewHandler(svc, channels, zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, lis)
		close(done)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})

	return &fixture{client: transport.NewSessionClient(conn), conn: conn, store: store, tokens: tokens}
}

func (f *fixture) seed(t *testing.T, username string) uuid.UUID {
	t.Helper()
	id, err := f.store.Create(context.Background(), model.Account{
		Username: username, Email: username + "@x.com", FullName: "Test " + username,
		PasswordHash: "hash", AvatarURL: "https://cdn/" + username + ".png",
	})
	require.NoError(t, err)
	return id
}

func TestVerifyAccess(t *testing.T) {
	f := newFixture(t, nil)
	id := f.seed(t, "jane")
	pair, err := f.tokens.IssuePair(context.Background(), id)
	require.NoError(t, err)

	resp, err := f.client.VerifyAccess(context.Background(), &transport.VerifyAccessRequest{AccessToken: pair.AccessToken})
	require.NoError(t, err)
	require.Equal(t, id.String(), resp.AccountID)
	require.NotEmpty(t, resp.TokenID)
	require.Greater(t, resp.ExpiresAt, time.Now().Unix())

	_, err = f.client.VerifyAccess(context.Background(), &transport.VerifyAccessRequest{AccessToken: pair.RefreshToken})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = f.client.VerifyAccess(context.Background(), &transport.VerifyAccessRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGetAccount(t *testing.T) {
	f := newFixture(t, nil)
	id := f.seed(t, "jane")

	acct, err := f.client.GetAccount(context.Background(), &transport.GetAccountRequest{AccountID: id.String()})
	require.NoError(t, err)
	require.Equal(t, "jane", acct.Username)
	require.Equal(t, "https://cdn/jane.png", acct.AvatarURL)

	_, err = f.client.GetAccount(context.Background(), &transport.GetAccountRequest{AccountID: "nope"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = f.client.GetAccount(context.Background(), &transport.GetAccountRequest{AccountID: uuid.NewString()})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetChannelProfile(t *testing.T) {
	f := newFixture(t, nil)
	jane := f.seed(t, "jane")
	bob := f.seed(t, "bob")
	require.NoError(t, f.store.Subscribe(bob, jane))

	p, err := f.client.GetChannelProfile(context.Background(), &transport.GetChannelProfileRequest{Username: "Jane", ViewerID: bob.String()})
	require.NoError(t, err)
	require.Equal(t, jane.String(), p.ID)
	require.EqualValues(t, 1, p.SubscribersCount)
	require.True(t, p.IsSubscribed)

	p, err = f.client.GetChannelProfile(context.Background(), &transport.GetChannelProfileRequest{Username: "jane"})
	require.NoError(t, err)
	require.False(t, p.IsSubscribed)

	_, err = f.client.GetChannelProfile(context.Background(), &transport.GetChannelProfileRequest{Username: "ghost"})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = f.client.GetChannelProfile(context.Background(), &transport.GetChannelProfileRequest{Username: " "})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = f.client.GetChannelProfile(context.Background(), &transport.GetChannelProfileRequest{Username: "jane", ViewerID: "x"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

type brokenChannels struct{}

func (brokenChannels) GetChannelProfile(context.Context, uuid.UUID, string) (model.ChannelProfile, error) {
	return model.ChannelProfile{}, customErrors.WrapPersistence(errors.New("dial tcp: refused"), "GetChannelProfile")
}

func TestPersistenceFailureHidesDetail(t *testing.T) {
	f := newFixture(t, brokenChannels{})

	_, err := f.client.GetChannelProfile(context.Background(), &transport.GetChannelProfileRequest{Username: "jane"})
	st, _ := status.FromError(err)
	require.Equal(t, codes.Unavailable, st.Code())
	require.NotContains(t, st.Message(), "refused")
}

func TestHealthService(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: transport.SessionServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
