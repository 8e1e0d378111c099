package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/memory"
	redisadapter "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/db/redis"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/handler"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/password"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/auth/token"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/channel"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/alexedwards/argon2id"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

/* ──────────────────────────────── stubs ──────────────────────────────── */

type blobStub struct {
	mu      sync.Mutex
	deleted []string
}

func (b *blobStub) Upload(_ context.Context, src model.ImageSource) (model.Asset, bool) {
	rc, err := src.Open()
	if err != nil {
		return model.Asset{}, false
	}
	rc.Close()
	return model.Asset{URL: "https://cdn.test/" + uuid.NewString() + "/" + src.Name()}, true
}

func (b *blobStub) Delete(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, url)
	return nil
}

/* ───────────────────────────── fixture ───────────────────────────── */

var signingKey = func() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}()

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type env struct {
	router    *gin.Engine
	store     *memory.Store
	blobs     *blobStub
	uploadDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.New()
	util := jwt.NewJWTUtilFromKeys(signingKey, &signingKey.PublicKey, jwt.Settings{
		AccessTTL: time.Minute, RefreshTTL: time.Hour, Issuer: "test", Audience: "test",
	})
	tokens := token.New(store, util, redisadapter.NewAccessDenylist(rdb), zap.NewNop())
	blobs := &blobStub{}
	hasher := password.NewArgon2Hasher("pepper", &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	svc := account.New(store, blobs, tokens, hasher, dto.NewValidator(), zap.NewNop(), account.Options{RevokeSessionsOnPasswordChange: true})
	agg := channel.New(store, store, store, store)

	uploadDir := t.TempDir()
	h := handler.New(svc, agg, handler.CookieSettings{Domain: "", Secure: false}, uploadDir, zap.NewNop())
	reg := prometheus.NewRegistry()
	router := handler.NewRouter(h, svc, handler.RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		Registerer:     reg,
		Gatherer:       reg,
	}, zap.NewNop())

	return &env{router: router, store: store, blobs: blobs, uploadDir: uploadDir}
}

func (e *env) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, method, url string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, url string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Kind       string          `json:"kind"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var janeFields = map[string]string{
	"fullName": "Jane Doe", "email": "jane@x.com", "username": "JaneD", "password": "pw123",
}

func (e *env) registerJane(t *testing.T) {
	t.Helper()
	w := e.do(multipartRequest(t, http.MethodPost, "/api/v1/users/register", janeFields, map[string][]byte{"avatar": pngBytes}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (e *env) login(t *testing.T) (access, refresh *http.Cookie) {
	t.Helper()
	w := e.do(jsonRequest(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "janed", "password": "pw123"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return cookieByName(w, "accessToken"), cookieByName(w, "refreshToken")
}

func (e *env) requireUploadsReleased(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.uploadDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

/* ───────────────────────────── tests ───────────────────────────── */

func TestRegister(t *testing.T) {
	e := newEnv(t)

	w := e.do(multipartRequest(t, http.MethodPost, "/api/v1/users/register", janeFields, map[string][]byte{"avatar": pngBytes}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	require.True(t, body.Success)

	var acct map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &acct))
	require.Equal(t, "janed", acct["username"])
	require.NotContains(t, acct, "password")
	require.NotContains(t, acct, "passwordHash")
	require.NotContains(t, acct, "refreshToken")
	e.requireUploadsReleased(t)

	fields := map[string]string{"fullName": "J", "email": "other@x.com", "username": "janed", "password": "x"}
	w = e.do(multipartRequest(t, http.MethodPost, "/api/v1/users/register", fields, map[string][]byte{"avatar": pngBytes}))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "DuplicateUsername", decode(t, w).Kind)
	e.requireUploadsReleased(t)
}

func TestRegister_RejectsBadUploads(t *testing.T) {
	e := newEnv(t)

	w := e.do(multipartRequest(t, http.MethodPost, "/api/v1/users/register", janeFields, nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "ValidationError", decode(t, w).Kind)

	w = e.do(multipartRequest(t, http.MethodPost, "/api/v1/users/register", janeFields, map[string][]byte{"avatar": []byte("plain text")}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	bad := map[string]string{"fullName": "Jane", "email": "no-at-sign", "username": "j", "password": "p"}
	w = e.do(multipartRequest(t, http.MethodPost, "/api/v1/users/register", bad, map[string][]byte{"avatar": pngBytes}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	e.requireUploadsReleased(t)
}

func TestLogin_SetsSessionCookies(t *testing.T) {
	e := newEnv(t)
	e.registerJane(t)

	w := e.do(jsonRequest(http.MethodPost, "/api/v1/users/login", map[string]string{"email": "jane@x.com", "password": "pw123"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieByName(w, name)
		require.NotNil(t, c, name)
		require.True(t, c.HttpOnly)
		require.False(t, c.Secure)
		require.Equal(t, http.SameSiteLaxMode, c.SameSite)
		require.Positive(t, c.MaxAge)
	}

	var data struct {
		User         map[string]any `json:"user"`
		AccessToken  string         `json:"accessToken"`
		RefreshToken string         `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	require.Equal(t, "janed", data.User["username"])
	require.NotEmpty(t, data.AccessToken)
	require.NotEmpty(t, data.RefreshToken)

	w = e.do(jsonRequest(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "janed", "password": "nope"}))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "InvalidCredentials", decode(t, w).Kind)

	w = e.do(jsonRequest(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "ghost", "password": "pw123"}))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshToken_RotatesAndDetectsReuse(t *testing.T) {
	e := newEnv(t)
	e.registerJane(t)
	_, refresh := e.login(t)

	w := e.do(httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil), refresh)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := cookieByName(w, "refreshToken")
	require.NotEqual(t, refresh.Value, rotated.Value)

	w = e.do(jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", map[string]string{"refreshToken": refresh.Value}))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "TokenReused", decode(t, w).Kind)
	require.Equal(t, -1, cookieByName(w, "refreshToken").MaxAge)

	w = e.do(httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_RevokesBothTokens(t *testing.T) {
	e := newEnv(t)
	e.registerJane(t)
	access, refresh := e.login(t)

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil), access)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil), access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, -1, cookieByName(w, "accessToken").MaxAge)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil), access)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil), refresh)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSecuredRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/users/logout"},
		{http.MethodPost, "/api/v1/users/change-password"},
		{http.MethodGet, "/api/v1/users/current-user"},
		{http.MethodPatch, "/api/v1/users/update-account"},
		{http.MethodPatch, "/api/v1/users/avatar"},
		{http.MethodPatch, "/api/v1/users/cover-image"},
		{http.MethodGet, "/api/v1/users/history"},
	} {
		w := e.do(httptest.NewRequest(r.method, r.path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, r.path)
	}
}

func TestProfileUpdates(t *testing.T) {
	e := newEnv(t)
	e.registerJane(t)
	access, _ := e.login(t)

	w := e.do(jsonRequest(http.MethodPatch, "/api/v1/users/update-account", map[string]string{"fullName": "Jane D.", "email": "jd@x.com"}), access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(jsonRequest(http.MethodPatch, "/api/v1/users/update-account", map[string]string{"fullName": "Jane"}), access)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar", nil, map[string][]byte{"avatar": pngBytes}), access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, e.blobs.deleted, 1)

	w = e.do(multipartRequest(t, http.MethodPatch, "/api/v1/users/cover-image", nil, map[string][]byte{"coverImage": pngBytes}), access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar", nil, nil), access)
	require.Equal(t, http.StatusBadRequest, w.Code)
	e.requireUploadsReleased(t)
}

func TestChangePassword_RevokesSessions(t *testing.T) {
	e := newEnv(t)
	e.registerJane(t)
	access, refresh := e.login(t)

	w := e.do(jsonRequest(http.MethodPost, "/api/v1/users/change-password", map[string]string{"oldPassword": "bad", "newPassword": "pw456"}), access)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(jsonRequest(http.MethodPost, "/api/v1/users/change-password", map[string]string{"oldPassword": "pw123", "newPassword": "pw456"}), access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil), refresh)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChannelProfileAndHistory(t *testing.T) {
	e := newEnv(t)
	e.registerJane(t)
	access, _ := e.login(t)

	jane, err := e.store.GetByUsername(context.Background(), "janed", repo.Public)
	require.NoError(t, err)
	v := model.Video{ID: uuid.New(), OwnerID: jane.ID, Title: "hello"}
	e.store.PutVideo(v)
	e.store.RecordView(jane.ID, v.ID)

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/c/JaneD", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var profile map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &profile))
	require.Equal(t, float64(0), profile["subscribersCount"])
	require.Equal(t, false, profile["isSubscribed"])

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/c/nobody", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "ChannelNotFound", decode(t, w).Kind)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/history", nil), access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var history []map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &history))
	require.Len(t, history, 1)
	require.Equal(t, "hello", history[0]["title"])
	require.Equal(t, "janed", history[0]["owner"].(map[string]any)["username"])
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	w := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	require.Contains(t, string(body), "account_http_requests_total")
}
