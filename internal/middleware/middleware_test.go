package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/logger"
	"storefront/internal/repository"
)

const testSecret = "test-secret"

type userRepoMock struct{ mock.Mock }

func (m *userRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *userRepoMock) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

var _ repository.UserRepository = (*userRepoMock)(nil)

func makeJWT(t *testing.T, secret string, sub int64, role string, tv int, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"tv":   tv,
		"iat":  1,
		"exp":  9999999999,
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func testConfig() config.Config {
	return config.Config{JWT: config.JWTConfig{Secret: testSecret}}
}

// user_id / role / tv をそのまま返す保護ルート
func protectedEcho(mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"user_id":       c.Get(CtxUserIDKey),
			"role":          c.Get(CtxUserRoleKey),
			"token_version": c.Get(CtxTokenVersionKey),
		})
	}, mws...)
	return e
}

func do(e *echo.Echo, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthJWT_Rejects(t *testing.T) {
	e := protectedEcho(AuthJWT(testConfig()))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer   "},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + makeJWT(t, "other", 1, "USER", 0, jwt.SigningMethodHS256)},
		{"wrong algorithm", "Bearer " + makeJWT(t, testSecret, 1, "USER", 0, jwt.SigningMethodHS512)},
		{"no role", "Bearer " + makeJWT(t, testSecret, 1, "", 0, jwt.SigningMethodHS256)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "unauthorized", body.Error)
			assert.Equal(t, "UNAUTHORIZED", body.Code)
		})
	}
}

func TestAuthJWT_SetsContext(t *testing.T) {
	e := protectedEcho(AuthJWT(testConfig()))

	rec := do(e, "Bearer "+makeJWT(t, testSecret, 42, "ADMIN", 3, jwt.SigningMethodHS256))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		UserID       int64  `json:"user_id"`
		Role         string `json:"role"`
		TokenVersion int    `json:"token_version"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(42), body.UserID)
	assert.Equal(t, "ADMIN", body.Role)
	assert.Equal(t, 3, body.TokenVersion)
}

func TestTokenVersionGuard(t *testing.T) {
	repo := new(userRepoMock)
	repo.On("FindByID", mock.Anything, int64(1)).Return(&model.User{ID: 1, TokenVersion: 2, IsActive: true}, nil)
	repo.On("FindByID", mock.Anything, int64(2)).Return(&model.User{ID: 2, TokenVersion: 0, IsActive: false}, nil)
	repo.On("FindByID", mock.Anything, int64(3)).Return(nil, repository.ErrUserNotFound)

	e := protectedEcho(AuthJWT(testConfig()), TokenVersionGuard(repo))

	rec := do(e, "Bearer "+makeJWT(t, testSecret, 1, "USER", 2, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusOK, rec.Code)

	// 古いトークン
	rec = do(e, "Bearer "+makeJWT(t, testSecret, 1, "USER", 1, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 無効化されたユーザー
	rec = do(e, "Bearer "+makeJWT(t, testSecret, 2, "USER", 0, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, "Bearer "+makeJWT(t, testSecret, 3, "USER", 0, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoleGuard(t *testing.T) {
	e := protectedEcho(AuthJWT(testConfig()), AdminRoleGuard())

	rec := do(e, "Bearer "+makeJWT(t, testSecret, 1, "USER", 0, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "FORBIDDEN", body.Code)

	rec = do(e, "Bearer "+makeJWT(t, testSecret, 1, "ADMIN", 0, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogger_WritesRequestIDAndHandlerError(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{ServiceName: "storefront", Level: "info", Output: &buf})

	e := echo.New()
	e.Use(echomw.RequestID())
	e.Use(RequestLogger(log))
	e.Use(RequestContext(log))
	e.GET("/boom", func(c echo.Context) error {
		c.Set(CtxErrorKey, errors.New("db down"))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"})
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "req-abc", entry["request_id"])
	assert.Equal(t, "db down", entry["error"])
	assert.Equal(t, float64(500), entry["status"])
	assert.Equal(t, "/boom", entry["uri"])
}
