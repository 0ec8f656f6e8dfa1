package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/user-service/internal/proxy"
	"github.com/anonto42/nano-midea/user-service/internal/storage"
	"github.com/anonto42/nano-midea/user-service/internal/testutils"
	"github.com/anonto42/nano-midea/user-service/internal/validators"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopAssets struct{}

func (nopAssets) Upload(context.Context, storage.Asset, string) (string, error) { return "", nil }
func (nopAssets) Delete(context.Context, string) error                        { return nil }
func (nopAssets) Owns(string) bool                                            { return false }

type rejectAll struct{}

func (rejectAll) VerifyIDToken(context.Context, string) (*auth.Token, error) {
	return nil, assert.AnError
}

func newEcho(t *testing.T, deps Dependencies) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Validator = validators.NewValidator()
	svc, err := SetupRoutes(e, deps)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)
	return e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSetupRoutes(t *testing.T) {
	e := newEcho(t, Dependencies{
		Postgres: testutils.NewTestDB(t),
		Assets:   nopAssets{},
		Proxy:    proxy.NewGate("http://storage.local/bucket/", time.Second, zap.NewNop()),
		Logger:   zap.NewNop(),
	})

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health", "").Code)

	rec := serve(e, http.MethodPost, "/api/users", `{"id":"9b2f6f4e-8f0a-4a57-9c43-5b7f1c2d3e4f","username":"alice"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(e, http.MethodGet, "/api/users/search?query=ali", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	assert.Equal(t, http.StatusBadRequest, serve(e, http.MethodGet, "/api/images/proxy?url=https://evil.example/x", "").Code)
}

func TestSetupRoutes_AuthGuardsMutations(t *testing.T) {
	e := newEcho(t, Dependencies{
		Postgres: testutils.NewTestDB(t),
		Assets:   nopAssets{},
		Proxy:    proxy.NewGate("http://storage.local/bucket/", time.Second, zap.NewNop()),
		Auth:     rejectAll{},
		Logger:   zap.NewNop(),
	})

	rec := serve(e, http.MethodPost, "/api/users", `{"id":"9b2f6f4e-8f0a-4a57-9c43-5b7f1c2d3e4f","username":"alice"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/api/users/search?query=ali", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay public")
}
