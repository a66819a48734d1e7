package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/notchkit/internal/infrastructure/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	r := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
		last = w
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "rate limit exceeded")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	cfg := config.Default().Control
	r := newRouter(CORS(CORSConfigFrom(cfg)))

	tests := []struct {
		name   string
		origin string
		want   string
		code   int
	}{
		{name: "local renderer", origin: "http://localhost", want: "http://localhost", code: http.StatusOK},
		{name: "foreign origin", origin: "http://evil.example", want: "", code: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestBearerAuth(t *testing.T) {
	r := newRouter(BearerAuth("s3cret"))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "no credential", header: "", code: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic czNjcmV0", code: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer guess", code: http.StatusForbidden},
		{name: "empty token", header: "Bearer ", code: http.StatusForbidden},
		{name: "valid token", header: "Bearer s3cret", code: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestBearerAuthRejectsEverythingWithoutToken(t *testing.T) {
	r := newRouter(BearerAuth(""))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWriteTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "control.token")
	token, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)

	require.NoError(t, WriteTokenFile(path, token))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, token, string(data))

	other, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
	require.NoError(t, WriteTokenFile(path, other))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, other, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
