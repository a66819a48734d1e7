package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/notchkit/internal/domain/host"
	"github.com/GriffinCanCode/notchkit/internal/domain/identity"
	"github.com/GriffinCanCode/notchkit/internal/domain/ledger"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/config"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/notchkit/internal/shared/id"
	"github.com/GriffinCanCode/notchkit/pkg/protocol"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeHandle struct {
	id    id.ConnectionID
	mu    sync.Mutex
	notes []protocol.Notification
}

func (f *fakeHandle) ID() id.ConnectionID { return f.id }
func (f *fakeHandle) Alive() bool         { return true }

func (f *fakeHandle) Notify(n protocol.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeHandle) events() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Event, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n.Event)
	}
	return out
}

type fakeListener struct{}

func (fakeListener) Running() bool    { return true }
func (fakeListener) Connections() int { return 2 }

const testToken = "control-test-token"

type fixture struct {
	t      *testing.T
	core   *host.Core
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core := host.New(host.Options{
		Version:  "2.0.0",
		Settings: host.Settings{ExtensionsEnabled: true},
	})
	t.Cleanup(core.Close)

	control := config.Default().Control
	control.RequestsPerSecond = 0
	router := NewRouter(NewHandlers(core, fakeListener{}, nil), RouterOptions{
		Control: control,
		Token:   testToken,
		Metrics: monitoring.NewMetrics(),
	})
	return &fixture{t: t, core: core, router: router}
}

func (f *fixture) do(method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	f.t.Helper()
	return f.doAs("Bearer "+testToken, method, path, body)
}

// doAs sends the request with the given Authorization header, or none when
// auth is empty.
func (f *fixture) doAs(auth, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	f.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// connect attaches an extension, grants it and presents one notch experience.
func (f *fixture) connect(bundle string) (*host.Instance, *fakeHandle) {
	f.t.Helper()
	h := &fakeHandle{id: id.NewConnectionID()}
	inst, err := f.core.Attach(context.Background(), identity.Identity{BundleID: bundle, DisplayName: bundle}, h)
	require.NoError(f.t, err)
	return inst, h
}

func (f *fixture) call(inst *host.Instance, method protocol.Method, p protocol.Params) protocol.Reply {
	f.t.Helper()
	replies := make(chan protocol.Reply, 1)
	require.NoError(f.t, inst.Serve(protocol.NewRequest(1, method, p), func(r protocol.Reply) { replies <- r }))
	select {
	case r := <-replies:
		_, err := f.core.Settings(context.Background())
		require.NoError(f.t, err)
		return r
	case <-time.After(2 * time.Second):
		f.t.Fatal("no reply")
	}
	return protocol.Reply{}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2.0.0", body["version"])
	assert.Equal(t, true, body["extensionsEnabled"])
	assert.Equal(t, map[string]any{"running": true, "connections": float64(2)}, body["listener"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/health", "")

	w, _ := f.do(http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notchkit_control_requests_total")
}

func TestExtensionLifecycle(t *testing.T) {
	f := newFixture(t)
	_, conn := f.connect("com.example.weather")

	w, body := f.do(http.MethodGet, "/extensions", "")
	require.Equal(t, http.StatusOK, w.Code)
	exts := body["extensions"].([]any)
	require.Len(t, exts, 1)
	ext := exts[0].(map[string]any)
	assert.Equal(t, "com.example.weather", ext["identity"])
	assert.Equal(t, "pending", ext["status"])
	assert.Equal(t, float64(1), ext["connections"])

	w, body = f.do(http.MethodPost, "/extensions/com.example.weather/authorize", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "authorized", body["extension"].(map[string]any)["status"])

	w, body = f.do(http.MethodPost, "/extensions/com.example.weather/revoke", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unauthorized", body["extension"].(map[string]any)["status"])

	assert.Equal(t, []protocol.Event{
		protocol.EventAuthorizationChanged,
		protocol.EventAuthorizationChanged,
	}, conn.events())

	w, _ = f.do(http.MethodDelete, "/extensions/com.example.weather", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(http.MethodDelete, "/extensions/com.example.unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestControlRequiresCredential(t *testing.T) {
	f := newFixture(t)
	f.connect("com.victim")
	ctx := context.Background()
	_, err := f.core.Authorize(ctx, "com.victim")
	require.NoError(t, err)

	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/extensions", ""},
		{http.MethodPost, "/extensions/com.victim/revoke", ""},
		{http.MethodPost, "/extensions/com.victim/authorize", ""},
		{http.MethodDelete, "/extensions/com.victim", ""},
		{http.MethodGet, "/settings", ""},
		{http.MethodPut, "/settings", `{"extensionsEnabled":false}`},
		{http.MethodGet, "/presentations/notchExperience", ""},
		{http.MethodPut, "/presentations/notchExperience/native", `{"active":true}`},
		{http.MethodDelete, "/presentations/notchExperience/com.victim/x", ""},
	}
	creds := []struct {
		name string
		auth string
		code int
	}{
		{name: "no credential", auth: "", code: http.StatusUnauthorized},
		{name: "wrong token", auth: "Bearer not-the-token", code: http.StatusForbidden},
	}

	for _, cred := range creds {
		for _, rt := range routes {
			t.Run(cred.name+" "+rt.method+" "+rt.path, func(t *testing.T) {
				w, body := f.doAs(cred.auth, rt.method, rt.path, rt.body)
				assert.Equal(t, cred.code, w.Code)
				assert.Equal(t, false, body["success"])
			})
		}
	}

	exts, err := f.core.Extensions(ctx)
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.Equal(t, ledger.StatusAuthorized, exts[0].Status)
	settings, err := f.core.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.ExtensionsEnabled)

	w, _ := f.doAs("", http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		body    string
		code    int
		enabled bool
		diag    bool
	}{
		{name: "diagnostics only", body: `{"diagnostics":true}`, code: http.StatusOK, enabled: true, diag: true},
		{name: "disable feature", body: `{"extensionsEnabled":false}`, code: http.StatusOK, enabled: false, diag: true},
		{name: "empty update", body: `{}`, code: http.StatusBadRequest, enabled: false, diag: true},
		{name: "malformed", body: `{"diagnostics":`, code: http.StatusBadRequest, enabled: false, diag: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := f.do(http.MethodPut, "/settings", tt.body)
			assert.Equal(t, tt.code, w.Code)

			s, err := f.core.Settings(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, s.ExtensionsEnabled)
			assert.Equal(t, tt.diag, s.Diagnostics)
		})
	}

	w, body := f.do(http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["extensionsEnabled"])
}

func TestConcurrentSettingsUpdatesKeepBothFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, f.core.SetSettings(ctx, host.Settings{}))

		var wg sync.WaitGroup
		for _, body := range []string{`{"extensionsEnabled":true}`, `{"diagnostics":true}`} {
			wg.Add(1)
			go func(body string) {
				defer wg.Done()
				w, _ := f.do(http.MethodPut, "/settings", body)
				assert.Equal(t, http.StatusOK, w.Code)
			}(body)
		}
		wg.Wait()

		s, err := f.core.Settings(ctx)
		require.NoError(t, err)
		require.Equal(t, host.Settings{ExtensionsEnabled: true, Diagnostics: true}, s, "iteration %d", i)
	}
}

func TestPresentationView(t *testing.T) {
	f := newFixture(t)
	inst, conn := f.connect("com.example.timer")
	r := f.call(inst, protocol.MethodRequestAuthorization, protocol.Params{Identity: "com.example.timer"})
	require.True(t, r.OK)
	r = f.call(inst, protocol.MethodPresentNotchExperience, protocol.Params{
		Descriptor: json.RawMessage(`{"id":"tea","headline":"Tea is ready"}`),
	})
	require.True(t, r.OK, "%+v", r.Error)

	w, body := f.do(http.MethodGet, "/presentations/notchExperience", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["enabled"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "tea", items[0].(map[string]any)["id"])

	w, body = f.do(http.MethodPut, "/presentations/notchExperience/native", `{"active":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["nativeActive"])

	w, _ = f.do(http.MethodPut, "/presentations/notchExperience/native", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(http.MethodDelete, "/presentations/notchExperience/com.example.timer/tea", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, conn.events(), protocol.EventNotchExperienceDismissed)

	w, _ = f.do(http.MethodDelete, "/presentations/notchExperience/com.example.timer/tea", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownKind(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/presentations/banner"} {
		w, body := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, body["error"], "unknown presentation kind")
	}

	w, _ := f.do(http.MethodPut, "/presentations/banner/native", `{"active":false}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoppedCore(t *testing.T) {
	f := newFixture(t)
	f.core.Close()

	w, _ := f.do(http.MethodGet, "/extensions", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServerLifecycle(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.router, 4, nil)
	require.NoError(t, srv.Start("127.0.0.1:0"))

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Error(t, srv.Start("127.0.0.1:0"), "second start")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, srv.Shutdown(ctx))
}
