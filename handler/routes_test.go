package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoduykhanh/wgserver/driver"
	"github.com/ngoduykhanh/wgserver/driver/drivertest"
	"github.com/ngoduykhanh/wgserver/manager"
	"github.com/ngoduykhanh/wgserver/reconciler"
	"github.com/ngoduykhanh/wgserver/router"
	"github.com/ngoduykhanh/wgserver/store/jsondb"
)

func newTestApp(t *testing.T, cidr string, apiKey string) (*echo.Echo, *drivertest.Fake) {
	t.Helper()
	dir := t.TempDir()
	fake := drivertest.New()
	m := manager.New(jsondb.New(), reconciler.New(fake, dir), fake)
	target := Target{Device: "wg0", ConfigPath: filepath.Join(dir, "server.json"), Timeout: time.Second}
	require.NoError(t, m.Init(target.ConfigPath, m.CreateServer(netip.MustParsePrefix(cidr), "vpn.example.com", 51820, "eth0")))

	e := router.New(log.OFF, apiKey)
	Register(e, m, target)
	return e, fake
}

func do(e *echo.Echo, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

var jsonHeader = map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON}

func TestNewClientAndConfig(t *testing.T) {
	e, _ := newTestApp(t, "10.0.0.0/24", "")

	rec := do(e, http.MethodPost, "/clients", `{"name":"alice"}`, jsonHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", strings.TrimSpace(rec.Body.String()))

	rec = do(e, http.MethodGet, "/config/0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Address = 10.0.0.2\n")

	rec = do(e, http.MethodGet, "/clients", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var clients []manager.ClientSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clients))
	require.Len(t, clients, 1)
	assert.Equal(t, "alice", clients[0].Name)
	assert.NotContains(t, rec.Body.String(), "private")

	rec = do(e, http.MethodGet, "/config/0/qrcode", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
}

func TestNewClientValidation(t *testing.T) {
	e, _ := newTestApp(t, "10.0.0.0/24", "")

	rec := do(e, http.MethodPost, "/clients", `{"name":""}`, jsonHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/clients", `name=alice`, map[string]string{echo.HeaderContentType: echo.MIMEApplicationForm})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatuses(t *testing.T) {
	e, fake := newTestApp(t, "10.0.0.0/30", "")

	rec := do(e, http.MethodDelete, "/clients/5", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodDelete, "/clients/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/clients", `{"name":"a"}`, jsonHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(e, http.MethodPost, "/clients", `{"name":"b"}`, jsonHeader)
	assert.Equal(t, http.StatusConflict, rec.Code)

	fake.Fail["up"] = &driver.CommandError{Command: "wg-quick", Args: []string{"up", "wg0"}, ExitCode: 1}
	rec = do(e, http.MethodPost, "/up", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp jsonHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "exited with status 1")
}

func TestLifecycleRoutes(t *testing.T) {
	e, fake := newTestApp(t, "10.0.0.0/24", "")

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/up", "", nil).Code)
	assert.True(t, fake.Running["wg0"])
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/reboot", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/down", "", nil).Code)
	assert.False(t, fake.Running["wg0"])

	rec := do(e, http.MethodGet, "/server/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "[Interface]\n"))
}

func TestAPIKey(t *testing.T) {
	e, _ := newTestApp(t, "10.0.0.0/24", "s3cret")

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/clients", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/clients", "", map[string]string{
		echo.HeaderAuthorization: "Bearer wrong",
	}).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/clients", "", map[string]string{
		echo.HeaderAuthorization: "Bearer s3cret",
	}).Code)
}
