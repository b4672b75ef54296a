package device

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfdgateway/pkg/apis"
	"vfdgateway/pkg/runtime"
)

func newRouter(h *harness) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	InstallHandler(router.Group("/api/v1"), h.mgr)
	return router
}

func do(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const abbBody = `{"name":"conveyor","brand":"abb","protocol":"modbus_tcp","configuration":{"host":"10.0.0.1","responseTimeout":50,"retries":0}}`

func TestDeviceHandlers(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()
	router := newRouter(h)

	w := do(router, http.MethodPost, "/api/v1/devices", abbBody, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := &runtime.Device{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), created))
	assert.Equal(t, created.Version, w.Header().Get(apis.ETag))
	assert.Equal(t, "/api/v1/devices/"+created.ID, w.Header().Get(apis.Location))

	w = do(router, http.MethodPost, "/api/v1/devices", `{"name":"x","brand":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/devices", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "configuration")

	w = do(router, http.MethodGet, "/api/v1/devices/"+created.ID+"?exploded=true", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "10.0.0.1")

	w = do(router, http.MethodGet, "/api/v1/devices/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPatch, "/api/v1/devices/"+created.ID, `{"name":"renamed"}`, map[string]string{"Content-Type": "application/merge-patch+json"})
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	w = do(router, http.MethodPatch, "/api/v1/devices/"+created.ID, `{"name":"renamed"}`, map[string]string{
		"Content-Type": "application/merge-patch+json",
		apis.IfMatch:   "stale",
	})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = do(router, http.MethodPatch, "/api/v1/devices/"+created.ID, `{"name":"renamed"}`, map[string]string{
		"Content-Type": "text/plain",
		apis.IfMatch:   created.Version,
	})
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = do(router, http.MethodPatch, "/api/v1/devices/"+created.ID, `[{"op":"replace","path":"/name","value":"renamed"}]`, map[string]string{
		"Content-Type": "application/json-patch+json",
		apis.IfMatch:   created.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	patched := &runtime.Device{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), patched))
	assert.Equal(t, "renamed", patched.Name)
	assert.Equal(t, "10.0.0.1", patched.Configuration["host"])

	w = do(router, http.MethodPut, "/api/v1/devices/"+created.ID+"/status/pause", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(router, http.MethodPut, "/api/v1/devices/"+created.ID+"/status/restart", nil, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(router, http.MethodDelete, "/api/v1/devices/"+created.ID, nil, map[string]string{apis.IfMatch: patched.Version})
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(router, http.MethodDelete, "/api/v1/devices/"+created.ID, nil, map[string]string{apis.IfMatch: patched.Version})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommandAndReadHandlers(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()
	router := newRouter(h)

	w := do(router, http.MethodPost, "/api/v1/devices", abbBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	created := &runtime.Device{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), created))
	base := "/api/v1/devices/" + created.ID

	w = do(router, http.MethodPost, base+"/commands", `{"command":"set_frequency","value":42.5}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"success":true`)
	got, _ := h.drive.Get(1)
	assert.Equal(t, uint16(4250), got)

	w = do(router, http.MethodPost, base+"/commands", `{"command":"set_frequency","value":900}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "10013")

	w = do(router, http.MethodPost, base+"/commands", `{"command":"jump"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "10005")

	w = do(router, http.MethodPost, "/api/v1/devices/missing/commands", `{"command":"start"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, base+"/read?category=motor", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "outputFrequency")

	w = do(router, http.MethodPost, base+"/read?category=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, base+"/test", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	w = do(router, http.MethodGet, base+"/readings?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	model := struct {
		Readings []*runtime.Reading `json:"readings"`
	}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &model))
	assert.Len(t, model.Readings, 1)

	start := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	w = do(router, http.MethodGet, base+"/readings/statistics?start="+start, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := &runtime.ReadingStatistics{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), stats))
	assert.Positive(t, stats.Count)

	w = do(router, http.MethodGet, base+"/readings?start=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "10014")
}

func TestCatalogHandlers(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()
	router := newRouter(h)

	w := do(router, http.MethodGet, "/api/v1/protocols", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bacnet_mstp")

	w = do(router, http.MethodGet, "/api/v1/protocols/modbus_tcp/schema", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "host")

	w = do(router, http.MethodGet, "/api/v1/protocols/x25/schema", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, "/api/v1/protocols/modbus_tcp/test", `{"host":"10.0.0.1","responseTimeout":50}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	w = do(router, http.MethodGet, "/api/v1/brands", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "siemens")

	w = do(router, http.MethodGet, "/api/v1/brands/abb/mappings?critical=true", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fault_code")
	assert.NotContains(t, w.Body.String(), "acceleration_time")

	w = do(router, http.MethodGet, "/api/v1/brands/acme/mappings", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
