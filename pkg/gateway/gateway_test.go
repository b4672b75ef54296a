package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitKeepsIdentity(t *testing.T) {
	root := t.TempDir()
	m := NewGatewayManager(nil)
	require.NoError(t, m.Init(root))
	first, _ := m.GetGatewayMeta()
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, gatewayName, first.Name)

	again := NewGatewayManager(nil)
	require.NoError(t, again.Init(root))
	second, _ := again.GetGatewayMeta()
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Version, second.Version)
}

func TestBytesString(t *testing.T) {
	assert.Equal(t, "512B", bytesString(512))
	assert.Equal(t, "1.50KB", bytesString(1536))
	assert.Equal(t, "2.00GB", bytesString(2<<30))
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewGatewayManager(nil)
	require.NoError(t, m.Init(t.TempDir()))
	router := gin.New()
	InstallHandler(router.Group("/api/v1"), m)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/gatewayMeta", nil))
	require.Equal(t, http.StatusOK, w.Code)
	meta, _ := m.GetGatewayMeta()
	assert.Equal(t, meta.Version, w.Header().Get("ETag"))
	got := &GatewayMeta{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), got))
	assert.Equal(t, meta.ID, got.ID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/gatewayMem", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UsedPercent")
}
