package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/apis"
	"vfdgateway/pkg/apis/response"
	"vfdgateway/pkg/connection"
	"vfdgateway/pkg/registry"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/service"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.POST("/devices", createDevice(mgr))
	group.DELETE("/devices/:id", deleteDevice(mgr))
	group.PATCH("/devices/:id", patchDeviceById(mgr))
	group.PUT("/devices/:id", updateDeviceById(mgr))
	group.GET("/devices", listDevices(mgr))
	group.GET("/devices/:id", getDeviceById(mgr))
	group.PUT("/devices/:id/status/:status", switchDeviceStatusById(mgr))
	group.POST("/devices/:id/commands", executeCommand(mgr))
	group.POST("/devices/:id/test", testDevice(mgr))
	group.POST("/devices/:id/read", readDevice(mgr))
	group.GET("/devices/:id/readings", listReadings(mgr))
	group.GET("/devices/:id/readings/statistics", readingStatistics(mgr))

	group.GET("/protocols", listProtocols(mgr))
	group.GET("/protocols/:protocol/schema", protocolSchema(mgr))
	group.POST("/protocols/:protocol/test", testConfiguration(mgr))
	group.GET("/brands", listBrands(mgr))
	group.GET("/brands/:brand/mappings", brandMappings(mgr))
}

// writeError maps service and adapter errors onto status codes and coded bodies.
func writeError(c *gin.Context, err error) {
	var (
		verr *adapter.ValidationError
		cerr *adapter.ConfigurationError
		nerr *adapter.ConnectionError
	)
	id := c.Param("id")
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrDeviceNotFound(id)))
	case errors.Is(err, apis.ErrMismatch):
		c.Status(http.StatusPreconditionFailed)
	case response.IsResponseError(err):
		c.JSON(http.StatusBadRequest, response.NewMultiError(err))
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrValueRejected(err)))
	case errors.Is(err, service.ErrMissingValue):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrValueRejected(err)))
	case errors.As(err, &cerr):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidConfiguration(err, cerr.Messages()...)))
	case errors.Is(err, service.ErrUnknownCommand), errors.Is(err, service.ErrUnsupportedCommand):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrCommandNotFound(err.Error())))
	case errors.Is(err, registry.ErrMappingNotFound):
		c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrResourceNotFound(err.Error())))
	case errors.Is(err, registry.ErrUnknownBrand):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrBrandUnSupported(err.Error())))
	case errors.Is(err, constant.ErrProtocol):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrProtocolUnSupported(err.Error())))
	case errors.As(err, &nerr), errors.Is(err, adapter.ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, response.NewMultiError(response.ErrDeviceNotConnect(id), err))
	case errors.Is(err, connection.ErrPoolClosed), errors.Is(err, constant.ErrDeviceServerClosed):
		c.Status(http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		c.Status(http.StatusGatewayTimeout)
	default:
		klog.V(2).InfoS("Request failed", "path", c.FullPath(), "err", err)
		c.Status(http.StatusInternalServerError)
	}
}

func createDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		object := &runtime.Device{}
		if err := json.NewDecoder(c.Request.Body).Decode(object); err != nil {
			klog.V(2).InfoS("Failed to parse Device", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		d, err := mgr.CreateDevice(object)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Header(apis.ETag, d.GetVersion())
		c.Header(apis.Location, fmt.Sprintf("%s/%s", c.Request.URL.Path, d.GetID()))
		c.JSON(http.StatusCreated, d)
	}
}

func deleteDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}
		device, err := mgr.DeleteDevice(id, eTag)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, device)
	}
}

func patchDeviceById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		contentType := c.GetHeader("Content-Type")
		// Remove "; charset=" if included in header.
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}

		if !patchTypes.Has(contentType) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}

		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}

		patchBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(3).InfoS("Failed to read", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		id := c.Param("id")
		old, err := mgr.GetDeviceById(id)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}

		versionedJS, err := json.Marshal(old)
		if err != nil {
			klog.V(3).InfoS("Failed to marshal", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		patchedJS, err := applyJSPatch(types.PatchType(contentType), patchBytes, versionedJS)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}

		newObj := &runtime.Device{}
		if err := json.NewDecoder(bytes.NewBuffer(patchedJS)).Decode(newObj); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		updated, err := mgr.UpdateDeviceById(id, eTag, newObj)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Header(apis.ETag, updated.GetVersion())
		c.JSON(http.StatusOK, updated)
	}
}

func updateDeviceById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}

		id := c.Param("id")
		newObj := &runtime.Device{}
		if err := json.NewDecoder(c.Request.Body).Decode(newObj); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		updated, err := mgr.UpdateDeviceById(id, eTag, newObj)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Header(apis.ETag, updated.GetVersion())
		c.JSON(http.StatusOK, updated)
	}
}

func fold(ds []*runtime.Device) []*runtime.DeviceMeta {
	out := make([]*runtime.DeviceMeta, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Fold())
	}
	return out
}

func listDevices(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		exploded := false
		filter := runtime.DeviceFilter{}
		if len(query) > 0 {
			v := query.Get(apis.Filter)
			if len(v) > 0 {
				if err := json.Unmarshal([]byte(v), &filter); err != nil {
					c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
					return
				}
			}
			exploded, _ = strconv.ParseBool(query.Get("exploded"))
		}
		rds, _ := mgr.ListDevices(&filter)

		if exploded {
			c.JSON(http.StatusOK, &runtime.ResponseModel{Devices: rds})
			return
		}
		c.JSON(http.StatusOK, &runtime.ResponseModel{Devices: fold(rds)})
	}
}

func getDeviceById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		exploded, _ := strconv.ParseBool(c.Query(apis.Exploded))
		rd, err := mgr.GetDeviceById(id)
		if err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		c.Header(apis.ETag, rd.GetVersion())
		if exploded {
			c.JSON(http.StatusOK, rd)
			return
		}
		c.JSON(http.StatusOK, rd.Fold())
	}
}

func switchDeviceStatusById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		status := c.Param("status")
		if err := mgr.SwitchDeviceStatus(id, status); err != nil {
			if os.IsNotExist(err) {
				c.Status(http.StatusNotFound)
			} else {
				writeError(c, err)
			}
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func executeCommand(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		req := service.CommandRequest{}
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			klog.V(3).InfoS("Failed to parse command", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		result, err := mgr.ExecuteCommand(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		if !result.Success {
			c.JSON(http.StatusBadGateway, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func testDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := mgr.TestDevice(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// parseReadOptions reads category and critical from the query.
func parseReadOptions(c *gin.Context) (service.ReadOptions, error) {
	opts := service.ReadOptions{}
	if v := c.Query(apis.Category); len(v) > 0 {
		category, ok := constant.StringToCategory[v]
		if !ok {
			return opts, response.ErrResourceNotFound(v)
		}
		opts.Category = &category
	}
	if v := c.Query(apis.Critical); len(v) > 0 {
		critical, err := strconv.ParseBool(v)
		if err != nil {
			return opts, response.ErrRequestBody
		}
		opts.CriticalOnly = critical
	}
	return opts, nil
}

func readDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, err := parseReadOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}
		reading, err := mgr.ReadDevice(c.Request.Context(), c.Param("id"), opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reading)
	}
}

// parseTimeRange reads RFC 3339 start and end; either may be omitted.
func parseTimeRange(c *gin.Context) (from, to time.Time, err error) {
	if v := c.Query(apis.Start); len(v) > 0 {
		if from, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return from, to, response.ErrInvalidTimeRange(err.Error())
		}
	}
	if v := c.Query(apis.End); len(v) > 0 {
		if to, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return from, to, response.ErrInvalidTimeRange(err.Error())
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return from, to, response.ErrInvalidTimeRange("start is after end")
	}
	return from, to, nil
}

func listReadings(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := parseTimeRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}
		limit := 0
		if v := c.Query(apis.Limit); len(v) > 0 {
			if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
				c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrRequestBody))
				return
			}
		}
		if limit == 0 || limit > maxReadingsLimit {
			limit = maxReadingsLimit
		}
		readings, err := mgr.Readings(c.Param("id"), from, to, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, &runtime.ResponseModel{Readings: readings})
	}
}

func readingStatistics(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := parseTimeRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}
		stats, err := mgr.ReadingStatistics(c.Param("id"), from, to)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func protocolParam(c *gin.Context) (constant.Protocol, bool) {
	p, err := constant.ParseProtocol(c.Param("protocol"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrProtocolUnSupported(c.Param("protocol"))))
		return p, false
	}
	return p, true
}

func listProtocols(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.Protocols())
	}
}

func protocolSchema(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := protocolParam(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, mgr.ProtocolSchema(p))
	}
}

func testConfiguration(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		p, ok := protocolParam(c)
		if !ok {
			return
		}
		cfg := runtime.Configuration{}
		if err := json.NewDecoder(c.Request.Body).Decode(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		result, err := mgr.TestConfiguration(c.Request.Context(), p, cfg)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func listBrands(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.Brands())
	}
}

func brandMappings(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		brand, err := constant.ParseBrand(c.Param("brand"))
		if err != nil {
			c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrBrandUnSupported(c.Param("brand"))))
			return
		}
		opts, err := parseReadOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}
		mappings, err := mgr.BrandMappings(brand, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, &runtime.ResponseModel{Mappings: mappings})
	}
}

func applyJSPatch(patchType types.PatchType, patchBytes, versionedJS []byte) (patchedJS []byte, err error) {
	switch patchType {
	case types.JSONPatchType:
		patchObj, err := jsonpatch.DecodePatch(patchBytes)
		if err != nil {
			return nil, response.ErrMalformedJSON
		}
		if len(patchObj) > maxJSONPatchOperations {
			klog.V(3).InfoS("Too many json patch operations", "count", len(patchObj))
			return nil, response.ErrTooManyJsonPatchOperations(maxJSONPatchOperations)
		}
		patchedJS, err := patchObj.Apply(versionedJS)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, nil
	case types.MergePatchType:
		patchedJS, err = jsonpatch.MergePatch(versionedJS, patchBytes)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json merge patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, err
	default:
		// only here as a safety net - gin filters content-type
		return nil, fmt.Errorf("unknown Content-Type header for patch: %v", patchType)
	}
}
