package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/ngoduykhanh/wgserver/manager"
	"github.com/ngoduykhanh/wgserver/model"
)

type jsonHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Target names the interface and the server config every request operates on
type Target struct {
	Device     string
	ConfigPath string
	Timeout    time.Duration
}

func (t Target) context(c echo.Context) (context.Context, context.CancelFunc) {
	if t.Timeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), t.Timeout)
}

type newClientRequest struct {
	Name string `json:"name" validate:"required,max=64,clientname"`
}

// Register adds every route of the API to e
func Register(e *echo.Echo, m *manager.Manager, t Target) {
	e.POST("/up", BringUp(m, t))
	e.POST("/down", BringDown(m, t))
	e.POST("/reboot", Reboot(m, t))
	e.POST("/clients", NewClient(m, t), ContentTypeJson)
	e.GET("/clients", GetClients(m, t))
	e.GET("/clients/stats", GetClientStats(m, t))
	e.DELETE("/clients/:id", RemoveClient(m, t))
	e.GET("/config/:id", DownloadClientConfig(m, t))
	e.GET("/config/:id/qrcode", ClientConfigQRCode(m, t))
	e.GET("/server/config", ServerConfig(m, t))
}

// errorStatus maps core errors to the HTTP status reported to the caller
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func failure(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("Request %s %s failed: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, jsonHTTPResponse{false, err.Error()})
}

func clientID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		return 0, c.JSON(http.StatusBadRequest, jsonHTTPResponse{false, "Client id must be a non-negative integer"})
	}
	return id, nil
}

// BringUp handler
func BringUp(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := t.context(c)
		defer cancel()

		if err := m.BringUp(ctx, t.Device, t.ConfigPath); err != nil {
			return failure(c, err)
		}
		return c.JSON(http.StatusOK, jsonHTTPResponse{true, "wg server started"})
	}
}

// BringDown handler
func BringDown(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := t.context(c)
		defer cancel()

		if err := m.BringDown(ctx, t.Device); err != nil {
			return failure(c, err)
		}
		return c.JSON(http.StatusOK, jsonHTTPResponse{true, "wg server stopped"})
	}
}

// Reboot handler
func Reboot(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := t.context(c)
		defer cancel()

		if err := m.Reboot(ctx, t.Device, t.ConfigPath); err != nil {
			return failure(c, err)
		}
		return c.JSON(http.StatusOK, jsonHTTPResponse{true, "wg server restarted"})
	}
}

// NewClient handler
func NewClient(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(newClientRequest)
		if err := c.Bind(req); err != nil {
			return c.JSON(http.StatusBadRequest, jsonHTTPResponse{false, "Bad post data"})
		}
		if err := c.Validate(req); err != nil {
			log.Warnf("Invalid new client request: %v", err)
			return c.JSON(http.StatusBadRequest, jsonHTTPResponse{false, err.Error()})
		}

		ctx, cancel := t.context(c)
		defer cancel()

		id, err := m.AddClient(ctx, t.Device, t.ConfigPath, req.Name)
		if err != nil {
			return failure(c, err)
		}
		return c.JSON(http.StatusOK, id)
	}
}

// RemoveClient handler
func RemoveClient(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := clientID(c)
		if err != nil {
			return err
		}

		ctx, cancel := t.context(c)
		defer cancel()

		if err := m.RemoveClient(ctx, t.Device, t.ConfigPath, id); err != nil {
			return failure(c, err)
		}
		return c.JSON(http.StatusOK, jsonHTTPResponse{true, "Client removed"})
	}
}

// GetClients handler returns the roster without private key material
func GetClients(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		clients, err := m.Summaries(t.ConfigPath, c.QueryParam("name"))
		if err != nil {
			return failure(c, err)
		}
		return c.JSON(http.StatusOK, clients)
	}
}

// GetClientStats handler
func GetClientStats(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := t.context(c)
		defer cancel()

		stats, err := m.ClientStats(ctx, t.Device, t.ConfigPath)
		if err != nil {
			return failure(c, err)
		}
		return c.JSON(http.StatusOK, stats)
	}
}

// DownloadClientConfig handler
func DownloadClientConfig(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := clientID(c)
		if err != nil {
			return err
		}

		config, err := m.GetClientConfigText(t.ConfigPath, id)
		if err != nil {
			return failure(c, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=wg"+strconv.Itoa(id)+".conf")
		return c.String(http.StatusOK, config)
	}
}

// ClientConfigQRCode handler
func ClientConfigQRCode(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := clientID(c)
		if err != nil {
			return err
		}

		png, err := m.GetClientConfigQR(t.ConfigPath, id)
		if err != nil {
			return failure(c, err)
		}
		return c.Blob(http.StatusOK, "image/png", png)
	}
}

// ServerConfig handler
func ServerConfig(m *manager.Manager, t Target) echo.HandlerFunc {
	return func(c echo.Context) error {
		config, err := m.GetServerConfigText(t.ConfigPath)
		if err != nil {
			return failure(c, err)
		}
		return c.String(http.StatusOK, config)
	}
}
