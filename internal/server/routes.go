package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Havanyani/ecocartapp-sub009/internal/core/domain"
	"github.com/Havanyani/ecocartapp-sub009/pkg/ecoble"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")

	monitor := api.Group("/monitor/:deviceId")
	monitor.GET("/reading", s.MonitorReadingHandler)
	monitor.GET("/settings", s.MonitorSettingsHandler)
	monitor.GET("/stats", s.MonitorStatsHandler)
	monitor.PATCH("/settings", s.MonitorUpdateSettingsHandler)
	monitor.POST("/stats/reset", s.MonitorResetStatsHandler)
	monitor.GET("/cost", s.MonitorEnergyCostHandler)
	monitor.GET("/recommendations", s.MonitorRecommendationsHandler)
	monitor.POST("/connect", s.MonitorConnectHandler)
	monitor.POST("/disconnect", s.MonitorDisconnectHandler)

	bin := api.Group("/bin/:deviceId")
	bin.GET("/reading", s.BinReadingHandler)
	bin.GET("/settings", s.BinSettingsHandler)
	bin.GET("/stats", s.BinStatsHandler)
	bin.PATCH("/settings", s.BinUpdateSettingsHandler)
	bin.POST("/emptied", s.BinEmptiedHandler)
	bin.POST("/calibrate", s.BinCalibrateHandler)
	bin.POST("/connect", s.BinConnectHandler)
	bin.POST("/disconnect", s.BinDisconnectHandler)

	return e
}

// connectDeviceRequest is the connect endpoint body. The path device id wins
// over the body id.
type connectDeviceRequest struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	ServiceUUIDs []string `json:"serviceUUIDs"`
}

func (r connectDeviceRequest) device(deviceId string, deviceType domain.DeviceType) domain.Device {
	return domain.DeviceFromDescriptor(ecoble.Descriptor{
		ID:           deviceId,
		Name:         r.Name,
		ServiceUUIDs: r.ServiceUUIDs,
	}, deviceType)
}

// askMaster runs one request through the master actor and asserts the
// response type.
func askMaster[T any](s *Server, request any) (T, error) {
	var zero T
	res, err := s.rootContext.RequestFuture(s.masterActor, request, 10*time.Second).Result()
	if err != nil {
		return zero, err
	}
	response, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected response type %T", res)
	}
	return response, nil
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := askMaster[domain.ActorHealthResponse](s, domain.ActorHealthRequest{})
	if err != nil || !res.Healthy {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"healthy": false, "version": versioninfo.Short()})
	}
	return c.JSON(http.StatusOK, echo.Map{"healthy": true, "version": versioninfo.Short()})
}

func (s *Server) MonitorReadingHandler(c echo.Context) error {
	res, err := askMaster[domain.MonitorReadingResponse](s, domain.MonitorReadingRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Reading == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, res.Reading)
}

func (s *Server) MonitorSettingsHandler(c echo.Context) error {
	res, err := askMaster[domain.MonitorSettingsResponse](s, domain.MonitorSettingsRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Settings == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, res.Settings)
}

func (s *Server) MonitorStatsHandler(c echo.Context) error {
	res, err := askMaster[domain.MonitorStatsResponse](s, domain.MonitorStatsRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Stats == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, res.Stats)
}

func (s *Server) MonitorUpdateSettingsHandler(c echo.Context) error {
	var patch domain.EnergySettingsPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid settings patch"})
	}
	res, err := askMaster[domain.MonitorUpdateSettingsResponse](s, domain.MonitorUpdateSettingsRequest{
		DeviceId: c.Param("deviceId"),
		Patch:    patch,
	})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Ok {
		return c.JSON(http.StatusOK, res.Settings)
	}
	if res.Settings == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusBadGateway, echo.Map{"error": "device write failed"})
}

func (s *Server) MonitorResetStatsHandler(c echo.Context) error {
	res, err := askMaster[domain.MonitorResetStatsResponse](s, domain.MonitorResetStatsRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if !res.Ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (s *Server) MonitorEnergyCostHandler(c echo.Context) error {
	kwh, err := strconv.ParseFloat(c.QueryParam("kwh"), 64)
	if err != nil || kwh < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid kwh"})
	}
	res, err := askMaster[domain.MonitorEnergyCostResponse](s, domain.MonitorEnergyCostRequest{
		DeviceId: c.Param("deviceId"),
		KWh:      kwh,
	})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"cost": res.Cost})
}

func (s *Server) MonitorRecommendationsHandler(c echo.Context) error {
	res, err := askMaster[domain.MonitorRecommendationsResponse](s, domain.MonitorRecommendationsRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	recommendations := res.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"recommendations": recommendations})
}

func (s *Server) MonitorConnectHandler(c echo.Context) error {
	var body connectDeviceRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid device descriptor"})
	}
	res, err := askMaster[domain.MonitorConnectResponse](s, domain.MonitorConnectRequest{
		Device: body.device(c.Param("deviceId"), domain.DEVICE_TYPE_ENERGY_MONITOR),
	})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if !res.Accepted {
		if res.HasResponseError() {
			return c.JSON(http.StatusBadGateway, echo.Map{"accepted": false, "error": res.GetResponseError().Error()})
		}
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"accepted": false, "error": "unsupported device"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accepted": true})
}

func (s *Server) MonitorDisconnectHandler(c echo.Context) error {
	res, err := askMaster[domain.MonitorDisconnectResponse](s, domain.MonitorDisconnectRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if !res.Ok {
		if res.HasResponseError() {
			return c.JSON(http.StatusBadGateway, echo.Map{"ok": false, "error": res.GetResponseError().Error()})
		}
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (s *Server) BinReadingHandler(c echo.Context) error {
	res, err := askMaster[domain.BinReadingResponse](s, domain.BinReadingRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Reading == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, res.Reading)
}

func (s *Server) BinSettingsHandler(c echo.Context) error {
	res, err := askMaster[domain.BinSettingsResponse](s, domain.BinSettingsRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Settings == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, res.Settings)
}

func (s *Server) BinStatsHandler(c echo.Context) error {
	res, err := askMaster[domain.BinStatsResponse](s, domain.BinStatsRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Stats == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, res.Stats)
}

func (s *Server) BinUpdateSettingsHandler(c echo.Context) error {
	var patch domain.BinSettingsPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid settings patch"})
	}
	res, err := askMaster[domain.BinUpdateSettingsResponse](s, domain.BinUpdateSettingsRequest{
		DeviceId: c.Param("deviceId"),
		Patch:    patch,
	})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if res.Ok {
		return c.JSON(http.StatusOK, res.Settings)
	}
	if res.Settings == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusBadGateway, echo.Map{"error": "device write failed"})
}

func (s *Server) BinEmptiedHandler(c echo.Context) error {
	res, err := askMaster[domain.BinEmptiedResponse](s, domain.BinEmptiedRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if !res.Ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (s *Server) BinCalibrateHandler(c echo.Context) error {
	res, err := askMaster[domain.BinCalibrateResponse](s, domain.BinCalibrateRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if !res.Ok {
		if res.HasResponseError() {
			return c.JSON(http.StatusBadGateway, echo.Map{"ok": false, "error": res.GetResponseError().Error()})
		}
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (s *Server) BinConnectHandler(c echo.Context) error {
	var body connectDeviceRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid device descriptor"})
	}
	res, err := askMaster[domain.BinConnectResponse](s, domain.BinConnectRequest{
		Device: body.device(c.Param("deviceId"), domain.DEVICE_TYPE_SMART_BIN),
	})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if !res.Accepted {
		if res.HasResponseError() {
			return c.JSON(http.StatusBadGateway, echo.Map{"accepted": false, "error": res.GetResponseError().Error()})
		}
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"accepted": false, "error": "unsupported device"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accepted": true})
}

func (s *Server) BinDisconnectHandler(c echo.Context) error {
	res, err := askMaster[domain.BinDisconnectResponse](s, domain.BinDisconnectRequest{DeviceId: c.Param("deviceId")})
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	}
	if !res.Ok {
		if res.HasResponseError() {
			return c.JSON(http.StatusBadGateway, echo.Map{"ok": false, "error": res.GetResponseError().Error()})
		}
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown device"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
