package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/calibration"
	"github.com/charlie0129/vstab/pkg/events"
	"github.com/charlie0129/vstab/pkg/version"
)

type api struct {
	ctrl *Controller
	hub  *events.Hub
}

func setupRoutes(ctrl *Controller, hub *events.Hub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	a := &api{ctrl: ctrl, hub: hub}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", a.getStatus)
	router.GET("/settings", a.getSettings)
	router.DELETE("/settings", a.clearSettings)
	router.GET("/calibration", a.getCalibration)
	router.POST("/calibration/begin", a.beginCalibration)
	router.POST("/calibration/delay/next", a.nextDelay)
	router.POST("/calibration/delay/confirm", a.confirmDelay)
	router.PUT("/calibration/delay", a.setDelay)
	router.POST("/calibration/capture", a.capture)
	router.POST("/calibration/cancel", a.cancelCalibration)
	router.GET("/events", a.streamEvents)
	router.GET("/version", getVersion)

	return router
}

// abort writes err as the JSON body and records it for the logger.
func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

// calibrationErrorCode maps wizard errors to HTTP status codes.
func calibrationErrorCode(err error) int {
	switch {
	case errors.Is(err, calibration.ErrCalibrationInProgress),
		errors.Is(err, calibration.ErrCalibrationNotRunning),
		errors.Is(err, calibration.ErrWrongPhase):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *api) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, a.ctrl.Snapshot())
}

func (a *api) getSettings(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, a.ctrl.Settings())
}

func (a *api) clearSettings(c *gin.Context) {
	if err := a.ctrl.ClearSettings(); err != nil {
		logrus.Errorf("clearSettings failed: %v", err)
		abort(c, calibrationErrorCode(err), err)
		return
	}

	logrus.Info("settings cleared, calibration required")
	c.IndentedJSON(http.StatusOK, a.ctrl.CalibrationStatus())
}

func (a *api) getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, a.ctrl.CalibrationStatus())
}

func (a *api) beginCalibration(c *gin.Context) {
	if err := a.ctrl.BeginCalibration(); err != nil {
		abort(c, calibrationErrorCode(err), err)
		return
	}
	c.IndentedJSON(http.StatusCreated, a.ctrl.CalibrationStatus())
}

func (a *api) nextDelay(c *gin.Context) {
	if _, err := a.ctrl.NextDelay(); err != nil {
		abort(c, calibrationErrorCode(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, a.ctrl.CalibrationStatus())
}

func (a *api) confirmDelay(c *gin.Context) {
	if err := a.ctrl.ConfirmDelay(); err != nil {
		abort(c, calibrationErrorCode(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, a.ctrl.CalibrationStatus())
}

func (a *api) setDelay(c *gin.Context) {
	var ms uint32
	if err := c.BindJSON(&ms); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if err := a.ctrl.SetDelay(ms); err != nil {
		abort(c, calibrationErrorCode(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, a.ctrl.CalibrationStatus())
}

func (a *api) capture(c *gin.Context) {
	st, err := a.ctrl.Capture()
	if err != nil {
		code := calibrationErrorCode(err)
		if code == http.StatusInternalServerError {
			// capture rejected the sample, the wizard is now in Error
			code = http.StatusUnprocessableEntity
		}
		abort(c, code, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, st)
}

func (a *api) cancelCalibration(c *gin.Context) {
	if err := a.ctrl.CancelCalibration(); err != nil {
		abort(c, calibrationErrorCode(err), err)
		return
	}
	c.IndentedJSON(http.StatusOK, a.ctrl.CalibrationStatus())
}

// streamEvents relays hub events to the client as server-sent events until
// the client goes away.
func (a *api) streamEvents(c *gin.Context) {
	ch, cancel := a.hub.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
