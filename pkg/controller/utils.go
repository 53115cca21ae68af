package controller

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs requests through logrus. Requests that change the
// regulator are logged at info, reads at debug.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handlers can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		elapsedMs := int(math.Ceil(float64(time.Since(start).Nanoseconds()) / 1e6))
		code := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"code":      code,
			"elapsedMs": elapsedMs,
			"method":    c.Request.Method,
			"path":      path,
			"bytes":     max(c.Writer.Size(), 0),
		})

		if path == "/events" {
			entry.Debug("event stream closed")
			return
		}

		msg := fmt.Sprintf("%s %s %d", c.Request.Method, path, code)
		if len(c.Errors) > 0 {
			msg += ": " + c.Errors.ByType(gin.ErrorTypePrivate).String()
		}

		switch {
		case code >= http.StatusInternalServerError:
			entry.Error(msg)
		case code >= http.StatusBadRequest:
			entry.Warn(msg)
		case c.Request.Method != http.MethodGet:
			entry.Info(msg)
		default:
			entry.Debug(msg)
		}
	}
}
