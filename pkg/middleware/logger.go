package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

// Logger writes one line per request. Server errors log at error level and client
// errors at warn; probes and metrics scrapes are only logged at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			ctx := req.Context()
			log := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":  appctx.GetRequestID(ctx),
				"tenant_id":   appctx.GetTenantID(ctx),
				"method":      req.Method,
				"route":       c.Path(),
				"uri":         req.RequestURI,
				"status":      res.Status,
				"bytes_out":   res.Size,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_ip":   c.RealIP(),
			})

			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("Request failed")
			case res.Status >= http.StatusBadRequest:
				log.Warn("Request rejected")
			case quietPath(c.Path()):
				log.Debug("Request")
			default:
				log.Info("Request")
			}
			return nil
		}
	}
}

func quietPath(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/api/v1/health")
}
