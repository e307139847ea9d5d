package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/kasira/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const HeaderRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	// Debug adds the raw error text to request logs.
	Debug bool
	// ErrorClassifier maps the last handler error to a type and code.
	ErrorClassifier func(err error) (string, string)
}

// quietRoutes log at debug level: probes, scrapes and bundle assets.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// GinMiddleware assigns a request id and writes one http_request line per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := append(make([]zap.Field, 0, 12),
			zap.String("method", c.Request.Method),
			zap.String("host", c.Request.Host),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)
		if state := c.GetString("session_state"); state != "" {
			fields = append(fields, zap.String("session_state", state))
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, errorFields(cfg, last.Err)...)
		}

		if ce := FromContext(c.Request.Context()).Check(levelFor(route, c.Request.URL.Path, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestIDFor trusts an inbound id only when it is a UUID.
func requestIDFor(c *gin.Context) string {
	if id, err := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderRequestID))); err == nil {
		return id.String()
	}
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func errorFields(cfg MiddlewareConfig, err error) []zap.Field {
	var errType, errCode string
	if cfg.ErrorClassifier != nil {
		errType, errCode = cfg.ErrorClassifier(err)
	}
	fields := []zap.Field{zap.String("error_type", errType), zap.String("error_code", errCode)}
	if cfg.Debug {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

func levelFor(route, path string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case quietRoutes[route], strings.HasPrefix(path, "/assets/"):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
