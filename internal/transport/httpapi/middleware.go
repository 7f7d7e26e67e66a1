package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	ctxLoggerKey    = "bakery.logger"
	ctxRequestIDKey = "bakery.request_id"
)

// requestContext присваивает запросу идентификатор и логгер с ним.
func requestContext(base *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestIDKey, requestID)
		c.Set(ctxLoggerKey, base.WithField("request_id", requestID))
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

// accessLog пишет одну запись на запрос.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := loggerFrom(c).WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("http request")
		case status >= http.StatusBadRequest:
			entry.Warn("http request")
		default:
			entry.Info("http request")
		}
	}
}

// observe пишет метрики запроса по шаблону маршрута, а не по фактическому пути.
func observe(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// recovery превращает панику обработчика в 500 с конвертом ошибки.
func internalErrorEnvelope() ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Code: CodeInternal, Message: "internal server error"}}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		loggerFrom(c).WithField("panic", recovered).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, internalErrorEnvelope())
	})
}
