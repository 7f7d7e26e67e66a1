package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	idempotencyTTL       = 24 * time.Hour
	maxIdempotencyKeyLen = 255
	maxHashedBodyBytes   = 1 << 20
)

// captureWriter дублирует тело ответа, чтобы сохранить его под ключом.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
// Без заголовка запрос обрабатывается как обычно.
func idempotent(repo domain.IdempotencyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		if repo == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			respondValidation(c, "%s must be at most %d characters", headerIdempotencyKey, maxIdempotencyKeyLen)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxHashedBodyBytes)
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondValidation(c, "request body exceeds %d bytes", tooLarge.Limit)
				return
			}
			respondValidation(c, "read request body: %v", err)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))

		hash := requestHash(c.Request.Method, c.FullPath(), requesterFrom(c, "").Actor(), raw)
		logger := loggerFrom(c).WithField("idempotency_key", key)

		record, err := repo.CreateProcessing(c.Request.Context(), key, hash, time.Now().UTC().Add(idempotencyTTL))
		if err != nil {
			replay(c, logger, record, err)
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		completed := false
		// Ключ закрывается и при панике обработчика.
		defer func() {
			status, body := writer.Status(), writer.body.Bytes()
			if !completed {
				status, body = http.StatusInternalServerError, internalErrorJSON()
			}
			var markErr error
			if status >= http.StatusBadRequest {
				markErr = repo.MarkFailed(c.Request.Context(), key, body, status)
			} else {
				markErr = repo.MarkDone(c.Request.Context(), key, body, status)
			}
			if markErr != nil {
				logger.WithError(markErr).Warn("failed to store idempotent response")
			}
		}()

		c.Next()
		completed = true
	}
}

func replay(c *gin.Context, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case domain.IsIdempotencyConflict(createErr):
		if errors.Is(createErr, domain.ErrIdempotencyHashMismatch) {
			respondError(c, fmt.Errorf("%w: key %q", domain.ErrIdempotencyHashMismatch, record.Key))
			return
		}
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if record.HTTPStatus == 0 {
				respondError(c, errors.New("idempotency cache is empty"))
				return
			}
			logger.WithField("status", record.Status).Debug("replaying idempotent response")
			c.Header(headerReplayed, "true")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
			c.Abort()
		case domain.IdempotencyStatusProcessing:
			respondError(c, domain.ErrIdempotencyInProgress)
		default:
			respondError(c, fmt.Errorf("unknown idempotency record status %q", record.Status))
		}
	case errors.Is(createErr, domain.ErrIdempotencyKeyRequired):
		respondValidation(c, "%s is required", headerIdempotencyKey)
	default:
		logger.WithError(createErr).Warn("failed to create idempotency record")
		respondError(c, createErr)
	}
}

func internalErrorJSON() []byte {
	body, _ := json.Marshal(internalErrorEnvelope())
	return body
}

func requestHash(method, route, actor string, body []byte) string {
	sum := sha256.New()
	for _, part := range []string{method, route, actor} {
		sum.Write([]byte(part))
		sum.Write([]byte{0})
	}
	sum.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(sum.Sum(nil))
}
