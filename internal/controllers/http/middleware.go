package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"grocery-service/internal/auth"
	"grocery-service/internal/domain"
	"grocery-service/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const IdempotencyHeader = "Idempotency-Key"

type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func AccessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if u, ok := auth.CurrentUser(c); ok {
			entry = entry.WithField("customer_id", u.ID)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

func Instrument(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// Idempotent rejects a repeated Idempotency-Key from the same caller on the
// same route. Keys of failed requests are released so the client can retry.
func Idempotent(store IdempotencyStore, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || store == nil {
			c.Next()
			return
		}
		u, _ := auth.CurrentUser(c)
		full := u.ID + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key

		first, err := store.Claim(c.Request.Context(), full)
		if err != nil {
			log.WithError(err).Warn("idempotency claim failed, processing anyway")
			c.Next()
			return
		}
		if !first {
			c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
				Error:   domain.ErrDuplicateRequest.Code,
				Message: domain.ErrDuplicateRequest.Message,
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := store.Release(context.WithoutCancel(c.Request.Context()), full); err != nil {
				log.WithError(err).Warn("idempotency release failed")
			}
		}
	}
}
