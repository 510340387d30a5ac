package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/nocgateway/internal/logging"
	"github.com/dmitrijs2005/nocgateway/internal/server/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	identityKey     = "identity"

	defaultBodyLimit = 1 << 20
	uploadBodyLimit  = 25 << 20
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight)
}

// requestID propagates or mints X-Request-ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// accessLog writes one line per request. Query strings are not logged.
func accessLog(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		args := []any{
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"remote_ip", c.ClientIP(),
		}
		if id, ok := identityFrom(c); ok {
			args = append(args, "user_id", id.UserID, "tenant_id", id.TenantID)
		}

		switch {
		case status >= 500:
			logger.Error(c.Request.Context(), "request", args...)
		case status >= 400:
			logger.Warn(c.Request.Context(), "request", args...)
		default:
			logger.Info(c.Request.Context(), "request", args...)
		}
	}
}

// recovery turns panics into a server_error envelope.
func recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(c.Request.Context(), "panic recovered", "panic", rec, "request_id", c.GetString(requestIDKey))
				if !c.Writer.Written() {
					fail(c, http.StatusInternalServerError, codeServerError, "internal server error")
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// limitBody caps request bodies. Object uploads get a larger allowance.
func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := int64(defaultBodyLimit)
		if strings.HasPrefix(c.Request.URL.Path, "/storage/v1/object/") {
			limit = uploadBodyLimit
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// requireAuth verifies the bearer token and stores the caller's identity.
func (s *HTTPServer) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			token, ok = strings.CutPrefix(header, "bearer ")
		}
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			fail(c, http.StatusUnauthorized, codeNotAuthenticated, "missing bearer token")
			return
		}

		id, err := s.svc.Auth.Authenticate(token)
		if err != nil {
			fail(c, http.StatusUnauthorized, codeNotAuthenticated, "invalid or expired token")
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func mustIdentity(c *gin.Context) auth.Identity {
	id, _ := identityFrom(c)
	return id
}
