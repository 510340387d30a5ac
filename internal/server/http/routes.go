package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes attaches middleware in this order: request id, access log,
// recovery, body limit, metrics, CORS. The token endpoint is additionally
// rate limited per client IP.
func (s *HTTPServer) registerRoutes(opts Options) {
	r := s.engine
	r.HandleMethodNotAllowed = true

	r.Use(requestID())
	r.Use(accessLog(s.logger))
	r.Use(recovery(s.logger))
	r.Use(limitBody())
	r.Use(metrics())
	r.Use(corsMiddleware(opts.AllowedOrigins))

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	limiter := NewRateLimiter(opts.AuthRateRPS, opts.AuthRateBurst)
	authed := s.requireAuth()

	a := r.Group("/auth/v1")
	{
		a.POST("/token", limiter.Handler(), s.token)
		a.GET("/user", authed, s.getUser)
		a.PUT("/user", authed, s.updateUser)
		a.POST("/signup", authed, s.signup)
		a.POST("/logout", authed, s.logout)
	}

	rest := r.Group("/rest/v1", authed)
	{
		rest.POST("/rpc/:name", s.rpc)
		rest.GET("/:relation", s.listRows)
		rest.POST("/:relation", s.createRows)
		rest.PATCH("/:relation", s.updateRows)
		rest.DELETE("/:relation", s.deleteRows)
	}

	r.POST("/functions/v1/:name", authed, s.function)

	st := r.Group("/storage/v1/object", authed)
	{
		st.POST("/sign/:bucket/*key", s.signObject)
		st.GET("/:bucket/*key", s.downloadObject)
		st.POST("/:bucket/*key", s.uploadObject)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "apikey", "Prefer", "X-Client-Info", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "Content-Range", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (s *HTTPServer) healthz(c *gin.Context) {
	if s.svc.DB == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.svc.DB.PingContext(ctx); err != nil {
		s.logger.Warn(ctx, "health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}
