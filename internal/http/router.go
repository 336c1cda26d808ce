package http

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions agrupa parametros de ruteo que vienen de la configuracion.
type RouterOptions struct {
	APIPrefix      string
	RateLimitRPS   float64
	RateLimitBurst int
	Gatherer       prometheus.Gatherer
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	opts RouterOptions,
	metrics *Metrics,
	authGate gin.HandlerFunc,
	authH *AuthHandler,
	healthH *HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery, metricas y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), metrics.middleware(), jsonContentTypeMiddleware())

	r.GET("/health", healthH.Health)
	r.GET("/ready", healthH.Ready)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group(normalizePrefix(opts.APIPrefix))
	auth := api.Group("/auth", RateLimitMiddleware(logger, opts.RateLimitRPS, opts.RateLimitBurst))
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.POST("/refresh", authH.Refresh)
	auth.POST("/logout", authH.Logout)

	me := auth.Group("/me", authGate)
	me.GET("", authH.Me)
	me.PUT("", authH.UpdateMe)

	return r
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
