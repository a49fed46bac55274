package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// RouterDeps agrupa lo que NewRouter necesita para montar las rutas.
type RouterDeps struct {
	Logger      *zap.Logger
	Auth        *AuthHandler
	Movies      *MovieHandler
	Rated       *RatedHandler
	RequireAuth gin.HandlerFunc
	Metrics     http.Handler
	Registerer  prometheus.Registerer
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()

	// Middlewares basicos: logging, recovery, métricas y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())
	if deps.Registerer != nil {
		r.Use(requestMetricsMiddleware(deps.Registerer))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := r.Group("/", jsonContentTypeMiddleware())

	auth := api.Group("/auth")
	auth.POST("/signup", deps.Auth.SignUp)
	auth.POST("/signin", deps.Auth.SignIn)
	auth.GET("/session", deps.Auth.Session)
	auth.POST("/signout", deps.RequireAuth, deps.Auth.SignOut)
	auth.PATCH("/profile", deps.RequireAuth, deps.Auth.UpdateProfile)

	movies := api.Group("/movies")
	movies.GET("/search", deps.Movies.Search)
	movies.GET("/popular", deps.Movies.Popular)
	movies.GET("/trending", deps.Movies.Trending)
	movies.GET("/:id", deps.Movies.Details)

	rated := api.Group("/rated", deps.RequireAuth)
	rated.GET("", deps.Rated.List)
	rated.GET("/stats", deps.Rated.Stats)
	rated.GET("/:id", deps.Rated.Get)
	rated.PUT("/:id", deps.Rated.Put)
	rated.DELETE("/:id", deps.Rated.Delete)

	return r
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

// requestMetricsMiddleware cuenta requests por ruta (patrón, no path real)
// y mide su latencia.
func requestMetricsMiddleware(reg prometheus.Registerer) gin.HandlerFunc {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratemymovie_http_requests_total",
			Help: "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratemymovie_http_request_duration_seconds",
			Help:    "HTTP request latency by route in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	reg.MustRegister(requests, latency)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
