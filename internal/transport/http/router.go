package transporthttp

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Router builds the gin engine. CORS is mounted engine-wide so pre-flight
// probes are answered (204) even though no OPTIONS route is registered:
// wildcard origin, POST and OPTIONS, content-type header, 86400s cache.
func (d *ServerDeps) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          86400 * time.Second,
	}))

	router.GET("/healthz", d.HandleHealthz)
	router.GET("/readyz", d.HandleReadyz)

	events := router.Group("/events")
	events.Use(BodyLimit(d.Cfg.MaxBodyBytes))
	events.Use(RequireJSON())
	events.Use(APIKeyAuth(d.Cfg.APIKeySet()))
	events.POST("", d.HandlePostEvents)
	events.POST("/single", d.HandlePostEvent)

	metrics := router.Group("/metrics")
	metrics.Use(APIKeyAuth(d.Cfg.APIKeySet()))
	metrics.Use(RateLimitPerMinute(d.Cfg.RateLimitMetricsPerMin, d.Now))
	metrics.GET("", d.HandleGetMetrics)

	return router
}
