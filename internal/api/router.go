package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReservedPaths are top-level routes a short code must never shadow.
var ReservedPaths = []string{"links", "health", "status", "metrics"}

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	AuthHeader           string
	RedirectRequiresAuth bool
	CORSOrigins          []string // empty allows all origins
}

// SetupRouter initializes and configures the Gin router.
func SetupRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.Default() // Logger and Recovery middleware included
	r.Use(RequestID(), Metrics())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, cfg.AuthHeader, requestIDHeader)
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	r.Use(cors.New(corsConfig))

	r.GET("/health", HealthCheckHandler)
	r.GET("/status", h.StatusHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	identity := Identity(cfg.AuthHeader)
	links := r.Group("/links", identity)
	{
		links.GET("", h.ListHandler)
		links.POST("", h.CreateHandler)
		links.GET("/:id", h.DetailHandler)
		links.DELETE("/:id", h.DeleteHandler)
		links.POST("/:id/delete", h.DeleteHandler)
	}

	if cfg.RedirectRequiresAuth {
		r.GET("/:shortCode", identity, h.RedirectHandler)
	} else {
		r.GET("/:shortCode", h.RedirectHandler)
	}

	return r
}
