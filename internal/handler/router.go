package handler

import (
	"net/http"

	"gestoria/internal/middleware"
	"gestoria/internal/websocket"
	"gestoria/pkg/logger"
	"gestoria/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouteRegistrar is implemented by every handler.
type RouteRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

type RouterConfig struct {
	AllowOrigins []string
	JWTSecret    []byte
	Swagger      bool
}

// NewRouter builds the gin engine: global middleware, infrastructure routes
// and every handler under /api behind the general rate limit.
func NewRouter(cfg RouterConfig, log *logger.Logger, guards Guards, metrics *middleware.Metrics, hub *websocket.Hub, system *SystemHandler, handlers ...RouteRegistrar) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	if metrics != nil {
		router.Use(metrics.Middleware())
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Retry-After", "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "route not found"))
	})

	if system != nil {
		router.GET("/health", system.Health)
	}
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if cfg.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			websocket.ServeWs(hub, c, cfg.JWTSecret)
		})
	}

	api := router.Group("/api")
	api.Use(guards.Limits.General.Handler())
	if system != nil {
		system.RegisterRoutes(api)
	}
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return router
}
