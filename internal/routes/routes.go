// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"gnss-configurator/internal/config"
	"gnss-configurator/internal/handler"
	"gnss-configurator/internal/middleware"
	"gnss-configurator/internal/utils"
)

// Handlers groups the HTTP handlers served by the router
type Handlers struct {
	Health    *handler.HealthHandler
	Schema    *handler.SchemaHandler
	Provision *handler.ProvisionHandler
	Runs      *handler.RunHandler
	Ports     *handler.PortHandler
	WebSocket *handler.WebSocketHandler
}

// Router holds all dependencies for routing
type Router struct {
	config   *config.Config
	logger   *zap.Logger
	handlers *Handlers
}

// NewRouter creates a new router instance
func NewRouter(config *config.Config, logger *zap.Logger, handlers *Handlers) *Router {
	return &Router{
		config:   config,
		logger:   logger,
		handlers: handlers,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	gin.SetMode(ginMode(r.config))

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// ginMode picks the gin mode for the environment. Debug mode outside
// development needs app.debug.
func ginMode(cfg *config.Config) string {
	switch {
	case cfg.App.Environment == "test":
		return gin.TestMode
	case cfg.IsProduction():
		return gin.ReleaseMode
	case cfg.IsDebugEnabled():
		return gin.DebugMode
	default:
		return gin.ReleaseMode
	}
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	r.addHealthRoutes(router, r.handlers.Health)

	apiV1 := router.Group("/api/v1")
	r.addSchemaRoutes(apiV1, r.handlers.Schema)
	r.addProvisionRoutes(apiV1, r.handlers.Provision)
	r.addRunRoutes(apiV1, r.handlers.Runs)
	apiV1.GET("/ports", r.handlers.Ports.ListPorts)

	r.addWebSocketRoutes(router, r.handlers.WebSocket)
	r.addDocumentationRoutes(router)

	r.logger.Debug("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

// addSchemaRoutes sets up schema inspection routes
func (r *Router) addSchemaRoutes(api *gin.RouterGroup, handler *handler.SchemaHandler) {
	schema := api.Group("/schema")
	{
		schema.GET("/records", handler.ListRecords)
		schema.GET("/records/:name", handler.GetRecord)
	}
}

// addProvisionRoutes sets up encoding and provisioning routes
func (r *Router) addProvisionRoutes(api *gin.RouterGroup, handler *handler.ProvisionHandler) {
	api.POST("/frames", handler.EncodeFrames)
	api.POST("/provision", handler.Provision)
}

// addRunRoutes sets up journal routes
func (r *Router) addRunRoutes(api *gin.RouterGroup, handler *handler.RunHandler) {
	runs := api.Group("/runs")
	{
		runs.GET("", handler.ListRuns)
		runs.GET("/:run_id", handler.GetRun)
	}
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	{
		ws.GET("/runs", handler.HandleRunConnection)
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
