package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/portal/service"
	"github.com/sirupsen/logrus"
)

// Config holds the router settings
type Config struct {
	Prefix       string
	Info         Info
	SecureCookie bool
	Logger       logrus.FieldLogger
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg Config) *gin.Engine {
	if cfg.Prefix == "" {
		cfg.Prefix = "/api"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), ProcessTime(), RequestLogger(cfg.Logger))

	handlers := NewAuthHandlers(authService, cfg)

	api := router.Group(cfg.Prefix)
	{
		api.GET("/health", handlers.Health)
		api.GET("/info", handlers.Info)
		api.POST("/token", handlers.Token)
		api.POST("/refresh", handlers.Refresh)
		api.POST("/logout", handlers.Logout)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService))
	{
		protected.GET("/hello", handlers.Hello)
		protected.POST("/predict", handlers.Predict)
	}

	return router
}
