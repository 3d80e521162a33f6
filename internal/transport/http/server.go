package http

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"docqa/internal/bootstrap"
	"docqa/internal/transport/http/handler"
	"docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	// Every API route is registered with and without the trailing slash.
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery(), middleware.Metrics(app.Metrics), cors.New(corsConfig(app.Config.App.CORSOrigins)))
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}

	healthHandler := handler.NewHealthHandler(app)
	documentHandler := handler.NewDocumentHandler(app.Documents, app.Logger)

	router.GET("/", healthHandler.Welcome)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	handle(router, "POST", "/upload/", documentHandler.Upload)
	handle(router, "POST", "/ask/", documentHandler.Ask)
	handle(router, "GET", "/search/", documentHandler.Search)
	handle(router, "DELETE", "/delete/:file_id/", documentHandler.Delete)

	return router
}

func handle(router *gin.Engine, method, path string, h gin.HandlerFunc) {
	router.Handle(method, path, h)
	router.Handle(method, strings.TrimSuffix(path, "/"), h)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
