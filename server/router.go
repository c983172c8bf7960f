package server

import (
	"time"

	httpHandler "content-publisher/interfaces/http"
	"content-publisher/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router mounts. FacebookOAuth and Stream are
// optional.
type Handlers struct {
	Publish       httpHandler.IPublishHandler
	Job           httpHandler.IJobHandler
	Credential    httpHandler.ICredentialHandler
	Health        httpHandler.IHealthHandler
	FacebookOAuth httpHandler.IFacebookOAuthHandler
	Stream        gin.HandlerFunc
}

var defaultOrigins = []string{"http://localhost:4200", "http://localhost:4201", "https://localhost:4200", "https://localhost:4201"}

func InitiateRouter(h Handlers, secretKey string, allowedOrigins []string) *gin.Engine {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	auth := middleware.Auth(secretKey)
	api := router.Group("api")
	api.Use(auth)

	router.GET("/healthz", h.Health.Healthz)

	if h.FacebookOAuth != nil {
		router.GET("/auth/facebook", auth, h.FacebookOAuth.GetAuthURL)
		router.GET("/auth/facebook/callback", h.FacebookOAuth.Callback)
	}

	api.POST("/publish", h.Publish.Enqueue)
	api.POST("/publish/now", h.Publish.PublishNow)

	posts := api.Group("/posts/:platform/:externalId")
	{
		posts.POST("/update", h.Publish.Update)
		posts.DELETE("", h.Publish.Delete)
		posts.GET("/metrics", h.Publish.Metrics)
	}

	jobs := api.Group("/jobs")
	{
		jobs.GET("/stats", h.Job.Stats)
		jobs.GET("/failed", h.Job.Failed)
		if h.Stream != nil {
			jobs.GET("/stream", h.Stream)
		}
		jobs.GET("/:id", h.Job.Get)
		jobs.POST("/:id/retry", h.Job.Retry)
	}

	creds := api.Group("/credentials/:platform")
	{
		creds.PUT("", h.Credential.Connect)
		creds.GET("/status", h.Credential.Status)
		creds.POST("/refresh", h.Credential.Refresh)
		creds.GET("/history", h.Credential.History)
	}

	return router
}
