package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter creates and configures the Gin router. metrics may be nil.
func SetupRouter(api *API, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	session := r.Group("/session")
	{
		session.POST("/connect", api.Connect)
		session.POST("/disconnect", api.Disconnect)
		session.POST("/listen/start", api.StartListening)
		session.POST("/listen/stop", api.StopListening)
		session.POST("/text", api.SendText)
		session.POST("/voice", api.SetVoice)
		session.POST("/error/clear", api.ClearError)
		session.GET("/status", api.Status)
		session.GET("/events", api.Events)
	}

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// corsMiddleware handles CORS for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
