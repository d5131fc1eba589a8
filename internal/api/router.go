package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the handlers to their routes. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) *gin.Engine {
	r := gin.Default()

	// Enable CORS for browser clients
	r.Use(corsMiddleware())

	r.GET("/health", h.HealthCheck)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	apiGroup := r.Group("/api")
	{
		// Search sessions
		searchGroup := apiGroup.Group("/search")
		{
			searchGroup.POST("/local", h.LocalSearch)
			searchGroup.POST("/external", h.ExternalSearch)
			searchGroup.GET("/sessions/:id", h.GetSession)
			searchGroup.GET("/sessions/:id/items/:itemId", h.GetSessionItem)

			// Paging jobs
			searchGroup.POST("/jobs", h.StartJob)
			searchGroup.GET("/jobs/:id", h.GetJob)
			searchGroup.DELETE("/jobs/:id", h.CancelJob)
			searchGroup.GET("/jobs/:id/items/:itemId", h.GetJobItem)
		}

		// Imports
		apiGroup.POST("/import/author", h.ImportAuthor)
		apiGroup.POST("/import/book", h.ImportBook)

		apiGroup.POST("/coverscan", h.ScanCover)

		// Library
		apiGroup.GET("/authors", h.ListAuthors)
		apiGroup.POST("/authors", h.CreateAuthor)
		apiGroup.GET("/authors/:id", h.GetAuthor)
		apiGroup.GET("/books", h.ListBooks)
		apiGroup.GET("/books/:id", h.GetBook)
		apiGroup.DELETE("/books/:id", h.DeleteBook)
		apiGroup.GET("/lists", h.ListLists)
		apiGroup.POST("/lists", h.CreateList)
		apiGroup.GET("/tags", h.ListTags)
		apiGroup.POST("/tags", h.CreateTag)

		// Settings
		apiGroup.GET("/settings/keys", h.ListAPIKeys)
		apiGroup.PUT("/settings/keys/:provider", h.SetAPIKey)
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
