// Package router registers the DocQA HTTP routes.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/handler"
)

// Register mounts the v1 API on the engine.
func Register(engine *gin.Engine, h *handler.DocQAHandler) {
	v1 := engine.Group("/v1")
	{
		v1.POST("/ingest", h.Ingest)
		v1.POST("/query", h.Query)

		v1.POST("/sessions", h.CreateSession)
		v1.GET("/sessions/:id", h.GetSession)
		v1.POST("/sessions/:id/answer", h.Answer)
		v1.POST("/sessions/:id/cancel", h.CancelSession)
		v1.DELETE("/sessions/:id", h.DeleteSession)

		v1.GET("/models", h.ListModels)
		v1.POST("/models/pull", h.PullModel)

		v1.GET("/stats", h.Stats)
	}
}
