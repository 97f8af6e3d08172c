package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
// middlewares 只作用于业务路由，健康检查与指标不受影响
func RegisterRoutes(router *gin.Engine, h *Handlers, middlewares ...gin.HandlerFunc) {
	api := router.Group("/api", middlewares...)
	registerRAGRoutes(api, h)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1", middlewares...)
	registerRAGRoutes(apiV1, h)
}

// registerRAGRoutes 摄取、检索、问答与任务查询
func registerRAGRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	ingest := apiGroup.Group("/ingest")
	{
		ingest.POST("", h.RAG.Ingest)
		ingest.POST("/batch", h.RAG.IngestBatch)
	}

	search := apiGroup.Group("/search")
	{
		search.POST("", h.RAG.Search)
		search.POST("/async", h.RAG.SearchAsync)
	}

	ragGroup := apiGroup.Group("/rag")
	{
		ragGroup.POST("/query", h.RAG.Query)
		ragGroup.POST("/answer", h.RAG.Answer)
	}

	apiGroup.GET("/jobs/:task_id", h.RAG.GetJob)
	apiGroup.GET("/documents/:id", h.RAG.GetDocument)
	apiGroup.GET("/sessions/:session_id/history", h.RAG.GetHistory)
}
