package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/rag-be/metrics"
	"github.com/tieubaoca/rag-be/middleware"
	"github.com/tieubaoca/rag-be/types"
)

type RouterOptions struct {
	JWTSecret          string
	AllowedOrigins     []string
	MaxMultipartMemory int64
}

// NewRouter serves the RAG API under /api/v1/rag behind bearer auth, plus
// unauthenticated /health and /metrics.
func NewRouter(rag *RAGHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.Metrics())
	if opts.MaxMultipartMemory > 0 {
		router.MaxMultipartMemory = opts.MaxMultipartMemory
	}

	corsHandler := NewCorsHandler(opts.AllowedOrigins...)
	router.Use(corsHandler.CorsMiddleware)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, types.DataResponse{Status: true, Message: "OK"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiV1 := router.Group("/api/v1/rag")
	apiV1.Use(middleware.AuthMiddleware(opts.JWTSecret))
	rag.Register(apiV1)

	return router
}
