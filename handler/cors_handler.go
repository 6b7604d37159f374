package handler

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

type CorsHandler struct {
	allowedOrigins []string
}

// NewCorsHandler allows every origin when none are given.
func NewCorsHandler(allowedOrigins ...string) *CorsHandler {
	return &CorsHandler{allowedOrigins: allowedOrigins}
}

func (h *CorsHandler) CorsMiddleware(c *gin.Context) {
	origin := "*"
	if len(h.allowedOrigins) > 0 {
		reqOrigin := c.GetHeader("Origin")
		if !slices.Contains(h.allowedOrigins, reqOrigin) {
			reqOrigin = h.allowedOrigins[0]
		}
		origin = reqOrigin
		c.Writer.Header().Add("Vary", "Origin")
	}
	c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.Next()
}
