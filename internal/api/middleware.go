package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBodySize is the default request body limit (1MB). Management requests
// are small; anything larger is a mistake or an attack.
const MaxBodySize = 1 << 20

// SecurityHeaders adds response headers appropriate for a JSON API that
// reports security state.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

// BodySizeLimit rejects oversized request bodies. The reader is also capped
// so a client lying about Content-Length gains nothing.
func BodySizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("Request body too large. Maximum size is %d bytes.", maxSize),
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
