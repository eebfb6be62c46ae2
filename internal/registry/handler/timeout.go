package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestTimeout returns a Gin middleware that bounds the request context by
// d, so every store call made while serving the request shares one deadline.
// d <= 0 leaves the context unchanged.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
