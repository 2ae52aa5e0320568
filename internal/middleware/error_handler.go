package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/tuan304201/chat/pkg/errors"
)

// ErrorHandler maps errors attached via c.Error to a status derived
// from their classification. Handlers that respond directly bypass it.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			statusCode := apperrors.HTTPStatusFromError(err.Err)
			c.JSON(statusCode, gin.H{
				"error": err.Error(),
				"code":  apperrors.CodeOf(err.Err),
			})
		}
	}
}
