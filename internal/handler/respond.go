package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tuan304201/chat/internal/domain"
	apperrors "github.com/tuan304201/chat/pkg/errors"
)

// actorKey is the context key set by the auth middleware.
const actorKey = "actor"

func currentActor(c *gin.Context) domain.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(domain.Actor)
	return actor
}

func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatusFromError(err)
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg, "code": apperrors.CodeOf(err)})
}
