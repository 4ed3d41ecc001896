package middleware

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
)

const (
	userIDHeader = "X-User-ID"
	actorKey     = "actor"
)

type UserLoader interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// AuthMiddleware resolves the caller from the X-User-ID header, set by the
// gateway in front of the service, and stores the actor in the gin context.
func AuthMiddleware(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		if raw == "" {
			abort(c, apperror.Unauthorized("user id is required in '"+userIDHeader+"' header"))
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abort(c, apperror.Unauthorized("invalid '"+userIDHeader+"' header"))
			return
		}

		user, err := users.GetUser(c.Request.Context(), id)
		if err != nil {
			appErr := apperror.From(err)
			if appErr.Status == 404 {
				appErr = apperror.Unauthorized("unknown user")
			}
			abort(c, appErr)
			return
		}
		if !user.RoleID.Valid() {
			abort(c, apperror.Forbidden("user has no role"))
			return
		}

		logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.RoleID.String()}).Debug("AuthMiddleware")
		c.Set(actorKey, user.Actor())
		c.Next()
	}
}

// Actor returns the caller stored by AuthMiddleware.
func Actor(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

func abort(c *gin.Context, err *apperror.Error) {
	c.AbortWithStatusJSON(err.Status, err.Body())
}
