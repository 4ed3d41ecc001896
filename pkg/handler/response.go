package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"transfer_requests_back/models"
	"transfer_requests_back/pkg/apperror"
	"transfer_requests_back/pkg/middleware"
)

func newErrorResponse(c *gin.Context, err error) {
	appErr := apperror.From(err)
	entry := logrus.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
		"status": appErr.Status,
	})
	if id := c.Param("id"); id != "" {
		entry = entry.WithField("transfer_request", id)
	}
	if appErr.Status >= http.StatusInternalServerError {
		entry.WithError(appErr.Err).Error(appErr.Message)
	} else {
		entry.Info(appErr.Error())
	}
	c.AbortWithStatusJSON(appErr.Status, appErr.Body())
}

func wrapOkJSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// bind decodes the JSON body into obj and renders validator failures as
// field errors keyed by their json names.
func bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		newErrorResponse(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) *apperror.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperror.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperror.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return apperror.Validation("validation failed", fields...)
	}
	return apperror.Validation("invalid request body: " + err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json tag.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
}

func actor(c *gin.Context) (models.Actor, bool) {
	a, ok := middleware.Actor(c)
	if !ok {
		newErrorResponse(c, apperror.Unauthorized("not authenticated"))
	}
	return a, ok
}
