package apperror

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestFromKeepsAppErrors(t *testing.T) {
	wrapped := errors.Wrap(Forbidden("nope"), "review")
	got := From(wrapped)
	assert.Equal(t, http.StatusForbidden, got.Status)
	assert.Equal(t, "nope", got.Message)
}

func TestFromHidesUnknownErrors(t *testing.T) {
	got := From(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, Payload{Status: 500, Message: "internal server error"}, got.Body().Error)
}

func TestBodyWithFields(t *testing.T) {
	body := Field("amount", "must be greater than zero").Body()
	assert.Equal(t, Payload{
		Status: http.StatusBadRequest,
		Errors: []FieldError{{Field: "amount", Message: "must be greater than zero"}},
	}, body.Error)
}

func TestUpstreamIsRetryable(t *testing.T) {
	got := From(errors.Wrap(Upstream("storage unavailable, try again later", errors.New("bad connection")), "list"))
	assert.Equal(t, http.StatusServiceUnavailable, got.Status)
	assert.Equal(t, Payload{Status: 503, Message: "storage unavailable, try again later"}, got.Body().Error)
}
