package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf_HTTPError(t *testing.T) {
	code, message := StatusOf(NotFound("File Not Found Or Access Denied"))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "File Not Found Or Access Denied", message)
}

func TestStatusOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", Forbidden("Forbidden"))
	code, message := StatusOf(err)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Forbidden", message)
}

func TestStatusOf_PlainError(t *testing.T) {
	code, _ := StatusOf(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestHelpers_Statuses(t *testing.T) {
	cases := []struct {
		err  *HTTPError
		want int
	}{
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{BadRequest("x"), http.StatusBadRequest},
		{NotFound("x"), http.StatusNotFound},
		{Conflict("x"), http.StatusConflict},
		{InternalError("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.Status)
		assert.Equal(t, "x", tc.err.Message)
	}
}
