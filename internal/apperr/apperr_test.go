package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorfKeepsSentinelIdentity(t *testing.T) {
	err := Errorf(ErrInsufficientStock, "product %s: need %d, have %d", "p1", 3, 1)

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrAlreadyBound))
	assert.Equal(t, "product p1: need 3, have 1", err.Error())

	wrapped := fmt.Errorf("create order: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "INSUFFICIENT_STOCK", CodeOf(wrapped))
}

func TestWrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(ErrGatewayUnavailable, cause, "status query for %s", "T-1")

	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "T-1")
	assert.Contains(t, err.Error(), "timeout")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad qty"), http.StatusBadRequest},
		{ErrInvalidToken, http.StatusBadRequest},
		{ErrTransactionNotFound, http.StatusNotFound},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrRefundExceedsBalance, http.StatusConflict},
		{ErrGatewayAuthFailed, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
	assert.Equal(t, "INTERNAL", CodeOf(errors.New("boom")))
}
