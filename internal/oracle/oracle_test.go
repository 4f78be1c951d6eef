package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesOnClassOnly(t *testing.T) {
	e1 := newError(ClassTimeout, "slow", errors.New("boom"))
	e2 := &Error{Class: ClassTimeout}
	assert.True(t, errors.Is(e1, e2))

	e3 := &Error{Class: ClassTransport}
	assert.False(t, errors.Is(e1, e3))
}

func TestError_UnwrapExposesUnderlyingError(t *testing.T) {
	underlying := errors.New("boom")
	e := newError(ClassMalformed, "bad", underlying)
	assert.ErrorIs(t, e, underlying)
}

func TestError_MessageFormat(t *testing.T) {
	e := newError(ClassRateLimited, "status 429", nil)
	assert.Contains(t, e.Error(), "rate_limited")
	assert.Contains(t, e.Error(), "status 429")
}
