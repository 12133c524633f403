package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeStoreError, "load bot")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, HasCode(err, CodeStoreError))
	assert.Equal(t, CodeStoreError, CodeOf(err))
	assert.Equal(t, "load bot", MessageOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeStoreError, "noop"))
}

func TestHasCodeThroughLayers(t *testing.T) {
	inner := New(CodeConflict, "stage changed")
	outer := fmt.Errorf("apply: %w", inner)

	assert.True(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.Equal(t, CodeConflict, CodeOf(outer))
}

func TestHasCodeNestedDomainErrors(t *testing.T) {
	err := Wrap(New(CodeTimeout, "store deadline"), CodeStoreError, "find candidate")

	assert.True(t, HasCode(err, CodeStoreError))
	assert.True(t, HasCode(err, CodeTimeout))
	assert.Equal(t, CodeStoreError, CodeOf(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
}
