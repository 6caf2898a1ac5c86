package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInternal, "internal"},
		{KindConfig, "config"},
		{KindConnection, "connection"},
		{KindPolicy, "policy violation"},
		{KindInvalidParams, "invalid params"},
		{KindMethodNotFound, "method not found"},
		{Kind(99), "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.kind.String())
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("startup: %w", ConnectionError(cause))

	assert.Equal(t, KindConnection, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "startup: failed to connect to database: dial tcp: refused", err.Error())
	assert.Equal(t, KindInternal, KindOf(cause))
}
