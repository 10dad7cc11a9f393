package idempotency

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"3f2c9a1e-5b7d-4c2a-9e1f-0a8b6c4d2e7f", true},
		{"checkout:42", true},
		{"", false},
		{strings.Repeat("k", MaxKeyLength), true},
		{strings.Repeat("k", MaxKeyLength+1), false},
		{"line\nbreak", false},
		{"clé", false},
	}
	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if tt.valid {
			assert.NoError(t, err, tt.key)
		} else {
			assert.ErrorIs(t, err, ErrInvalidKey, tt.key)
		}
	}
}

func TestNewStore_PendingTTL(t *testing.T) {
	s := NewStore(nil, "lens", 24*time.Hour)
	assert.Equal(t, DefaultPendingTTL, s.pendingTTL)
	assert.Equal(t, 24*time.Hour, s.ttl)

	short := NewStore(nil, "lens", 10*time.Second)
	assert.Equal(t, 10*time.Second, short.pendingTTL, "reservations never outlive completed keys")

	custom := s.WithPendingTTL(5 * time.Second)
	assert.Equal(t, 5*time.Second, custom.pendingTTL)
	assert.Equal(t, DefaultPendingTTL, s.pendingTTL)
}
