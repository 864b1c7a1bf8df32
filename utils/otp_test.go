package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateOTP()
		require.NoError(t, err)
		assert.Len(t, code, 5)
		assert.Regexp(t, `^[1-9][0-9]{4}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes must vary")
}

func TestValidEmail(t *testing.T) {
	valid := []string{"reader@example.com", "a.b+c@mail.example.org"}
	invalid := []string{"", "reader", "reader@", "@example.com", "a b@example.com"}
	for _, e := range valid {
		assert.True(t, ValidEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, ValidEmail(e), e)
	}
}
