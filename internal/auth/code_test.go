package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, CodeDigits)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
		seen[code] = true
	}
	// 50 draws from a million values colliding down to a handful would
	// mean the generator is broken.
	assert.Greater(t, len(seen), 40)
}

func TestCompareCodeHash(t *testing.T) {
	hash := HashCode("123456")

	assert.True(t, CompareCodeHash(hash, "123456"))
	assert.False(t, CompareCodeHash(hash, "123457"))
	assert.False(t, CompareCodeHash(hash, ""))
	assert.False(t, CompareCodeHash("", "123456"))
}

func TestHashCode_IsDeterministicDigest(t *testing.T) {
	assert.Equal(t, HashCode("000000"), HashCode("000000"))
	assert.NotEqual(t, HashCode("000000"), HashCode("000001"))
	assert.Len(t, HashCode("000000"), 64)
	assert.NotContains(t, HashCode("123456"), "123456")
}
