package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// CodeDigits is the length of a two-factor code.
const CodeDigits = 6

// GenerateCode produces a uniformly random 6-digit numeric code,
// zero-padded. Uses crypto/rand; never math/rand for secrets.
func GenerateCode() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	n := binary.BigEndian.Uint64(buf[:]) % 1000000
	return fmt.Sprintf("%06d", n), nil
}

// HashCode returns the SHA-256 hex digest of a code. Codes are never stored
// or compared in cleartext.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// CompareCodeHash compares a submitted code against a stored digest in
// constant time.
func CompareCodeHash(storedHash, submittedCode string) bool {
	submitted := HashCode(submittedCode)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(submitted)) == 1
}
