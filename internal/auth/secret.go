package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// minTokenEntropyBytes is the floor on random bytes drawn for a token,
// regardless of the requested length.
const minTokenEntropyBytes = 16

// GenerateToken returns a hex token of exactly length characters drawn from
// crypto/rand. At least 16 random bytes are read before truncation.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}

	byteLength := (length + 1) / 2
	if byteLength < minTokenEntropyBytes {
		byteLength = minTokenEntropyBytes
	}

	randomBytes := make([]byte, byteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return hex.EncodeToString(randomBytes)[:length], nil
}

// GenerateCode returns a decimal code of exactly length digits, uniform over
// [0, 10^length) and left-padded with zeros.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}

	digits := n.String()
	return strings.Repeat("0", length-len(digits)) + digits, nil
}
