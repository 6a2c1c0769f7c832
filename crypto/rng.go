package crypto

import (
	"crypto/rand"
	"fmt"
)

// UnpredictableNumber returns n cryptographically random bytes, used
// by the terminal side of the transaction to fill tag 9F37. Sourced
// from crypto/rand.
func UnpredictableNumber(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return buf, nil
}
