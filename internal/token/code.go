package token

import (
	"crypto/rand"
	"fmt"
)

// alphabet omits 0/O and 1/I so codes can be typed from a projector.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeFunc produces a candidate code.
type CodeFunc func() (string, error)

// RandomCode returns a CodeFunc yielding n-character codes from a 32-symbol
// alphabet using crypto/rand.
func RandomCode(n int) CodeFunc {
	if n <= 0 {
		n = 8
	}
	return func() (string, error) {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for i, b := range buf {
			buf[i] = alphabet[int(b)%len(alphabet)]
		}
		return string(buf), nil
	}
}
