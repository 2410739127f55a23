package appeal

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"
)

// NumberPattern matches appeal numbers such as APL-20260601-7QX2KD.
var NumberPattern = regexp.MustCompile(`^APL-\d{8}-[A-Z0-9]{6}$`)

const (
	numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numberSuffix   = 6
	// largest multiple of len(numberAlphabet) that fits in a byte
	numberCutoff = 252
)

// NewNumber builds an appeal number from the UTC date of now and six
// uniformly random base-36 characters.
func NewNumber(now time.Time) (string, error) {
	suffix := make([]byte, 0, numberSuffix)
	buf := make([]byte, 16)
	for len(suffix) < numberSuffix {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= numberCutoff {
				continue
			}
			suffix = append(suffix, numberAlphabet[int(b)%len(numberAlphabet)])
			if len(suffix) == numberSuffix {
				break
			}
		}
	}
	return fmt.Sprintf("APL-%s-%s", now.UTC().Format("20060102"), suffix), nil
}
