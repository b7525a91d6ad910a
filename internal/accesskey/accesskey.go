// Package accesskey generates the opaque keys handed to buyers for
// retrieving their purchase or subscription.
package accesskey

import (
	"crypto/rand"
	"strings"
)

const (
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyLength = 20
	groupSize = 5
)

// New returns a fresh access key: 20 uppercase-alphanumeric characters in
// hyphen-separated groups of 5, e.g. "A1B2C-3D4E5-F6G7H-8I9J0".
func New() string {
	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}

	var b strings.Builder
	b.Grow(keyLength + keyLength/groupSize - 1)
	for i, c := range buf {
		if i > 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(alphabet[int(c)%len(alphabet)])
	}
	return b.String()
}

// Valid reports whether s has the shape produced by New.
func Valid(s string) bool {
	groups := strings.Split(s, "-")
	if len(groups) != keyLength/groupSize {
		return false
	}
	for _, g := range groups {
		if len(g) != groupSize {
			return false
		}
		for i := 0; i < len(g); i++ {
			if !strings.ContainsRune(alphabet, rune(g[i])) {
				return false
			}
		}
	}
	return true
}
