package util

import (
	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD normalization. Passphrases are normalized before
// they leave the client so the same keystrokes authenticate from any
// platform's input method.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
