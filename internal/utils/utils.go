package utils

import (
	"fmt"
	"strings"
	"unicode"
)

func ShortenString(s string, l int) string {
	if len(s) > l && l != 0 {
		return fmt.Sprintf("%s...", s[:l])
	}
	return s
}

// Slug turns s into a lower case string usable as a file name.
func Slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
