package cache

import (
	"errors"
	"strings"
)

var errBadPattern = errors.New("unterminated character class")

// EscapeGlob quotes the glob metacharacters in s so it matches itself literally.
func EscapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// validateGlob rejects patterns with an unterminated character class.
func validateGlob(pattern string) error {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case '[':
			end := classEnd(pattern[i:])
			if end < 0 {
				return errBadPattern
			}
			i += end
		}
	}
	return nil
}

// matchGlob matches key against pattern with Redis SCAN MATCH semantics:
// '*' and '?' match any byte including '/', '[...]' is a class with ranges and
// a leading '^' for negation, and '\' escapes the next byte.
func matchGlob(pattern, key string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchGlob(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case '?':
			if key == "" {
				return false
			}
			pattern, key = pattern[1:], key[1:]
		case '[':
			end := classEnd(pattern)
			if end < 0 || key == "" || !matchClass(pattern[1:end], key[0]) {
				return false
			}
			pattern, key = pattern[end+1:], key[1:]
		default:
			if pattern[0] == '\\' && len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if key == "" || pattern[0] != key[0] {
				return false
			}
			pattern, key = pattern[1:], key[1:]
		}
	}
	return key == ""
}

// classEnd returns the index of the ']' closing the class that pattern opens, or -1.
func classEnd(pattern string) int {
	for i := 1; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case ']':
			return i
		}
	}
	return -1
}

func matchClass(class string, c byte) bool {
	negate := strings.HasPrefix(class, "^")
	if negate {
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); {
		switch {
		case class[i] == '\\' && i+1 < len(class):
			matched = matched || class[i+1] == c
			i += 2
		case i+2 < len(class) && class[i+1] == '-':
			lo, hi := class[i], class[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			matched = matched || (c >= lo && c <= hi)
			i += 3
		default:
			matched = matched || class[i] == c
			i++
		}
	}
	return matched != negate
}
