package asm

import (
	"strconv"
	"strings"
)

// ParseInt parses an integer literal. Hexadecimal is written 0x10, 0X10,
// $10 or 10h; anything else is decimal. A sign is accepted after the base
// marker. The second result is false when s is not a literal.
func ParseInt(s string) (int64, bool) {
	digits, base := s, 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		digits, base = s[2:], 16
	case strings.HasPrefix(s, "$"):
		digits, base = s[1:], 16
	case strings.HasSuffix(s, "h"):
		digits, base = s[:len(s)-1], 16
	}
	v, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// looksNumeric reports whether a bare token can only have been meant as a
// number: it starts with a decimal digit, '$', or a sign followed by a digit.
func looksNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	if c == '-' || c == '+' {
		if len(tok) == 1 {
			return false
		}
		c = tok[1]
	}
	return c == '$' || (c >= '0' && c <= '9')
}
