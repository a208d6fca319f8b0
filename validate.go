package oauth

import "net/url"

// Syntactic predicates over the character classes of RFC 6749 Appendix A.
// They validate protocol parameters before any model call; none of them
// suspends, and the character-class predicates do not allocate (isValidURI
// and isValidGrantType parse with net/url).

// isVSChar reports whether s is a non-empty sequence of visible ASCII
// characters (VSCHAR = %x20-7E).
func isVSChar(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

// isNChar reports whether s is a non-empty sequence of name characters
// (NCHAR = "-" / "." / "_" / ALPHA / DIGIT).
func isNChar(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_':
		default:
			return false
		}
	}
	return true
}

// isNQChar reports whether s is a non-empty sequence of non-quote characters
// (NQCHAR = %x21 / %x23-5B / %x5D-7E), i.e. VSCHAR without space, '"' and '\'.
func isNQChar(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != 0x21 && !(c >= 0x23 && c <= 0x5B) && !(c >= 0x5D && c <= 0x7E) {
			return false
		}
	}
	return true
}

// isNQSChar reports whether s is a non-empty sequence of NQCHAR or space,
// the character class of the scope parameter.
func isNQSChar(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != 0x20 && c != 0x21 && !(c >= 0x23 && c <= 0x5B) && !(c >= 0x5D && c <= 0x7E) {
			return false
		}
	}
	return true
}

// isUnicodeCharNoCRLF reports whether s is a non-empty sequence of
// UNICODECHARNOCRLF (%x09 / %x20-7E / %x80-D7FF / %xE000-FFFD /
// %x10000-10FFFF), the character class of username and password.
func isUnicodeCharNoCRLF(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r == 0x09:
		case r >= 0x20 && r <= 0x7E:
		case r >= 0x80 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

// isValidURI reports whether s parses as an absolute URI.
func isValidURI(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs()
}

// isValidGrantType reports whether s is syntactically a grant type name:
// either a registered name (NCHAR sequence) or an absolute URI for extension
// grants.
func isValidGrantType(s string) bool {
	return isNChar(s) || isValidURI(s)
}
