package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// pinMaxRunes bounds the digit-only passwords treated as PINs.
const pinMaxRunes = 12

// commonPasswords holds lowercased passwords seen at the top of leak lists.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"11111111":    {},
	"letmein":     {},
	"iloveyou":    {},
}

// weakRules run against the trimmed password; any hit rejects it.
var weakRules = []func(string) bool{
	isBlank,
	isRepeatedRune,
	isShortPIN,
	isCommonPassword,
}

// Validate checks a new password against c.Policy and the algorithm's input
// limit. Length is measured in runes; the bcrypt cap is measured in bytes.
// Verify never calls it, so stored credentials outlive policy changes.
func (c Config) Validate(password string) error {
	switch n := utf8.RuneCountInString(password); {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Algorithm == AlgorithmBcrypt && len(password) > bcryptMaxPasswordBytes:
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && isVeryWeak(password) {
		return ErrWeakPassword
	}
	return nil
}

func isVeryWeak(password string) bool {
	s := strings.TrimSpace(password)
	for _, rule := range weakRules {
		if rule(s) {
			return true
		}
	}
	return false
}

func isBlank(s string) bool { return s == "" }

// isRepeatedRune reports "aaaa", "!!!!!!" and the like.
func isRepeatedRune(s string) bool {
	first, _ := utf8.DecodeRuneInString(s)
	return strings.Trim(s, string(first)) == ""
}

func isShortPIN(s string) bool {
	if utf8.RuneCountInString(s) >= pinMaxRunes {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}

func isCommonPassword(s string) bool {
	_, ok := commonPasswords[strings.ToLower(s)]
	return ok
}
