package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrBadPhone indicates the input cannot be normalized to E.164.
var ErrBadPhone = errors.New("invalid phone number")

// NormalizePhone converts user input to canonical E.164 with the leading
// plus, the form the staff directory stores. Russian local forms
// 8XXXXXXXXXX and 7XXXXXXXXXX map to +7XXXXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
			// separators are tolerated
		default:
			return "", ErrBadPhone
		}
	}

	p := b.String()
	switch {
	case strings.HasPrefix(p, "+"):
	case len(p) == 11 && p[0] == '8':
		p = "+7" + p[1:]
	case len(p) == 11 && p[0] == '7':
		p = "+" + p
	default:
		return "", ErrBadPhone
	}

	if err := validate.Var(p, "e164"); err != nil {
		return "", ErrBadPhone
	}
	return p, nil
}
