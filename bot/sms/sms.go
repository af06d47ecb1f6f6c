// Package sms sends one-time authentication codes to staff phones.
package sms

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// Sender delivers a one-time code to a phone number.
type Sender interface {
	SendCode(ctx context.Context, phone string, code int) error
}

// GenerateCode returns a cryptographically random 4-digit code in
// [1000, 9999]. Codes never start with zero so the string form is always
// four characters.
func GenerateCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return 0, fmt.Errorf("generate code: %w", err)
	}
	return int(n.Int64()) + 1000, nil
}
