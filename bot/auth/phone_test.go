package auth

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+79161234567", "+79161234567"},
		{"89161234567", "+79161234567"},
		{"79161234567", "+79161234567"},
		{"8 916 123-45-67", "+79161234567"},
		{"8 (916) 123 45 67", "+79161234567"},
		{"  +79161234567  ", "+79161234567"},
		{"+14155550123", "+14155550123"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if err != nil {
			t.Errorf("NormalizePhone(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhoneRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not a phone",
		"12345",
		"8916123456",     // too short for the local form
		"891612345678",   // too long for the local form
		"9161234567",     // no country prefix
		"+7916abc4567",   // letters
		"8+79161234567",  // plus not leading
		"++79161234567",  // double plus
	}
	for _, in := range cases {
		if _, err := NormalizePhone(in); !errors.Is(err, ErrBadPhone) {
			t.Errorf("NormalizePhone(%q) = %v, want ErrBadPhone", in, err)
		}
	}
}
