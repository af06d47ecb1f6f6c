package sms

import "testing"

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatal(err)
		}
		if code < 1000 || code > 9999 {
			t.Fatalf("code %d out of [1000, 9999]", code)
		}
	}
}
