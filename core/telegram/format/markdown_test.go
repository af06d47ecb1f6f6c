package format

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"a_b", `a\_b`},
		{"1.5 kg (frozen)", `1\.5 kg \(frozen\)`},
		{"order #A-17!", `order \#A\-17\!`},
		{`back\slash`, `back\\slash`},
	}
	for _, tc := range cases {
		got, err := EscapeMarkdown(tc.in, MarkdownV2, "")
		if err != nil {
			t.Errorf("EscapeMarkdown(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEscapeMarkdownV1(t *testing.T) {
	got, err := EscapeMarkdown("a_b *c* [d]", MarkdownV1, "")
	if err != nil {
		t.Fatal(err)
	}
	want := `a\_b \*c\* \[d]`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownUnknownVersion(t *testing.T) {
	if _, err := EscapeMarkdown("x", 3, ""); err == nil {
		t.Error("unsupported version did not error")
	}
}
