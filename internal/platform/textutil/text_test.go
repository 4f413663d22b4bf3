package textutil

import "testing"

func TestFoldKey(t *testing.T) {
	t.Run("folds case and trims", func(t *testing.T) {
		if got := FoldKey("  Számítógépek "); got != "számítógépek" {
			t.Fatalf("unexpected fold %q", got)
		}
	})

	t.Run("equal fold across scripts", func(t *testing.T) {
		if !EqualFold("STRASSE", "strasse") {
			t.Fatalf("expected equal fold")
		}
		if EqualFold("laptop", "desktop") {
			t.Fatalf("expected different names to differ")
		}
	})

	t.Run("contains fold", func(t *testing.T) {
		if !ContainsFold("Gaming Laptop i7 RTX4070", "laptop") {
			t.Fatalf("expected fragment match")
		}
		if ContainsFold("Gaming Laptop", "mouse") {
			t.Fatalf("unexpected fragment match")
		}
	})
}

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"  plain  ":                         "plain",
		"<b>Bold</b> name":                  "Bold name",
		`MacBook Pro 14"`:                   `MacBook Pro 14"`,
		"<script>alert(1)</script>Keyboard": "Keyboard",
		"Cherry & Co":                       "Cherry & Co",
	}
	for input, want := range cases {
		if got := PlainText(input); got != want {
			t.Errorf("PlainText(%q) = %q, want %q", input, got, want)
		}
	}
}
