package normalize

import (
	"strings"
	"testing"
	"unicode"
)

func TestMemo(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Empty", "", ""},
		{"DigitsRemoved", "PAGO 123456 FERREYROS", "PAGO FERREYROS"},
		{"DigitsInsideWord", "CTA123456 TRANSFERENCIA", "CTA TRANSFERENCIA"},
		{"PunctuationCollapsed", "PAGO-SERVICIO/LUZ...SUR", "PAGO SERVICIO LUZ SUR"},
		{"Uppercased", "pago proveedor volvo", "PAGO PROVEEDOR VOLVO"},
		{"RedundantWhitespace", "  PAGO   \t PROVEEDOR  ", "PAGO PROVEEDOR"},
		{"OnlyDigitsAndSymbols", "0123-4567/89", ""},
		{"AccentedLetters", "depósito agencia juliaca", "DEPÓSITO AGENCIA JULIACA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Memo(tt.in)
			if got != tt.want {
				t.Errorf("Memo(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMemoNoDigitsOrPunctuation(t *testing.T) {
	inputs := []string{
		"REF#99281 PAGO: 'FERREYROS' (CUOTA 3/12)",
		"yape 0.50 a *** 987654321",
		"!!!",
	}

	for _, in := range inputs {
		out := Memo(in)
		for _, r := range out {
			if unicode.IsDigit(r) {
				t.Errorf("Memo(%q) = %q contains digit %q", in, out, r)
			}
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				t.Errorf("Memo(%q) = %q contains punctuation %q", in, out, r)
			}
		}
		if strings.Contains(out, "  ") {
			t.Errorf("Memo(%q) = %q contains double space", in, out)
		}
	}
}

func TestMemoIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"PAGO 123456 FERREYROS",
		"pago-servicio/luz",
		"RETIRO CAJERO 004512 LIMA",
	}

	for _, in := range inputs {
		once := Memo(in)
		twice := Memo(once)
		if once != twice {
			t.Errorf("Memo not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("PAGO PROVEEDOR FERREYROS")
	if len(got) != 3 || got[2] != "FERREYROS" {
		t.Errorf("unexpected tokens: %v", got)
	}

	if toks := Tokens(""); len(toks) != 0 {
		t.Errorf("expected no tokens for empty memo, got %v", toks)
	}
}
