package checkout

import (
	"errors"
	"testing"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"R$ 49,90", "49.9"},
		{"R$49,90", "49.9"},
		{"  R$ 1.299,00 ", "1299"},
		{"R$ 0,99", "0.99"},
		{"59.90", "59.9"},
		{"120", "120"},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.label)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.label, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.label, tt.want, got)
		}
	}
}

func TestParsePrice_Invalid(t *testing.T) {
	for _, label := range []string{"", "R$", "grátis", "R$ 0,00", "R$ -5,00"} {
		if _, err := ParsePrice(label); !errors.Is(err, ErrInvalidItem) {
			t.Errorf("%q: expected ErrInvalidItem, got %v", label, err)
		}
	}
}
