package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice reads a Brazilian price label such as "R$ 49,90" or
// "R$ 1.299,00". A plain "49.90" is accepted as well.
func ParsePrice(label string) (decimal.Decimal, error) {
	s := strings.TrimSpace(label)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)

	if strings.Contains(s, ",") {
		// Dots are thousands separators when a decimal comma is present.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %q", ErrInvalidItem, label)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price %q must be positive", ErrInvalidItem, label)
	}
	return price.Round(2), nil
}
