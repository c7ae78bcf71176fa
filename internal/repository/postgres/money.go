package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cassiomorais/paygate/internal/domain/payment"
)

// amountToNumeric renders a major-unit amount for a NUMERIC(12,2) column.
func amountToNumeric(amount float64) string {
	return centsToNumericString(payment.MinorUnits(amount))
}

// numericToAmount reads a NUMERIC column back into a major-unit amount.
func numericToAmount(s string) (float64, error) {
	cents, err := numericStringToCents(s)
	if err != nil {
		return 0, err
	}
	return float64(cents) / 100, nil
}

func numericStringToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}

	return int64(math.Round(f * 100)), nil
}

func centsToNumericString(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	whole := cents / 100
	frac := cents % 100

	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}
