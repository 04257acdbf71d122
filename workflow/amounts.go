package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// formatAmount renders a money amount for outbound messages. Guaraní has no
// cents and uses dot thousands separators.
func formatAmount(amount decimal.Decimal, currency string) string {
	switch currency {
	case "PYG":
		return "₲" + formatWithDots(amount.IntPart())
	case "USD":
		f, _ := amount.Float64()
		return fmt.Sprintf("$%.2f", f)
	default:
		f, _ := amount.Float64()
		return fmt.Sprintf("%.2f %s", f, currency)
	}
}

func formatWithDots(n int64) string {
	if n < 0 {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, ch := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, ch)
	}
	return string(out)
}
