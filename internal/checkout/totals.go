package checkout

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edutrack/commerce-backend/internal/cart"
	pkgerrors "github.com/edutrack/commerce-backend/pkg/errors"
)

const moneyPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -moneyPlaces)
)

// LineTotals is the locked-in price snapshot of one order line.
type LineTotals struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

type Totals struct {
	Lines         []LineTotals
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	GrandTotal    decimal.Decimal
}

// TaxRate converts a whole percentage into a multiplier.
func TaxRate(percent int) decimal.Decimal {
	return decimal.NewFromInt(int64(percent)).Div(hundred)
}

// ComputeTotals prices the lines. Tax is charged on each line subtotal; the
// promo is an order amount spread over lines by subtotal so line discounts add
// up to the promo and no line discount is negative or above its subtotal.
func ComputeTotals(lines []cart.Line, promo, taxRate decimal.Decimal) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "no lines to price")
	}
	if promo.IsNegative() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "promo must not be negative")
	}
	promo = promo.Round(moneyPlaces)

	out := Totals{
		Lines:         make([]LineTotals, len(lines)),
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
		GrandTotal:    decimal.Zero,
	}
	for i, line := range lines {
		if line.Quantity <= 0 {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
		subtotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(moneyPlaces)
		out.Lines[i] = LineTotals{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    subtotal,
			Tax:         subtotal.Mul(taxRate).Round(moneyPlaces),
		}
		out.Subtotal = out.Subtotal.Add(subtotal)
	}
	if promo.GreaterThan(out.Subtotal) {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "promo exceeds order subtotal").
			WithDetails(map[string]any{"promo": promo.String(), "subtotal": out.Subtotal.String()})
	}

	discounts := allocatePromo(promo, out.Lines, out.Subtotal)
	for i := range out.Lines {
		line := &out.Lines[i]
		line.Discount = discounts[i]
		line.Total = line.Subtotal.Sub(line.Discount).Add(line.Tax)

		out.DiscountTotal = out.DiscountTotal.Add(line.Discount)
		out.TaxTotal = out.TaxTotal.Add(line.Tax)
		out.GrandTotal = out.GrandTotal.Add(line.Total)
	}
	return out, nil
}

// allocatePromo splits promo by largest remainder: every line gets its share
// rounded down to the cent, then the leftover cents go one each to the lines
// with the biggest truncated fractions, later lines first on ties.
func allocatePromo(promo decimal.Decimal, lines []LineTotals, subtotal decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(lines))
	if promo.IsZero() || subtotal.IsZero() {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}

	remainders := make([]decimal.Decimal, len(lines))
	allocated := decimal.Zero
	for i, line := range lines {
		share := promo.Mul(line.Subtotal).DivRound(subtotal, 16)
		out[i] = share.Truncate(moneyPlaces)
		remainders[i] = share.Sub(out[i])
		allocated = allocated.Add(out[i])
	}

	order := make([]int, len(lines))
	for i := range order {
		order[i] = len(lines) - 1 - i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for _, i := range order {
		if !allocated.LessThan(promo) {
			break
		}
		if out[i].Add(cent).GreaterThan(lines[i].Subtotal) {
			continue
		}
		out[i] = out[i].Add(cent)
		allocated = allocated.Add(cent)
	}
	return out
}
