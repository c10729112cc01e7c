package book

import "github.com/shopspring/decimal"

// Quantity is a number of copies of one book.
type Quantity struct {
	BookID   int64
	Quantity int
}

// Total sums price*quantity over items using the prices in idx. Items whose
// book is missing from idx are skipped. Totals are computed from current
// catalog prices, so they change when prices do.
func Total(items []Quantity, idx map[int64]Book) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		b, ok := idx[it.BookID]
		if !ok {
			continue
		}
		total = total.Add(b.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}
