package pricing

import (
	"context"
	"strings"
)

// PromoBook resolves promotion codes, case-insensitively.
type PromoBook struct {
	codes map[string]int
}

func NewPromoBook(codes map[string]int) *PromoBook {
	book := &PromoBook{codes: make(map[string]int, len(codes))}
	for code, pct := range codes {
		book.codes[strings.ToUpper(strings.TrimSpace(code))] = pct
	}
	return book
}

func (b *PromoBook) Lookup(_ context.Context, code string) (Promotion, error) {
	key := strings.ToUpper(strings.TrimSpace(code))
	pct, ok := b.codes[key]
	if !ok {
		return Promotion{}, ErrUnknownPromotion
	}
	return Promotion{Code: key, Percent: pct}, nil
}
