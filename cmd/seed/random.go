package main

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
)

// randomStock generates n receipts of fake products. Roughly a third of
// them track expiry, some already expired.
func randomStock(f *gofakeit.Faker, n int) []demoProduct {
	out := make([]demoProduct, 0, n)
	for range n {
		p := demoProduct{
			name:       f.ProductName(),
			category:   f.ProductCategory(),
			quantity:   f.Number(1, 25),
			price:      fmt.Sprintf("%.2f", f.Price(0.5, 250)),
			receivedAt: f.Number(0, 90),
		}
		if f.Number(0, 2) == 0 {
			p.expiresIn = f.Number(-10, 120)
			if p.expiresIn == 0 {
				p.expiresIn = 1
			}
		}
		out = append(out, p)
	}
	return out
}
