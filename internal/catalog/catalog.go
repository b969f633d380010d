package catalog

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"partsledger/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Discount is the percentage off MRP, rounded to two places. A selling price
// above MRP yields zero rather than a negative discount.
func Discount(mrp decimal.Decimal, sellingPrice decimal.Decimal) decimal.Decimal {
	if !mrp.IsPositive() {
		return decimal.Zero
	}
	pct := mrp.Sub(sellingPrice).Div(mrp).Mul(hundred)
	if pct.IsNegative() {
		return decimal.Zero
	}
	return pct.Round(2)
}

// DuplicateKey identifies products that describe the same item. A barcode,
// when present, decides on its own; otherwise brand, model and name must all
// match after case and whitespace folding.
func DuplicateKey(product domain.Product) string {
	if barcode := fold(product.Barcode); barcode != "" {
		return "barcode:" + barcode
	}
	return "name:" + fold(product.Brand) + "|" + fold(product.Model) + "|" + fold(product.ProductName)
}

func fold(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// FindDuplicates groups products sharing a DuplicateKey. The oldest product
// of each group is kept; ties fall back to id order so the choice is stable.
func FindDuplicates(products []domain.Product) []domain.DuplicateGroup {
	byKey := make(map[string][]domain.Product)
	for _, product := range products {
		key := DuplicateKey(product)
		byKey[key] = append(byKey[key], product)
	}

	groups := make([]domain.DuplicateGroup, 0)
	for key, members := range byKey {
		if len(members) < 2 {
			continue
		}
		slices.SortFunc(members, func(a, b domain.Product) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		groups = append(groups, domain.DuplicateGroup{
			Key:        key,
			Keep:       members[0],
			Duplicates: members[1:],
		})
	}

	slices.SortFunc(groups, func(a, b domain.DuplicateGroup) int {
		return strings.Compare(a.Key, b.Key)
	})
	return groups
}
