// Package ledger holds the stock arithmetic shared by every repository:
// status derivation, the signed delta of a movement, and its reversal.
// Nothing here touches storage; callers run these inside their own atomic
// write so the product row and the ledger entry always agree.
package ledger

import (
	"fmt"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
)

// DeriveStatus is the only place stock status is computed. A discontinued
// product keeps its status whatever its stock.
func DeriveStatus(stockQty int, minStockLevel int, current domain.ProductStatus) domain.ProductStatus {
	if current == domain.StatusDiscontinued {
		return current
	}
	switch {
	case stockQty <= 0:
		return domain.StatusOutOfStock
	case stockQty <= minStockLevel:
		return domain.StatusLowStock
	default:
		return domain.StatusInStock
	}
}

// Refresh recomputes product.Status from its current stock.
func Refresh(product *domain.Product) {
	product.Status = DeriveStatus(product.StockQty, product.MinStockLevel, product.Status)
}

// IsLowStock reports whether a product belongs in the restocking list.
func IsLowStock(product domain.Product) bool {
	return product.Status == domain.StatusLowStock || product.Status == domain.StatusOutOfStock
}

// Delta returns the signed stock change of a movement. ADJUSTMENT is a
// directed delta: the direction picks the sign and quantity is the size.
func Delta(txType domain.TransactionType, direction domain.AdjustmentDirection, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, apperr.Field("quantity", "must be greater than 0")
	}

	switch txType {
	case domain.TxIn, domain.TxReturn:
		return quantity, nil
	case domain.TxOut:
		return -quantity, nil
	case domain.TxAdjustment:
		switch direction {
		case domain.AdjustIncrease:
			return quantity, nil
		case domain.AdjustDecrease:
			return -quantity, nil
		case "":
			return 0, apperr.Field("direction", "is required for ADJUSTMENT")
		default:
			return 0, apperr.Field("direction", "must be one of: increase, decrease")
		}
	default:
		return 0, apperr.Field("type", "must be one of: IN, OUT, ADJUSTMENT, RETURN")
	}
}

// Apply moves product stock by txn and fills the transaction's stock
// snapshot. On error neither value is modified.
func Apply(product *domain.Product, txn *domain.InventoryTransaction) error {
	delta, err := Delta(txn.Type, txn.Direction, txn.Quantity)
	if err != nil {
		return err
	}

	previous := product.StockQty
	next := previous + delta
	if next < 0 {
		return apperr.New(apperr.KindOutOfStock, "product %s has %d in stock, cannot remove %d", product.ID, previous, -delta)
	}

	product.StockQty = next
	Refresh(product)

	txn.ProductID = product.ID
	txn.PreviousStock = previous
	txn.NewStock = next
	return nil
}

// Reverse undoes the stock effect recorded on txn. The inverse comes from the
// stored snapshot, never from the current type rules, so old entries reverse
// exactly what they did.
func Reverse(product *domain.Product, txn domain.InventoryTransaction) error {
	if txn.ProductID != product.ID {
		return fmt.Errorf("transaction %s belongs to product %s, not %s", txn.ID, txn.ProductID, product.ID)
	}

	next := product.StockQty - txn.Delta()
	if next < 0 {
		return apperr.New(apperr.KindConflict, "reversing transaction %s would leave product %s with %d in stock", txn.ID, product.ID, next)
	}

	product.StockQty = next
	Refresh(product)
	return nil
}
