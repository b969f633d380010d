package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"partsledger/internal/apperr"
	"partsledger/internal/cache"
	"partsledger/internal/domain"
	"partsledger/internal/ledger"
	"partsledger/internal/validation"
)

// ApplyTransaction books one stock movement. The product's new stock and
// status and the ledger entry are written together or not at all.
func (s *Service) ApplyTransaction(ctx context.Context, req domain.InventoryTransactionRequest) (domain.TransactionResult, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Type = domain.TransactionType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if req.Type != domain.TxAdjustment {
		req.Direction = ""
	}

	fields := map[string]string{}
	if req.UnitCost != nil {
		checkMoney(fields, "unit_cost", *req.UnitCost, false)
	}
	if err := validation.Merge(validation.Struct(req), fieldsError(fields)); err != nil {
		return domain.TransactionResult{}, err
	}
	if _, err := ledger.Delta(req.Type, req.Direction, req.Quantity); err != nil {
		return domain.TransactionResult{}, err
	}

	var (
		product *domain.Product
		txn     *domain.InventoryTransaction
	)
	err = s.withLock(ctx, cache.ProductKey(req.ProductID), func() error {
		var err error
		product, txn, err = s.repo.MutateProduct(ctx, req.ProductID, func(p *domain.Product) (*domain.InventoryTransaction, error) {
			entry := &domain.InventoryTransaction{
				Type:              req.Type,
				Direction:         req.Direction,
				Quantity:          req.Quantity,
				Reason:            req.Reason,
				SupplierID:        strings.TrimSpace(req.SupplierID),
				BatchNumber:       strings.TrimSpace(req.BatchNumber),
				UnitCost:          req.UnitCost,
				WarehouseLocation: strings.TrimSpace(req.WarehouseLocation),
				Notes:             strings.TrimSpace(req.Notes),
				CreatedBy:         actor.Username,
			}
			if err := ledger.Apply(p, entry); err != nil {
				return nil, err
			}
			return entry, nil
		})
		return err
	})
	if err != nil {
		return domain.TransactionResult{}, err
	}

	s.cacheProduct(ctx, product)
	if ledger.IsLowStock(*product) {
		s.logger.Info("product needs restocking",
			zap.String("product_id", product.ID),
			zap.Int("stock_qty", product.StockQty),
			zap.Int("min_stock_level", product.MinStockLevel))
	}
	s.logAudit(ctx, "inventory_"+strings.ToLower(string(txn.Type)), "inventory_transaction", txn.ID,
		fmt.Sprintf("product=%s,qty=%d,stock=%d->%d", product.ID, txn.Quantity, txn.PreviousStock, txn.NewStock))
	return domain.TransactionResult{Transaction: *txn, Product: *product}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.InventoryTransaction, error) {
	txn, err := s.repo.GetInventoryTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.InventoryTransaction{}, err
	}
	return *txn, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.InventoryTransaction, error) {
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	filter.Type = domain.TransactionType(strings.ToUpper(strings.TrimSpace(string(filter.Type))))
	switch filter.Type {
	case "", domain.TxIn, domain.TxOut, domain.TxAdjustment, domain.TxReturn:
	default:
		return nil, apperr.Field("type", "must be one of: IN, OUT, ADJUSTMENT, RETURN")
	}
	filter.Limit = clampLimit(filter.Limit, 100, 1000)
	return s.repo.ListInventoryTransactions(ctx, filter)
}

// DeleteTransaction removes a ledger entry and undoes exactly the stock change
// it recorded. Entries created by processing a product return stay, since the
// return would otherwise claim a restock that no longer exists.
func (s *Service) DeleteTransaction(ctx context.Context, id string) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	existing, err := s.repo.GetInventoryTransaction(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	var product *domain.Product
	err = s.withLock(ctx, cache.ProductKey(existing.ProductID), func() error {
		var err error
		product, err = s.repo.DeleteInventoryTransaction(ctx, id, func(p *domain.Product, txn domain.InventoryTransaction) error {
			if txn.ReturnID != "" {
				return apperr.New(apperr.KindConflict, "transaction %s was created by return %s and cannot be deleted", txn.ID, txn.ReturnID)
			}
			return ledger.Reverse(p, txn)
		})
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.cacheProduct(ctx, product)
	s.logAudit(ctx, "inventory_transaction_delete", "inventory_transaction", id,
		fmt.Sprintf("product=%s,reverted=%d,stock=%d", product.ID, -existing.Delta(), product.StockQty))
	return *product, nil
}
