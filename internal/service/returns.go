package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"partsledger/internal/apperr"
	"partsledger/internal/cache"
	"partsledger/internal/domain"
	"partsledger/internal/ledger"
	"partsledger/internal/validation"
)

const returnRestockReason = "product return"

func (s *Service) CreateReturn(ctx context.Context, req domain.ProductReturnCreateRequest) (domain.ProductReturn, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.ProductReturn{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Condition = domain.ReturnCondition(strings.ToLower(strings.TrimSpace(string(req.Condition))))

	refund := decimal.Zero
	fields := map[string]string{}
	if req.RefundAmount != nil {
		checkMoney(fields, "refund_amount", *req.RefundAmount, false)
		refund = domain.RoundMoney(*req.RefundAmount)
	}
	if err := validation.Merge(validation.Struct(req), fieldsError(fields)); err != nil {
		return domain.ProductReturn{}, err
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
			return domain.ProductReturn{}, err
		}
	}

	returnDate := time.Now().UTC()
	if req.ReturnDate != nil && !req.ReturnDate.IsZero() {
		returnDate = req.ReturnDate.UTC()
	}

	created, err := s.repo.CreateReturn(ctx, domain.ProductReturn{
		ProductID:    req.ProductID,
		CustomerID:   req.CustomerID,
		OrderID:      req.OrderID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Condition:    req.Condition,
		RefundAmount: refund,
		Restockable:  req.Restockable,
		Status:       domain.ReturnPending,
		ReturnDate:   returnDate,
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.ProductReturn{}, err
	}

	s.logAudit(ctx, "return_create", "product_return", created.ID,
		fmt.Sprintf("product=%s,qty=%d,by=%s", created.ProductID, created.Quantity, actor.Username))
	return *created, nil
}

func (s *Service) GetReturn(ctx context.Context, id string) (domain.ProductReturn, error) {
	ret, err := s.repo.GetReturn(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ProductReturn{}, err
	}
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]domain.ProductReturn, error) {
	filter.ProductID = strings.TrimSpace(filter.ProductID)
	filter.Status = domain.ReturnStatus(strings.ToLower(strings.TrimSpace(string(filter.Status))))
	switch filter.Status {
	case "", domain.ReturnPending, domain.ReturnApproved, domain.ReturnRejected, domain.ReturnProcessed:
	default:
		return nil, apperr.Field("status", "must be one of: pending, approved, rejected, processed")
	}
	filter.Limit = clampLimit(filter.Limit, 100, 1000)
	return s.repo.ListReturns(ctx, filter)
}

// ProcessReturn settles a pending return. Processing a restockable return puts
// the quantity back on the shelf through a RETURN ledger entry committed with
// the status change; rejecting it leaves stock alone.
func (s *Service) ProcessReturn(ctx context.Context, id string, req domain.ProcessReturnRequest) (domain.ReturnResult, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.ReturnResult{}, err
	}

	id = strings.TrimSpace(id)
	req.Status = domain.ReturnStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if err := validation.Struct(req); err != nil {
		return domain.ReturnResult{}, err
	}

	existing, err := s.repo.GetReturn(ctx, id)
	if err != nil {
		return domain.ReturnResult{}, err
	}

	var (
		ret     *domain.ProductReturn
		product *domain.Product
		txn     *domain.InventoryTransaction
	)
	err = s.withLock(ctx, cache.ReturnKey(id), func() error {
		return s.withLock(ctx, cache.ProductKey(existing.ProductID), func() error {
			var err error
			ret, product, txn, err = s.repo.ProcessReturn(ctx, id, func(r *domain.ProductReturn, p *domain.Product) (*domain.InventoryTransaction, error) {
				return decideReturn(r, p, req, actor.Username, time.Now().UTC())
			})
			return err
		})
	})
	if err != nil {
		return domain.ReturnResult{}, err
	}

	result := domain.ReturnResult{Return: *ret}
	if txn != nil {
		s.cacheProduct(ctx, product)
		result.Transaction = txn
		result.Product = product
	}
	s.logAudit(ctx, "return_"+string(ret.Status), "product_return", ret.ID,
		fmt.Sprintf("product=%s,qty=%d,restocked=%t", ret.ProductID, ret.Quantity, txn != nil))
	return result, nil
}

func decideReturn(ret *domain.ProductReturn, product *domain.Product, req domain.ProcessReturnRequest, username string, at time.Time) (*domain.InventoryTransaction, error) {
	if ret.Status != domain.ReturnPending {
		return nil, apperr.New(apperr.KindInvalidState, "return %s is %s, only pending returns can be processed", ret.ID, ret.Status)
	}

	if req.Restockable != nil {
		ret.Restockable = *req.Restockable
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		ret.Notes = notes
	}
	ret.Status = req.Status
	ret.ProcessedBy = username
	ret.ProcessedAt = &at

	if ret.Status != domain.ReturnProcessed || !ret.Restockable {
		return nil, nil
	}
	if product == nil {
		return nil, apperr.New(apperr.KindNotFound, "product %s no longer exists, the return can only be rejected or processed without restock", ret.ProductID)
	}

	txn := &domain.InventoryTransaction{
		Type:      domain.TxReturn,
		Quantity:  ret.Quantity,
		Reason:    returnRestockReason,
		ReturnID:  ret.ID,
		Notes:     ret.Reason,
		CreatedBy: username,
	}
	if err := ledger.Apply(product, txn); err != nil {
		return nil, err
	}
	return txn, nil
}
