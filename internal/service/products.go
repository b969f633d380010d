package service

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"partsledger/internal/apperr"
	"partsledger/internal/cache"
	"partsledger/internal/catalog"
	"partsledger/internal/domain"
	"partsledger/internal/ledger"
	"partsledger/internal/validation"
)

const manualStockEditReason = "manual stock edit"

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.createProduct(ctx, req)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,stock=%d,by=%s", created.ProductName, created.StockQty, actor.Username))
	return created, nil
}

func (s *Service) createProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req = normalizeCreateRequest(req)

	fields := map[string]string{}
	checkMoney(fields, "mrp", req.MRP, true)
	checkMoney(fields, "selling_price", req.SellingPrice, true)
	if req.Discount != nil {
		checkPercent(fields, "discount", *req.Discount)
	}
	if err := validation.Merge(validation.Struct(req), fieldsError(fields)); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Brand:              req.Brand,
		Model:              req.Model,
		ProductName:        req.ProductName,
		ProductCode:        req.ProductCode,
		HSNNumber:          req.HSNNumber,
		Barcode:            req.Barcode,
		Category:           req.Category,
		ModelCompatibility: req.ModelCompatibility,
		Warranty:           req.Warranty,
		MRP:                domain.RoundMoney(req.MRP),
		SellingPrice:       domain.RoundMoney(req.SellingPrice),
		StockQty:           req.StockQty,
		MinStockLevel:      domain.DefaultMinStockLevel,
		Variants:           req.Variants,
		Images:             req.Images,
		SupplierID:         req.SupplierID,
	}
	if req.MinStockLevel != nil {
		product.MinStockLevel = *req.MinStockLevel
	}
	if req.Discount != nil {
		product.Discount = req.Discount.Round(2)
	} else {
		product.Discount = catalog.Discount(product.MRP, product.SellingPrice)
	}
	if req.Discontinued {
		product.Status = domain.StatusDiscontinued
	}
	ledger.Refresh(&product)

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, apperr.Field("id", "is required")
	}

	if cached, ok, err := s.products.Get(ctx, id); err != nil {
		s.logger.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.products.Set(ctx, product, s.cacheTTL); err != nil {
		s.logger.Warn("product cache write failed", zap.String("product_id", id), zap.Error(err))
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Category = strings.TrimSpace(filter.Category)
	for _, status := range filter.Statuses {
		switch status {
		case domain.StatusInStock, domain.StatusLowStock, domain.StatusOutOfStock, domain.StatusDiscontinued:
		default:
			return nil, apperr.Field("status", "must be one of: in_stock, low_stock, out_of_stock, discontinued")
		}
	}
	filter.Limit = clampLimit(filter.Limit, 200, 1000)
	return s.repo.ListProducts(ctx, filter)
}

// LowStockProducts lists products that need restocking, emptiest first.
// Discontinued products are never included.
func (s *Service) LowStockProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{
		Statuses: []domain.ProductStatus{domain.StatusLowStock, domain.StatusOutOfStock},
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(products, func(a, b domain.Product) int {
		if a.StockQty != b.StockQty {
			return a.StockQty - b.StockQty
		}
		return strings.Compare(strings.ToLower(a.ProductName), strings.ToLower(b.ProductName))
	})
	if limit = clampLimit(limit, 200, 1000); len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// UpdateProduct applies a partial update. A changed stock_qty is booked as an
// ADJUSTMENT in the same write so the ledger explains every stock level.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.ProductUpdateResult, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.ProductUpdateResult{}, err
	}

	fields := map[string]string{}
	if req.MRP != nil {
		checkMoney(fields, "mrp", *req.MRP, true)
	}
	if req.SellingPrice != nil {
		checkMoney(fields, "selling_price", *req.SellingPrice, true)
	}
	if req.Discount != nil {
		checkPercent(fields, "discount", *req.Discount)
	}
	for name, value := range map[string]*string{"brand": req.Brand, "product_name": req.ProductName, "category": req.Category} {
		if value != nil && strings.TrimSpace(*value) == "" {
			fields[name] = "must not be empty"
		}
	}
	if err := validation.Merge(validation.Struct(req), fieldsError(fields)); err != nil {
		return domain.ProductUpdateResult{}, err
	}

	var (
		product *domain.Product
		txn     *domain.InventoryTransaction
	)
	err = s.withLock(ctx, cache.ProductKey(id), func() error {
		var err error
		product, txn, err = s.repo.MutateProduct(ctx, id, func(p *domain.Product) (*domain.InventoryTransaction, error) {
			return applyProductUpdate(p, req, actor)
		})
		return err
	})
	if err != nil {
		return domain.ProductUpdateResult{}, err
	}

	s.cacheProduct(ctx, product)
	detail := fmt.Sprintf("status=%s,stock=%d", product.Status, product.StockQty)
	if txn != nil {
		detail += fmt.Sprintf(",adjustment=%s", txn.ID)
	}
	s.logAudit(ctx, "product_update", "product", product.ID, detail)
	return domain.ProductUpdateResult{Product: *product, Transaction: txn}, nil
}

func applyProductUpdate(p *domain.Product, req domain.ProductUpdateRequest, actor domain.Actor) (*domain.InventoryTransaction, error) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&p.Brand, req.Brand)
	setString(&p.Model, req.Model)
	setString(&p.ProductName, req.ProductName)
	setString(&p.ProductCode, req.ProductCode)
	setString(&p.HSNNumber, req.HSNNumber)
	setString(&p.Barcode, req.Barcode)
	setString(&p.Category, req.Category)
	setString(&p.Warranty, req.Warranty)
	setString(&p.SupplierID, req.SupplierID)
	if req.ModelCompatibility != nil {
		p.ModelCompatibility = compactStrings(*req.ModelCompatibility)
	}
	if req.Variants != nil {
		p.Variants = *req.Variants
	}
	if req.Images != nil {
		p.Images = *req.Images
	}
	if req.MinStockLevel != nil {
		p.MinStockLevel = *req.MinStockLevel
	}

	priceChanged := false
	if req.MRP != nil {
		p.MRP = domain.RoundMoney(*req.MRP)
		priceChanged = true
	}
	if req.SellingPrice != nil {
		p.SellingPrice = domain.RoundMoney(*req.SellingPrice)
		priceChanged = true
	}
	switch {
	case req.Discount != nil:
		p.Discount = req.Discount.Round(2)
	case priceChanged:
		p.Discount = catalog.Discount(p.MRP, p.SellingPrice)
	}

	if req.Discontinued != nil {
		if *req.Discontinued {
			p.Status = domain.StatusDiscontinued
		} else if p.Status == domain.StatusDiscontinued {
			p.Status = ""
		}
	}

	var txn *domain.InventoryTransaction
	if req.StockQty != nil && *req.StockQty != p.StockQty {
		diff := *req.StockQty - p.StockQty
		direction := domain.AdjustIncrease
		if diff < 0 {
			direction = domain.AdjustDecrease
			diff = -diff
		}
		txn = &domain.InventoryTransaction{
			Type:      domain.TxAdjustment,
			Direction: direction,
			Quantity:  diff,
			Reason:    manualStockEditReason,
			CreatedBy: actor.Username,
		}
		if err := ledger.Apply(p, txn); err != nil {
			return nil, err
		}
	}

	ledger.Refresh(p)
	return txn, nil
}

// DeleteProduct removes a product. Products with ledger or return history
// are kept unless confirm is set.
func (s *Service) DeleteProduct(ctx context.Context, id string, confirm bool) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}

	err := s.withLock(ctx, cache.ProductKey(id), func() error {
		if _, err := s.repo.GetProduct(ctx, id); err != nil {
			return err
		}
		refs, err := s.repo.CountProductReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 && !confirm {
			return apperr.New(apperr.KindConflict, "product %s has %d ledger or return records; pass confirm=true to delete it anyway", id, refs)
		}
		return s.repo.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidateProducts(ctx, id)
	s.logAudit(ctx, "product_delete", "product", id, fmt.Sprintf("confirm=%t", confirm))
	return nil
}

// ImportProducts creates every valid request and reports the rest by row.
// Row numbers start at 1.
func (s *Service) ImportProducts(ctx context.Context, reqs []domain.ProductCreateRequest) (domain.ImportResult, error) {
	rows := make([]catalog.ImportRow, 0, len(reqs))
	for i, req := range reqs {
		rows = append(rows, catalog.ImportRow{Row: i + 1, Request: req})
	}
	return s.ImportProductRows(ctx, rows)
}

// ImportProductRows is ImportProducts for rows parsed from a spreadsheet,
// which may already carry a parse error.
func (s *Service) ImportProductRows(ctx context.Context, rows []catalog.ImportRow) (domain.ImportResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ImportResult{}, err
	}
	if len(rows) == 0 {
		return domain.ImportResult{}, apperr.Field("products", "must contain at least one product")
	}

	result := domain.ImportResult{Errors: []domain.ImportRowError{}}
	for _, row := range rows {
		err := row.Err
		if err == nil {
			_, err = s.createProduct(ctx, row.Request)
		}
		if err != nil {
			result.Errors = append(result.Errors, domain.ImportRowError{
				Row:     row.Row,
				Message: err.Error(),
				Fields:  apperr.FieldsOf(err),
			})
			continue
		}
		result.Imported++
	}

	s.logAudit(ctx, "product_import", "product", "bulk",
		fmt.Sprintf("imported=%d,failed=%d", result.Imported, len(result.Errors)))
	return result, nil
}

// ExportProducts writes the filtered catalog as an xlsx workbook.
func (s *Service) ExportProducts(ctx context.Context, w io.Writer, filter domain.ProductFilter) error {
	if _, err := requireStaff(ctx); err != nil {
		return err
	}
	filter.Limit = 0
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return err
	}
	return catalog.WriteXLSX(w, products)
}

func (s *Service) FindDuplicateProducts(ctx context.Context) ([]domain.DuplicateGroup, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return nil, err
	}
	return catalog.FindDuplicates(products), nil
}

// DeleteDuplicateProducts keeps the oldest product of each duplicate group
// and deletes the others. Without confirm, duplicates that have ledger or
// return history are skipped.
func (s *Service) DeleteDuplicateProducts(ctx context.Context, confirm bool) (domain.DeleteDuplicatesResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DeleteDuplicatesResult{}, err
	}

	groups, err := s.FindDuplicateProducts(ctx)
	if err != nil {
		return domain.DeleteDuplicatesResult{}, err
	}

	result := domain.DeleteDuplicatesResult{DuplicateGroups: len(groups), Skipped: []string{}}
	deleted := make([]string, 0)
	for _, group := range groups {
		for _, dup := range group.Duplicates {
			refs, err := s.repo.CountProductReferences(ctx, dup.ID)
			if err != nil {
				return result, err
			}
			if refs > 0 && !confirm {
				result.Skipped = append(result.Skipped, dup.ID)
				continue
			}
			if err := s.repo.DeleteProduct(ctx, dup.ID); err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					continue
				}
				return result, err
			}
			deleted = append(deleted, dup.ID)
		}
	}
	result.DeletedCount = len(deleted)

	if len(deleted) > 0 {
		s.invalidateProducts(ctx, deleted...)
	}
	s.logAudit(ctx, "product_delete_duplicates", "product", "bulk",
		fmt.Sprintf("groups=%d,deleted=%d,skipped=%d,confirm=%t", result.DuplicateGroups, result.DeletedCount, len(result.Skipped), confirm))
	return result, nil
}

func normalizeCreateRequest(req domain.ProductCreateRequest) domain.ProductCreateRequest {
	req.Brand = strings.TrimSpace(req.Brand)
	req.Model = strings.TrimSpace(req.Model)
	req.ProductName = strings.TrimSpace(req.ProductName)
	req.ProductCode = strings.TrimSpace(req.ProductCode)
	req.HSNNumber = strings.TrimSpace(req.HSNNumber)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)
	req.Warranty = strings.TrimSpace(req.Warranty)
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.ModelCompatibility = compactStrings(req.ModelCompatibility)
	return req
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var hundred = decimal.NewFromInt(100)

func checkMoney(fields map[string]string, name string, value decimal.Decimal, positive bool) {
	switch {
	case !domain.HasMoneyScale(value):
		fields[name] = fmt.Sprintf("must have at most %d decimal places", domain.MoneyScale)
	case positive && !value.IsPositive():
		fields[name] = "must be greater than 0"
	case value.IsNegative():
		fields[name] = "must not be negative"
	}
}

func checkPercent(fields map[string]string, name string, value decimal.Decimal) {
	if value.IsNegative() || value.GreaterThan(hundred) {
		fields[name] = "must be between 0 and 100"
	}
}

func fieldsError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields)
}
