package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
	"partsledger/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.New()
	return New(repo, nil, nil, 0, nil), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func intPtr(v int) *int { return &v }

func mustCreateProduct(t *testing.T, svc *Service, stock int, minStock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Brand:         "Bosch",
		Model:         "EC6",
		ProductName:   "Dual Tone Horn",
		Category:      "electrical",
		MRP:           money("650"),
		SellingPrice:  money("585"),
		StockQty:      stock,
		MinStockLevel: intPtr(minStock),
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func mustCreateInvoice(t *testing.T, svc *Service, total string) domain.Invoice {
	t.Helper()
	invoice, err := svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{TotalAmount: money(total)})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	return invoice
}

func TestCreateProductDerivesDiscountAndStatus(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 5, 10)

	if !product.Discount.Equal(money("10")) {
		t.Fatalf("expected discount 10, got %s", product.Discount)
	}
	if product.Status != domain.StatusLowStock {
		t.Fatalf("expected low_stock, got %s", product.Status)
	}
}

func TestCreateProductRejectsNonPositivePrices(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Brand:        "Bosch",
		ProductName:  "Horn",
		Category:     "electrical",
		MRP:          decimal.Zero,
		SellingPrice: money("-1"),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := apperr.FieldsOf(err)
	if fields["mrp"] == "" || fields["selling_price"] == "" {
		t.Fatalf("expected mrp and selling_price field errors, got %v", fields)
	}
}

func TestApplyTransactionInMovesStockAndStatus(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 5, 10)

	res, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID,
		Type:      domain.TxIn,
		Quantity:  10,
		Reason:    "supplier delivery",
	})
	if err != nil {
		t.Fatalf("apply IN failed: %v", err)
	}
	if res.Product.StockQty != 15 || res.Product.Status != domain.StatusInStock {
		t.Fatalf("expected 15 in_stock, got %d %s", res.Product.StockQty, res.Product.Status)
	}
	if res.Transaction.PreviousStock != 5 || res.Transaction.NewStock != 15 {
		t.Fatalf("unexpected snapshot %d -> %d", res.Transaction.PreviousStock, res.Transaction.NewStock)
	}
	if res.Transaction.CreatedBy != "staff" {
		t.Fatalf("expected created_by staff, got %q", res.Transaction.CreatedBy)
	}
}

func TestApplyTransactionOutRejectsOversell(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 3, 1)

	_, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID,
		Type:      domain.TxOut,
		Quantity:  4,
		Reason:    "counter sale",
	})
	if !errors.Is(err, apperr.ErrOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}

	got, err := svc.GetProduct(staffCtx(), product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if got.StockQty != 3 {
		t.Fatalf("stock changed after rejected OUT: %d", got.StockQty)
	}
	txns, err := svc.ListTransactions(staffCtx(), domain.TransactionFilter{ProductID: product.ID})
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(txns))
	}
}

func TestApplyTransactionAdjustmentNeedsDirection(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 8, 2)

	_, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID,
		Type:      domain.TxAdjustment,
		Quantity:  2,
		Reason:    "stock count",
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error without direction, got %v", err)
	}

	res, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID,
		Type:      domain.TxAdjustment,
		Direction: domain.AdjustDecrease,
		Quantity:  2,
		Reason:    "stock count",
	})
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if res.Product.StockQty != 6 {
		t.Fatalf("expected 6 after decrease, got %d", res.Product.StockQty)
	}
}

func TestApplyTransactionRequiresReasonAndActor(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 1, 0)

	_, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID,
		Type:      domain.TxIn,
		Quantity:  1,
	})
	if fields := apperr.FieldsOf(err); fields["reason"] == "" {
		t.Fatalf("expected reason field error, got %v", err)
	}

	_, err = svc.ApplyTransaction(context.Background(), domain.InventoryTransactionRequest{
		ProductID: product.ID,
		Type:      domain.TxIn,
		Quantity:  1,
		Reason:    "delivery",
	})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without actor, got %v", err)
	}
}

func TestApplyTransactionUnknownProduct(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: "prd_missing",
		Type:      domain.TxIn,
		Quantity:  1,
		Reason:    "delivery",
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteTransactionRestoresPreviousStock(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 5, 10)

	res, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID,
		Type:      domain.TxIn,
		Quantity:  10,
		Reason:    "supplier delivery",
	})
	if err != nil {
		t.Fatalf("apply IN failed: %v", err)
	}

	if _, err := svc.DeleteTransaction(staffCtx(), res.Transaction.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected staff delete to be forbidden, got %v", err)
	}

	restored, err := svc.DeleteTransaction(adminCtx(), res.Transaction.ID)
	if err != nil {
		t.Fatalf("delete transaction failed: %v", err)
	}
	if restored.StockQty != 5 || restored.Status != domain.StatusLowStock {
		t.Fatalf("expected 5 low_stock after delete, got %d %s", restored.StockQty, restored.Status)
	}
	if _, err := svc.GetTransaction(staffCtx(), res.Transaction.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected deleted transaction to be gone, got %v", err)
	}
}

func TestDeleteTransactionRejectsNegativeResult(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 0, 1)

	in, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID, Type: domain.TxIn, Quantity: 10, Reason: "delivery",
	})
	if err != nil {
		t.Fatalf("apply IN failed: %v", err)
	}
	if _, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID, Type: domain.TxOut, Quantity: 8, Reason: "sale",
	}); err != nil {
		t.Fatalf("apply OUT failed: %v", err)
	}

	if _, err := svc.DeleteTransaction(adminCtx(), in.Transaction.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict reversing IN below zero, got %v", err)
	}
	got, _ := svc.GetProduct(staffCtx(), product.ID)
	if got.StockQty != 2 {
		t.Fatalf("stock changed after rejected delete: %d", got.StockQty)
	}
}

func mustCreateReturn(t *testing.T, svc *Service, productID string, qty int, restockable bool) domain.ProductReturn {
	t.Helper()
	ret, err := svc.CreateReturn(staffCtx(), domain.ProductReturnCreateRequest{
		ProductID:    productID,
		Quantity:     qty,
		Reason:       "horn not working",
		Condition:    domain.ConditionDefective,
		RefundAmount: &decimal.Decimal{},
		Restockable:  restockable,
	})
	if err != nil {
		t.Fatalf("create return failed: %v", err)
	}
	if ret.Status != domain.ReturnPending {
		t.Fatalf("expected pending return, got %s", ret.Status)
	}
	return ret
}

func TestProcessReturnRestocksOnce(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 4, 2)
	ret := mustCreateReturn(t, svc, product.ID, 3, true)

	res, err := svc.ProcessReturn(staffCtx(), ret.ID, domain.ProcessReturnRequest{Status: domain.ReturnProcessed})
	if err != nil {
		t.Fatalf("process return failed: %v", err)
	}
	if res.Transaction == nil || res.Transaction.Type != domain.TxReturn || res.Transaction.Reason != "product return" {
		t.Fatalf("expected RETURN transaction, got %+v", res.Transaction)
	}
	if res.Product == nil || res.Product.StockQty != 7 {
		t.Fatalf("expected stock 7, got %+v", res.Product)
	}
	if res.Return.TransactionID != res.Transaction.ID || res.Return.ProcessedBy != "staff" {
		t.Fatalf("return not linked to its transaction: %+v", res.Return)
	}

	_, err = svc.ProcessReturn(staffCtx(), ret.ID, domain.ProcessReturnRequest{Status: domain.ReturnProcessed})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state on second process, got %v", err)
	}
	got, _ := svc.GetProduct(staffCtx(), product.ID)
	if got.StockQty != 7 {
		t.Fatalf("second process changed stock: %d", got.StockQty)
	}

	if _, err := svc.DeleteTransaction(adminCtx(), res.Transaction.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict deleting return transaction, got %v", err)
	}
}

func TestProcessReturnRejectedOrNotRestockableLeavesStock(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 4, 2)

	rejected := mustCreateReturn(t, svc, product.ID, 1, true)
	res, err := svc.ProcessReturn(staffCtx(), rejected.ID, domain.ProcessReturnRequest{Status: domain.ReturnRejected})
	if err != nil {
		t.Fatalf("reject return failed: %v", err)
	}
	if res.Transaction != nil || res.Return.Status != domain.ReturnRejected {
		t.Fatalf("unexpected reject result: %+v", res)
	}

	damaged := mustCreateReturn(t, svc, product.ID, 2, true)
	res, err = svc.ProcessReturn(staffCtx(), damaged.ID, domain.ProcessReturnRequest{
		Status:      domain.ReturnProcessed,
		Restockable: new(bool),
	})
	if err != nil {
		t.Fatalf("process return failed: %v", err)
	}
	if res.Transaction != nil || res.Return.Restockable {
		t.Fatalf("expected no restock, got %+v", res)
	}

	got, _ := svc.GetProduct(staffCtx(), product.ID)
	if got.StockQty != 4 {
		t.Fatalf("stock changed without restock: %d", got.StockQty)
	}
}

func TestCreateReturnRejectsNegativeRefund(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 4, 2)
	refund := money("-10")

	_, err := svc.CreateReturn(staffCtx(), domain.ProductReturnCreateRequest{
		ProductID:    product.ID,
		Quantity:     1,
		Reason:       "wrong fit",
		Condition:    domain.ConditionWrongItem,
		RefundAmount: &refund,
	})
	if fields := apperr.FieldsOf(err); fields["refund_amount"] == "" {
		t.Fatalf("expected refund_amount field error, got %v", err)
	}
}

func TestRecordPaymentSettlesOnEquality(t *testing.T) {
	svc, _ := newTestService()
	invoice := mustCreateInvoice(t, svc, "1000")

	res, err := svc.RecordPayment(staffCtx(), invoice.ID, domain.RecordPaymentRequest{
		Payments: []domain.PaymentEntry{
			{Amount: money("400"), PaymentMode: domain.PaymentCash},
			{Amount: money("600"), PaymentMode: domain.PaymentUPI, TransactionID: "UPI-77821"},
		},
	})
	if err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	if res.Invoice.Status != domain.InvoicePaid || !res.Invoice.DueAmount.IsZero() {
		t.Fatalf("expected paid invoice, got %s due=%s", res.Invoice.Status, res.Invoice.DueAmount)
	}
	if len(res.Payments) != 2 || res.Payments[0].BatchID != res.Payments[1].BatchID {
		t.Fatalf("expected two rows in one batch, got %+v", res.Payments)
	}

	rows, err := svc.ListPayments(staffCtx(), invoice.ID)
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored payments, got %d", len(rows))
	}
}

func TestRecordPaymentExceedsDueLeavesInvoice(t *testing.T) {
	svc, _ := newTestService()
	invoice := mustCreateInvoice(t, svc, "1000")

	if _, err := svc.RecordPayment(staffCtx(), invoice.ID, domain.RecordPaymentRequest{
		Payments: []domain.PaymentEntry{{Amount: money("300"), PaymentMode: domain.PaymentCash}},
	}); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}

	_, err := svc.RecordPayment(staffCtx(), invoice.ID, domain.RecordPaymentRequest{
		Payments: []domain.PaymentEntry{
			{Amount: money("500"), PaymentMode: domain.PaymentCash},
			{Amount: money("200.01"), PaymentMode: domain.PaymentCard, TransactionID: "CARD-1"},
		},
	})
	if !errors.Is(err, apperr.ErrExceedsDue) {
		t.Fatalf("expected exceeds due, got %v", err)
	}

	got, err := svc.GetInvoice(staffCtx(), invoice.ID)
	if err != nil {
		t.Fatalf("get invoice failed: %v", err)
	}
	if !got.PaidAmount.Equal(money("300")) || got.Status != domain.InvoicePartial {
		t.Fatalf("invoice changed after rejected payment: paid=%s status=%s", got.PaidAmount, got.Status)
	}
	rows, _ := svc.ListPayments(staffCtx(), invoice.ID)
	if len(rows) != 1 {
		t.Fatalf("expected only the first payment row, got %d", len(rows))
	}
}

func TestRecordPaymentRequiresReferenceForNonCash(t *testing.T) {
	svc, _ := newTestService()
	invoice := mustCreateInvoice(t, svc, "500")

	_, err := svc.RecordPayment(staffCtx(), invoice.ID, domain.RecordPaymentRequest{
		Payments: []domain.PaymentEntry{{Amount: money("100"), PaymentMode: domain.PaymentCard}},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if apperr.FieldsOf(err)["payments[0].transaction_id"] == "" {
		t.Fatalf("expected transaction_id field error, got %v", apperr.FieldsOf(err))
	}
}

func TestRecordPaymentConcurrentSubmissionsNeverOverpay(t *testing.T) {
	svc, _ := newTestService()
	invoice := mustCreateInvoice(t, svc, "1000")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(staffCtx(), invoice.ID, domain.RecordPaymentRequest{
				Payments: []domain.PaymentEntry{{Amount: money("400"), PaymentMode: domain.PaymentCash}},
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrExceedsDue) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 2 {
		t.Fatalf("expected exactly 2 accepted payments, got %d", accepted)
	}
	got, _ := svc.GetInvoice(staffCtx(), invoice.ID)
	if !got.PaidAmount.Equal(money("800")) || !got.DueAmount.Equal(money("200")) {
		t.Fatalf("unexpected balance paid=%s due=%s", got.PaidAmount, got.DueAmount)
	}
}

func TestCreateInvoiceGeneratesNumberAndRejectsOverpaidOpening(t *testing.T) {
	svc, _ := newTestService()
	invoice := mustCreateInvoice(t, svc, "250")
	if len(invoice.InvoiceNumber) != len("INV-20060102-ABCDEF") || invoice.Status != domain.InvoiceUnpaid {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}

	paid := money("300")
	_, err := svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{TotalAmount: money("250"), PaidAmount: &paid})
	if apperr.FieldsOf(err)["paid_amount"] == "" {
		t.Fatalf("expected paid_amount field error, got %v", err)
	}

	_, err = svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{InvoiceNumber: invoice.InvoiceNumber, TotalAmount: money("10")})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on reused number, got %v", err)
	}
}

func TestUpdateProductStockEditGoesThroughLedger(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 12, 5)

	res, err := svc.UpdateProduct(staffCtx(), product.ID, domain.ProductUpdateRequest{StockQty: intPtr(4)})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	if res.Product.StockQty != 4 || res.Product.Status != domain.StatusLowStock {
		t.Fatalf("expected 4 low_stock, got %d %s", res.Product.StockQty, res.Product.Status)
	}
	txn := res.Transaction
	if txn == nil || txn.Type != domain.TxAdjustment || txn.Direction != domain.AdjustDecrease || txn.Quantity != 8 {
		t.Fatalf("expected decrease adjustment of 8, got %+v", txn)
	}
	if txn.Reason != "manual stock edit" {
		t.Fatalf("unexpected reason %q", txn.Reason)
	}
}

func TestUpdateProductDiscontinuedIsExplicit(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 12, 5)
	yes, no := true, false

	res, err := svc.UpdateProduct(staffCtx(), product.ID, domain.ProductUpdateRequest{Discontinued: &yes})
	if err != nil {
		t.Fatalf("discontinue failed: %v", err)
	}
	if res.Product.Status != domain.StatusDiscontinued {
		t.Fatalf("expected discontinued, got %s", res.Product.Status)
	}

	res, err = svc.UpdateProduct(staffCtx(), product.ID, domain.ProductUpdateRequest{StockQty: intPtr(0)})
	if err != nil {
		t.Fatalf("stock edit failed: %v", err)
	}
	if res.Product.Status != domain.StatusDiscontinued {
		t.Fatalf("stock edit must not clear discontinued, got %s", res.Product.Status)
	}

	res, err = svc.UpdateProduct(staffCtx(), product.ID, domain.ProductUpdateRequest{Discontinued: &no})
	if err != nil {
		t.Fatalf("reinstate failed: %v", err)
	}
	if res.Product.Status != domain.StatusOutOfStock {
		t.Fatalf("expected out_of_stock after reinstating empty product, got %s", res.Product.Status)
	}
}

func TestDeleteProductWithHistoryNeedsConfirm(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 2, 1)
	if _, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID, Type: domain.TxOut, Quantity: 1, Reason: "sale",
	}); err != nil {
		t.Fatalf("apply OUT failed: %v", err)
	}

	if err := svc.DeleteProduct(adminCtx(), product.ID, false); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict without confirm, got %v", err)
	}
	if err := svc.DeleteProduct(adminCtx(), product.ID, true); err != nil {
		t.Fatalf("confirmed delete failed: %v", err)
	}
	if _, err := svc.GetProduct(staffCtx(), product.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteDuplicatesKeepsOldestAndSkipsHistory(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	create := func(id string, name string, age time.Duration) {
		t.Helper()
		if _, err := repo.CreateProduct(ctx, domain.Product{
			ID: id, Brand: "Minda", Model: "R12", ProductName: name, Category: "electrical",
			MRP: money("180"), SellingPrice: money("160"), StockQty: 5, MinStockLevel: 1,
			CreatedAt: base.Add(age),
		}); err != nil {
			t.Fatalf("seed %s failed: %v", id, err)
		}
	}
	create("prd_a", "Flasher Relay", 0)
	create("prd_b", "flasher  relay", time.Hour)
	create("prd_c", "FLASHER RELAY", 2*time.Hour)
	create("prd_d", "Horn Relay", 0)

	if _, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: "prd_c", Type: domain.TxIn, Quantity: 1, Reason: "delivery",
	}); err != nil {
		t.Fatalf("apply IN failed: %v", err)
	}

	groups, err := svc.FindDuplicateProducts(adminCtx())
	if err != nil {
		t.Fatalf("find duplicates failed: %v", err)
	}
	if len(groups) != 1 || groups[0].Keep.ID != "prd_a" || len(groups[0].Duplicates) != 2 {
		t.Fatalf("unexpected groups: %+v", groups)
	}

	res, err := svc.DeleteDuplicateProducts(adminCtx(), false)
	if err != nil {
		t.Fatalf("delete duplicates failed: %v", err)
	}
	if res.DeletedCount != 1 || res.DuplicateGroups != 1 || len(res.Skipped) != 1 || res.Skipped[0] != "prd_c" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = svc.DeleteDuplicateProducts(adminCtx(), true)
	if err != nil {
		t.Fatalf("confirmed delete duplicates failed: %v", err)
	}
	if res.DeletedCount != 1 {
		t.Fatalf("expected the product with history to go on confirm, got %+v", res)
	}
	if _, err := svc.GetProduct(staffCtx(), "prd_a"); err != nil {
		t.Fatalf("oldest product must survive: %v", err)
	}
}

func TestLowStockProductsOrderedByStock(t *testing.T) {
	svc := New(memory.NewSeeded(nil), nil, nil, 0, nil)

	products, err := svc.LowStockProducts(staffCtx(), 0)
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 low stock products, got %d", len(products))
	}
	if products[0].StockQty != 0 || products[1].StockQty != 6 {
		t.Fatalf("unexpected order: %d, %d", products[0].StockQty, products[1].StockQty)
	}
}

func TestDestructiveOperationsRequireAdmin(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 2, 1)

	if err := svc.DeleteProduct(staffCtx(), product.ID, true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden product delete, got %v", err)
	}
	if _, err := svc.DeleteDuplicateProducts(staffCtx(), true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden duplicate delete, got %v", err)
	}
	if _, err := svc.ImportProducts(staffCtx(), nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden import, got %v", err)
	}
	if _, err := svc.ListAuditLogs(staffCtx(), domain.AuditFilter{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden audit list, got %v", err)
	}
}

func TestImportProductsReportsRowErrors(t *testing.T) {
	svc, _ := newTestService()

	res, err := svc.ImportProducts(adminCtx(), []domain.ProductCreateRequest{
		{Brand: "Bosch", ProductName: "Horn", Category: "electrical", MRP: money("650"), SellingPrice: money("585"), StockQty: 3},
		{Brand: "", ProductName: "Relay", Category: "electrical", MRP: money("180"), SellingPrice: money("160")},
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if res.Imported != 1 || len(res.Errors) != 1 || res.Errors[0].Row != 2 {
		t.Fatalf("unexpected import result: %+v", res)
	}
	if res.Errors[0].Fields["brand"] == "" {
		t.Fatalf("expected brand field error, got %+v", res.Errors[0])
	}
}

func TestCustomerWithVehicleCannotBeDeleted(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 2, 1)

	customer, err := svc.CreateCustomer(staffCtx(), domain.CustomerRequest{FullName: "Ravi Patil", MobileNumber: "9876543210"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	_, err = svc.CreateVehicle(staffCtx(), domain.VehicleRequest{
		CustomerID:    customer.ID,
		VehicleNumber: "mh12ab1234",
		VehicleBrand:  "Honda",
		VehicleModel:  "Activa 6G",
		VehiclePhoto:  "aGVsbG8=",
		SelectedParts: []string{product.ID, "prd_unknown"},
	})
	if apperr.FieldsOf(err)["selected_parts[1]"] == "" {
		t.Fatalf("expected unknown part field error, got %v", err)
	}

	vehicle, err := svc.CreateVehicle(staffCtx(), domain.VehicleRequest{
		CustomerID:    customer.ID,
		VehicleNumber: "mh12ab1234",
		VehicleBrand:  "Honda",
		VehicleModel:  "Activa 6G",
		VehiclePhoto:  "aGVsbG8=",
		SelectedParts: []string{product.ID},
	})
	if err != nil {
		t.Fatalf("create vehicle failed: %v", err)
	}
	if vehicle.VehicleNumber != "MH12AB1234" {
		t.Fatalf("expected upper-cased number, got %s", vehicle.VehicleNumber)
	}

	if err := svc.DeleteCustomer(adminCtx(), customer.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict deleting referenced customer, got %v", err)
	}
	if err := svc.DeleteVehicle(adminCtx(), vehicle.ID); err != nil {
		t.Fatalf("delete vehicle failed: %v", err)
	}
	if err := svc.DeleteCustomer(adminCtx(), customer.ID); err != nil {
		t.Fatalf("delete customer failed: %v", err)
	}
}

func TestMutationsWriteAuditEntries(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 2, 1)
	if _, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
		ProductID: product.ID, Type: domain.TxIn, Quantity: 1, Reason: "delivery",
	}); err != nil {
		t.Fatalf("apply IN failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), domain.AuditFilter{})
	if err != nil {
		t.Fatalf("list audit failed: %v", err)
	}
	actions := map[string]string{}
	for _, entry := range logs {
		actions[entry.Action] = entry.ActorUsername
	}
	if actions["product_create"] != "admin" || actions["inventory_in"] != "staff" {
		t.Fatalf("unexpected audit actions: %v", actions)
	}
}

func TestApplyTransactionConcurrentOutNeverOversells(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
				ProductID: product.ID,
				Type:      domain.TxOut,
				Quantity:  1,
				Reason:    "counter sale",
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrOutOfStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 5 {
		t.Fatalf("expected exactly 5 accepted sales, got %d", accepted)
	}
	got, err := svc.GetProduct(staffCtx(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.StockQty != 0 || got.Status != domain.StatusOutOfStock {
		t.Fatalf("expected 0 out_of_stock, got %d %s", got.StockQty, got.Status)
	}

	txns, err := svc.ListTransactions(staffCtx(), domain.TransactionFilter{ProductID: product.ID, Type: domain.TxOut})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 5 {
		t.Fatalf("expected 5 ledger rows, got %d", len(txns))
	}
	seen := map[int]bool{}
	for _, txn := range txns {
		if txn.PreviousStock-txn.NewStock != 1 {
			t.Fatalf("expected a one unit step, got %d -> %d", txn.PreviousStock, txn.NewStock)
		}
		seen[txn.PreviousStock] = true
	}
	for stock := 1; stock <= 5; stock++ {
		if !seen[stock] {
			t.Fatalf("ledger chain is missing the step from %d, got %+v", stock, seen)
		}
	}
}

// versionedCache keeps the highest version of each product. beforeSet runs
// once, ahead of the next Set.
type versionedCache struct {
	mu        sync.Mutex
	items     map[string]domain.Product
	beforeSet func()
}

func (c *versionedCache) Get(_ context.Context, id string) (*domain.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	product, ok := c.items[id]
	if !ok {
		return nil, false, nil
	}
	return &product, true, nil
}

func (c *versionedCache) Set(_ context.Context, product *domain.Product, _ time.Duration) error {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.items[product.ID]; ok && current.Version > product.Version {
		return nil
	}
	c.items[product.ID] = *product
	return nil
}

func (c *versionedCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.items, id)
	}
	return nil
}

func TestGetProductRacingWriteLeavesFreshCopyCached(t *testing.T) {
	products := &versionedCache{items: map[string]domain.Product{}}
	svc := New(memory.New(), products, nil, time.Minute, nil)
	product := mustCreateProduct(t, svc, 5, 10)

	// The reader has loaded stock 5 from the repository; the delivery commits
	// before the reader gets to fill the cache.
	products.beforeSet = func() {
		if _, err := svc.ApplyTransaction(staffCtx(), domain.InventoryTransactionRequest{
			ProductID: product.ID,
			Type:      domain.TxIn,
			Quantity:  10,
			Reason:    "supplier delivery",
		}); err != nil {
			t.Errorf("apply IN failed: %v", err)
		}
	}
	if _, err := svc.GetProduct(staffCtx(), product.ID); err != nil {
		t.Fatalf("first read: %v", err)
	}

	got, err := svc.GetProduct(staffCtx(), product.ID)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if got.StockQty != 15 || got.Status != domain.StatusInStock {
		t.Fatalf("expected cached 15 in_stock after the write, got %d %s", got.StockQty, got.Status)
	}
}

func TestPendingReturnCanBeRejectedAfterProductDeleted(t *testing.T) {
	svc, _ := newTestService()
	product := mustCreateProduct(t, svc, 5, 1)
	ret := mustCreateReturn(t, svc, product.ID, 2, true)

	if err := svc.DeleteProduct(adminCtx(), product.ID, true); err != nil {
		t.Fatalf("forced delete failed: %v", err)
	}

	restock := true
	_, err := svc.ProcessReturn(staffCtx(), ret.ID, domain.ProcessReturnRequest{Status: domain.ReturnProcessed, Restockable: &restock})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found when restocking a deleted product, got %v", err)
	}
	if still, _ := svc.GetReturn(staffCtx(), ret.ID); still.Status != domain.ReturnPending {
		t.Fatalf("expected return to stay pending, got %s", still.Status)
	}

	res, err := svc.ProcessReturn(staffCtx(), ret.ID, domain.ProcessReturnRequest{Status: domain.ReturnRejected})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if res.Return.Status != domain.ReturnRejected || res.Transaction != nil || res.Product != nil {
		t.Fatalf("unexpected reject result %+v", res)
	}
}

func TestMoneyWithExtraDecimalsRejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateInvoice(staffCtx(), domain.InvoiceCreateRequest{TotalAmount: money("100.005")})
	if apperr.FieldsOf(err)["total_amount"] == "" {
		t.Fatalf("expected total_amount field error, got %v", err)
	}

	product := mustCreateProduct(t, svc, 5, 1)
	refund := money("10.001")
	_, err = svc.CreateReturn(staffCtx(), domain.ProductReturnCreateRequest{
		ProductID:    product.ID,
		Quantity:     1,
		Reason:       "wrong fitment",
		Condition:    domain.ConditionDefective,
		RefundAmount: &refund,
	})
	if apperr.FieldsOf(err)["refund_amount"] == "" {
		t.Fatalf("expected refund_amount field error, got %v", err)
	}
}
