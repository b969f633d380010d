package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
	"partsledger/internal/ledger"
	"partsledger/internal/payment"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("PARTSLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PARTSLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func TestDeleteTransactionRestoresStock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_transactions WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Brand: "Bosch", ProductName: "Horn", Category: "electrical",
		MRP: decimal.NewFromInt(650), SellingPrice: decimal.NewFromInt(585),
		StockQty: 5, MinStockLevel: 10, Status: domain.StatusLowStock,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, txn, err := s.MutateProduct(ctx, productID, func(p *domain.Product) (*domain.InventoryTransaction, error) {
		entry := &domain.InventoryTransaction{Type: domain.TxIn, Quantity: 10, Reason: "restock", CreatedBy: "admin"}
		return entry, ledger.Apply(p, entry)
	})
	if err != nil {
		t.Fatalf("apply transaction: %v", err)
	}

	_, _, err = s.MutateProduct(ctx, productID, func(p *domain.Product) (*domain.InventoryTransaction, error) {
		entry := &domain.InventoryTransaction{Type: domain.TxOut, Quantity: 100, Reason: "sale", CreatedBy: "admin"}
		return entry, ledger.Apply(p, entry)
	})
	if !errors.Is(err, apperr.ErrOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}

	product, err := s.DeleteInventoryTransaction(ctx, txn.ID, ledger.Reverse)
	if err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if product.StockQty != 5 || product.Status != domain.StatusLowStock {
		t.Fatalf("expected stock 5 low_stock, got %d %s", product.StockQty, product.Status)
	}
}

func TestRecordPaymentsRejectsOverpayment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	invoiceID := fmt.Sprintf("inv-it-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM payments WHERE invoice_id = $1`, invoiceID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, invoiceID)
	})

	if _, err := s.CreateInvoice(ctx, domain.Invoice{
		ID: invoiceID, InvoiceNumber: fmt.Sprintf("IT-%d", stamp), TotalAmount: decimal.NewFromInt(1000),
		DueAmount: decimal.NewFromInt(1000), Status: domain.InvoiceUnpaid, CreatedBy: "admin",
	}); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	submit := func(amount int64) error {
		entries := []domain.PaymentEntry{{Amount: decimal.NewFromInt(amount), PaymentMode: domain.PaymentCash}}
		_, _, err := s.RecordPayments(ctx, invoiceID, func(inv *domain.Invoice) ([]domain.Payment, error) {
			if err := payment.Apply(inv, decimal.NewFromInt(amount)); err != nil {
				return nil, err
			}
			return payment.Records(inv.ID, "admin", "", entries, time.Now().UTC()), nil
		})
		return err
	}

	if err := submit(600); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if err := submit(500); !errors.Is(err, apperr.ErrExceedsDue) {
		t.Fatalf("expected exceeds due, got %v", err)
	}

	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !invoice.PaidAmount.Equal(decimal.NewFromInt(600)) || invoice.Status != domain.InvoicePartial {
		t.Fatalf("unexpected invoice state paid=%s status=%s", invoice.PaidAmount, invoice.Status)
	}
	payments, err := s.ListPayments(ctx, invoiceID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected one payment row, got %d", len(payments))
	}
}
