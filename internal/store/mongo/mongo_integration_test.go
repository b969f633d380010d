package mongo

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
	uri := os.Getenv("PARTSLEDGER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set PARTSLEDGER_TEST_MONGO_URI to run mongo integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, uri, fmt.Sprintf("partsledger_it_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return s
}

func TestMutateProductKeepsLedgerAndStockTogether(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{
		Brand: "Minda", ProductName: "Flasher Relay", Category: "electrical",
		MRP: decimal.NewFromInt(180), SellingPrice: decimal.NewFromInt(160),
		StockQty: 5, MinStockLevel: 10, Status: domain.StatusLowStock,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	updated, txn, err := s.MutateProduct(ctx, product.ID, func(p *domain.Product) (*domain.InventoryTransaction, error) {
		entry := &domain.InventoryTransaction{Type: domain.TxIn, Quantity: 10, Reason: "restock", CreatedBy: "admin"}
		return entry, ledger.Apply(p, entry)
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated.StockQty != 15 || updated.Status != domain.StatusInStock || updated.Version != 2 {
		t.Fatalf("unexpected product after IN: %+v", updated)
	}

	stored, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !stored.MRP.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("mrp did not round trip: %s", stored.MRP)
	}

	restored, err := s.DeleteInventoryTransaction(ctx, txn.ID, ledger.Reverse)
	if err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if restored.StockQty != 5 || restored.Status != domain.StatusLowStock {
		t.Fatalf("expected 5 low_stock, got %d %s", restored.StockQty, restored.Status)
	}
}

func TestRecordPaymentsAbortsOnExceedsDue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	invoice, err := s.CreateInvoice(ctx, domain.Invoice{
		InvoiceNumber: "IT-1", TotalAmount: decimal.NewFromInt(1000), DueAmount: decimal.NewFromInt(1000),
		Status: domain.InvoiceUnpaid, CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := s.CreateInvoice(ctx, domain.Invoice{InvoiceNumber: "IT-1", CreatedBy: "admin"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected duplicate number conflict, got %v", err)
	}

	entries := []domain.PaymentEntry{{Amount: decimal.NewFromInt(1200), PaymentMode: domain.PaymentCash}}
	_, _, err = s.RecordPayments(ctx, invoice.ID, func(inv *domain.Invoice) ([]domain.Payment, error) {
		if err := payment.Apply(inv, decimal.NewFromInt(1200)); err != nil {
			return nil, err
		}
		return payment.Records(inv.ID, "admin", "", entries, time.Now().UTC()), nil
	})
	if !errors.Is(err, apperr.ErrExceedsDue) {
		t.Fatalf("expected exceeds due, got %v", err)
	}

	payments, err := s.ListPayments(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 0 {
		t.Fatalf("expected no payments, got %d", len(payments))
	}
}
