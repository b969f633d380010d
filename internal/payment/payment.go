// Package payment validates multi-line payment submissions and applies them
// to an invoice balance.
package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
	"partsledger/internal/xid"
)

// ParseMode resolves a payment mode case-insensitively, ignoring spaces and
// underscores, so "net_banking" and "Net Banking" are the same mode.
func ParseMode(raw string) (domain.PaymentMode, bool) {
	key := modeKey(raw)
	if key == "" {
		return "", false
	}
	for _, mode := range domain.PaymentModes {
		if modeKey(string(mode)) == key {
			return mode, true
		}
	}
	return "", false
}

func modeKey(raw string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(raw)))
}

// RequiresReference reports whether a mode must carry a transaction id.
func RequiresReference(mode domain.PaymentMode) bool {
	return mode != domain.PaymentCash
}

// Validate checks every entry of a submission and returns the normalized
// entries with their total. All entry problems are reported together.
func Validate(entries []domain.PaymentEntry, declaredTotal *decimal.Decimal) ([]domain.PaymentEntry, decimal.Decimal, error) {
	if len(entries) == 0 {
		return nil, decimal.Zero, apperr.Field("payments", "must contain at least one payment")
	}

	fields := map[string]string{}
	normalized := make([]domain.PaymentEntry, 0, len(entries))
	total := decimal.Zero
	for i, entry := range entries {
		prefix := fmt.Sprintf("payments[%d].", i)

		amount := domain.RoundMoney(entry.Amount)
		switch {
		case !domain.HasMoneyScale(entry.Amount):
			fields[prefix+"amount"] = fmt.Sprintf("must have at most %d decimal places", domain.MoneyScale)
		case !amount.IsPositive():
			fields[prefix+"amount"] = "must be greater than 0"
		}

		mode, ok := ParseMode(string(entry.PaymentMode))
		if !ok {
			fields[prefix+"payment_mode"] = "must be one of: UPI, Cash, Card, Net Banking, Cheque"
		}

		reference := strings.TrimSpace(entry.TransactionID)
		if ok && RequiresReference(mode) && reference == "" {
			fields[prefix+"transaction_id"] = fmt.Sprintf("is required for %s payments", mode)
		}

		normalized = append(normalized, domain.PaymentEntry{
			Amount:        amount,
			PaymentMode:   mode,
			TransactionID: reference,
		})
		total = total.Add(amount)
	}
	if len(fields) > 0 {
		return nil, decimal.Zero, apperr.Validation(fields)
	}

	if declaredTotal != nil && !declaredTotal.Equal(total) {
		return nil, decimal.Zero, apperr.Field("total_amount", fmt.Sprintf("must equal the sum of payments (%s)", total.StringFixed(domain.MoneyScale)))
	}
	return normalized, total, nil
}

// Apply adds total to the invoice's paid amount. A total above the due amount
// is rejected with EXCEEDS_DUE and leaves the invoice untouched; equality
// settles the invoice.
func Apply(invoice *domain.Invoice, total decimal.Decimal) error {
	if !total.IsPositive() {
		return apperr.Field("payments", "total must be greater than 0")
	}
	if total.GreaterThan(invoice.DueAmount) {
		return apperr.New(apperr.KindExceedsDue, "payments total %s exceeds due amount %s on invoice %s",
			total.StringFixed(domain.MoneyScale), invoice.DueAmount.StringFixed(domain.MoneyScale), invoice.InvoiceNumber)
	}

	invoice.PaidAmount = domain.RoundMoney(invoice.PaidAmount.Add(total))
	Recompute(invoice)
	return nil
}

// Recompute keeps DueAmount = TotalAmount - PaidAmount (never below zero) and
// the derived status in step with it.
func Recompute(invoice *domain.Invoice) {
	due := invoice.TotalAmount.Sub(invoice.PaidAmount)
	if due.IsNegative() {
		due = decimal.Zero
	}
	invoice.DueAmount = domain.RoundMoney(due)
	invoice.Status = DeriveStatus(invoice.PaidAmount, invoice.DueAmount)
}

func DeriveStatus(paid decimal.Decimal, due decimal.Decimal) domain.InvoiceStatus {
	switch {
	case !due.IsPositive():
		return domain.InvoicePaid
	case !paid.IsPositive():
		return domain.InvoiceUnpaid
	default:
		return domain.InvoicePartial
	}
}

// Records turns validated entries into the immutable payment rows of one
// submission. Sequence keeps the order the entries were submitted in.
func Records(invoiceID string, receivedBy string, notes string, entries []domain.PaymentEntry, at time.Time) []domain.Payment {
	batchID := xid.New("pbt")
	records := make([]domain.Payment, 0, len(entries))
	for i, entry := range entries {
		records = append(records, domain.Payment{
			ID:            xid.New("pay"),
			InvoiceID:     invoiceID,
			BatchID:       batchID,
			Sequence:      i + 1,
			Amount:        entry.Amount,
			PaymentMode:   entry.PaymentMode,
			TransactionID: entry.TransactionID,
			Notes:         notes,
			ReceivedBy:    receivedBy,
			CreatedAt:     at,
		})
	}
	return records
}
