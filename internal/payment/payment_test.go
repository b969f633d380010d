package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
)

func newInvoice(total, paid int64) domain.Invoice {
	inv := domain.Invoice{
		InvoiceNumber: "INV-1",
		TotalAmount:   decimal.NewFromInt(total),
		PaidAmount:    decimal.NewFromInt(paid),
	}
	Recompute(&inv)
	return inv
}

func TestValidateAndApplySettlesInvoice(t *testing.T) {
	inv := newInvoice(1000, 200)
	require.True(t, inv.DueAmount.Equal(decimal.NewFromInt(800)))
	require.Equal(t, domain.InvoicePartial, inv.Status)

	entries, total, err := Validate([]domain.PaymentEntry{
		{Amount: decimal.NewFromInt(500), PaymentMode: "Cash"},
		{Amount: decimal.NewFromInt(300), PaymentMode: "upi", TransactionID: " X1 "},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUPI, entries[1].PaymentMode)
	assert.Equal(t, "X1", entries[1].TransactionID)

	require.NoError(t, Apply(&inv, total))
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, inv.DueAmount.IsZero())
	assert.Equal(t, domain.InvoicePaid, inv.Status)
}

func TestApplyRejectsTotalAboveDue(t *testing.T) {
	inv := newInvoice(1000, 200)

	err := Apply(&inv, decimal.NewFromInt(900))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExceedsDue))
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(200)))
	assert.True(t, inv.DueAmount.Equal(decimal.NewFromInt(800)))
}

func TestValidateReportsEveryBadEntry(t *testing.T) {
	_, _, err := Validate([]domain.PaymentEntry{
		{Amount: decimal.Zero, PaymentMode: "Cash"},
		{Amount: decimal.NewFromInt(10), PaymentMode: "Card"},
		{Amount: decimal.NewFromInt(10), PaymentMode: "Barter"},
	}, nil)
	require.Error(t, err)

	fields := apperr.FieldsOf(err)
	assert.Equal(t, "must be greater than 0", fields["payments[0].amount"])
	assert.Equal(t, "is required for Card payments", fields["payments[1].transaction_id"])
	assert.Contains(t, fields["payments[2].payment_mode"], "must be one of")
}

func TestValidateRejectsSubCentAmounts(t *testing.T) {
	_, _, err := Validate([]domain.PaymentEntry{
		{Amount: decimal.RequireFromString("0.004"), PaymentMode: "Cash"},
		{Amount: decimal.RequireFromString("100.005"), PaymentMode: "Cash"},
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	fields := apperr.FieldsOf(err)
	assert.Equal(t, "must have at most 2 decimal places", fields["payments[0].amount"])
	assert.Equal(t, "must have at most 2 decimal places", fields["payments[1].amount"])

	entries, total, err := Validate([]domain.PaymentEntry{
		{Amount: decimal.RequireFromString("100.500"), PaymentMode: "Cash"},
	}, nil)
	require.NoError(t, err)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, total.Equal(decimal.RequireFromString("100.50")))
}

func TestValidateRequiresEntriesAndMatchingDeclaredTotal(t *testing.T) {
	_, _, err := Validate(nil, nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	declared := decimal.NewFromInt(100)
	_, _, err = Validate([]domain.PaymentEntry{{Amount: decimal.NewFromInt(90), PaymentMode: "Cash"}}, &declared)
	require.Error(t, err)
	assert.Contains(t, apperr.FieldsOf(err), "total_amount")
}

func TestParseModeAcceptsSpellings(t *testing.T) {
	for _, raw := range []string{"Net Banking", "net_banking", "NETBANKING"} {
		mode, ok := ParseMode(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, domain.PaymentNetBanking, mode)
	}
	_, ok := ParseMode("")
	assert.False(t, ok)
}

func TestRecordsKeepSubmissionOrder(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := Records("inv_1", "admin", "settled", []domain.PaymentEntry{
		{Amount: decimal.NewFromInt(5), PaymentMode: domain.PaymentCash},
		{Amount: decimal.NewFromInt(7), PaymentMode: domain.PaymentCheque, TransactionID: "CHQ-9"},
	}, at)

	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Sequence)
	assert.Equal(t, 2, records[1].Sequence)
	assert.Equal(t, records[0].BatchID, records[1].BatchID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
	assert.Equal(t, "CHQ-9", records[1].TransactionID)
}
