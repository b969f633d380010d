package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "unpaid"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
)

type PaymentMode string

const (
	PaymentUPI        PaymentMode = "UPI"
	PaymentCash       PaymentMode = "Cash"
	PaymentCard       PaymentMode = "Card"
	PaymentNetBanking PaymentMode = "Net Banking"
	PaymentCheque     PaymentMode = "Cheque"
)

var PaymentModes = []PaymentMode{PaymentUPI, PaymentCash, PaymentCard, PaymentNetBanking, PaymentCheque}

type Invoice struct {
	ID            string          `json:"id" bson:"_id"`
	InvoiceNumber string          `json:"invoice_number" bson:"invoice_number"`
	CustomerID    string          `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	VehicleID     string          `json:"vehicle_id,omitempty" bson:"vehicle_id,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount" bson:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount" bson:"paid_amount"`
	DueAmount     decimal.Decimal `json:"due_amount" bson:"due_amount"`
	Status        InvoiceStatus   `json:"status" bson:"status"`
	Notes         string          `json:"notes,omitempty" bson:"notes,omitempty"`
	Version       int64           `json:"version" bson:"version"`
	CreatedBy     string          `json:"created_by" bson:"created_by"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" bson:"updated_at"`
}

// Payment is one immutable line of a payment submission.
type Payment struct {
	ID            string          `json:"id" bson:"_id"`
	InvoiceID     string          `json:"invoice_id" bson:"invoice_id"`
	BatchID       string          `json:"batch_id" bson:"batch_id"`
	Sequence      int             `json:"sequence" bson:"sequence"`
	Amount        decimal.Decimal `json:"amount" bson:"amount"`
	PaymentMode   PaymentMode     `json:"payment_mode" bson:"payment_mode"`
	TransactionID string          `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	Notes         string          `json:"notes,omitempty" bson:"notes,omitempty"`
	ReceivedBy    string          `json:"received_by" bson:"received_by"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
}

type InvoiceCreateRequest struct {
	InvoiceNumber string           `json:"invoice_number" validate:"max=40"`
	CustomerID    string           `json:"customer_id" validate:"max=80"`
	VehicleID     string           `json:"vehicle_id" validate:"max=80"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	PaidAmount    *decimal.Decimal `json:"paid_amount,omitempty"`
	Notes         string           `json:"notes" validate:"max=1000"`
}

type PaymentEntry struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMode   PaymentMode     `json:"payment_mode" validate:"required"`
	TransactionID string          `json:"transaction_id" validate:"max=120"`
}

// RecordPaymentRequest is one payment submission. TotalAmount is optional and,
// when sent, must match the sum of the entries.
type RecordPaymentRequest struct {
	Payments    []PaymentEntry   `json:"payments" validate:"required,min=1,dive"`
	Notes       string           `json:"notes" validate:"max=1000"`
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
}

type InvoiceFilter struct {
	CustomerID string
	Status     InvoiceStatus
	Limit      int
}

type PaymentResult struct {
	Invoice  Invoice   `json:"invoice"`
	Payments []Payment `json:"payments"`
}
