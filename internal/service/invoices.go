package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"partsledger/internal/apperr"
	"partsledger/internal/cache"
	"partsledger/internal/domain"
	"partsledger/internal/payment"
	"partsledger/internal/validation"
	"partsledger/internal/xid"
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}

	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.VehicleID = strings.TrimSpace(req.VehicleID)

	paid := decimal.Zero
	if req.PaidAmount != nil {
		paid = *req.PaidAmount
	}

	fields := map[string]string{}
	checkMoney(fields, "total_amount", req.TotalAmount, true)
	checkMoney(fields, "paid_amount", paid, false)
	total := domain.RoundMoney(req.TotalAmount)
	paid = domain.RoundMoney(paid)
	if _, bad := fields["paid_amount"]; !bad && total.IsPositive() && paid.GreaterThan(total) {
		fields["paid_amount"] = "must not exceed total_amount"
	}
	if err := validation.Merge(validation.Struct(req), fieldsError(fields)); err != nil {
		return domain.Invoice{}, err
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
			return domain.Invoice{}, err
		}
	}
	if req.VehicleID != "" {
		vehicle, err := s.repo.GetVehicle(ctx, req.VehicleID)
		if err != nil {
			return domain.Invoice{}, err
		}
		if req.CustomerID != "" && vehicle.CustomerID != req.CustomerID {
			return domain.Invoice{}, apperr.Field("vehicle_id", "belongs to a different customer")
		}
	}

	number := req.InvoiceNumber
	if number == "" {
		number = invoiceNumber(time.Now().UTC())
	}

	invoice := domain.Invoice{
		InvoiceNumber: number,
		CustomerID:    req.CustomerID,
		VehicleID:     req.VehicleID,
		TotalAmount:   total,
		PaidAmount:    paid,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedBy:     actor.Username,
	}
	payment.Recompute(&invoice)

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logAudit(ctx, "invoice_create", "invoice", created.ID,
		fmt.Sprintf("number=%s,total=%s,paid=%s", created.InvoiceNumber, created.TotalAmount.StringFixed(domain.MoneyScale), created.PaidAmount.StringFixed(domain.MoneyScale)))
	return *created, nil
}

func invoiceNumber(at time.Time) string {
	return "INV-" + at.Format("20060102") + "-" + xid.Short(6)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.Status = domain.InvoiceStatus(strings.ToLower(strings.TrimSpace(string(filter.Status))))
	switch filter.Status {
	case "", domain.InvoiceUnpaid, domain.InvoicePartial, domain.InvoicePaid:
	default:
		return nil, apperr.Field("status", "must be one of: unpaid, partial, paid")
	}
	filter.Limit = clampLimit(filter.Limit, 100, 1000)
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if _, err := s.repo.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

// RecordPayment applies one submission of payment lines to an invoice. The
// lines and the new paid amount are committed together; a submission larger
// than the amount due is refused whole with EXCEEDS_DUE.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, req domain.RecordPaymentRequest) (domain.PaymentResult, error) {
	actor, err := requireStaff(ctx)
	if err != nil {
		return domain.PaymentResult{}, err
	}

	invoiceID = strings.TrimSpace(invoiceID)
	notes := strings.TrimSpace(req.Notes)
	entries, total, entriesErr := payment.Validate(req.Payments, req.TotalAmount)
	if err := validation.Merge(entriesErr, validation.Var("notes", notes, "max=1000")); err != nil {
		return domain.PaymentResult{}, err
	}

	var (
		invoice *domain.Invoice
		rows    []domain.Payment
	)
	err = s.withLock(ctx, cache.InvoiceKey(invoiceID), func() error {
		var err error
		invoice, rows, err = s.repo.RecordPayments(ctx, invoiceID, func(inv *domain.Invoice) ([]domain.Payment, error) {
			if err := payment.Apply(inv, total); err != nil {
				return nil, err
			}
			return payment.Records(inv.ID, actor.Username, notes, entries, time.Now().UTC()), nil
		})
		return err
	})
	if err != nil {
		return domain.PaymentResult{}, err
	}

	if invoice.Status == domain.InvoicePaid {
		s.logger.Info("invoice settled",
			zap.String("invoice_id", invoice.ID),
			zap.String("invoice_number", invoice.InvoiceNumber))
	}
	s.logAudit(ctx, "payment_record", "invoice", invoice.ID,
		fmt.Sprintf("lines=%d,total=%s,due=%s,status=%s", len(rows), total.StringFixed(domain.MoneyScale), invoice.DueAmount.StringFixed(domain.MoneyScale), invoice.Status))
	return domain.PaymentResult{Invoice: *invoice, Payments: rows}, nil
}
