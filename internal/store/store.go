package store

import (
	"context"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
)

// ProductMutation edits a locked product in place. It returns the ledger
// entry to append alongside the product write, or nil when stock did not
// move. Returning an error aborts the whole write.
type ProductMutation func(product *domain.Product) (*domain.InventoryTransaction, error)

// TransactionReversal undoes txn on the locked product.
type TransactionReversal func(product *domain.Product, txn domain.InventoryTransaction) error

// ReturnDecision settles a locked return against its locked product and
// returns the compensating ledger entry, if any. product is nil when the
// returned product has since been deleted; a decision that still produces a
// ledger entry then fails with NOT_FOUND.
type ReturnDecision func(ret *domain.ProductReturn, product *domain.Product) (*domain.InventoryTransaction, error)

// PaymentApplication applies a submission to the locked invoice and returns
// the payment rows to persist with it.
type PaymentApplication func(invoice *domain.Invoice) ([]domain.Payment, error)

// Repository is implemented by the memory, postgres and mongo stores. Every
// method that takes a callback runs it inside one atomic unit: either all of
// its writes land or none do, and concurrent callers on the same entity are
// serialised.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	MutateProduct(ctx context.Context, id string, mutate ProductMutation) (*domain.Product, *domain.InventoryTransaction, error)
	DeleteProduct(ctx context.Context, id string) error
	CountProductReferences(ctx context.Context, id string) (int, error)

	GetInventoryTransaction(ctx context.Context, id string) (*domain.InventoryTransaction, error)
	ListInventoryTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.InventoryTransaction, error)
	DeleteInventoryTransaction(ctx context.Context, id string, reverse TransactionReversal) (*domain.Product, error)

	CreateReturn(ctx context.Context, ret domain.ProductReturn) (*domain.ProductReturn, error)
	GetReturn(ctx context.Context, id string) (*domain.ProductReturn, error)
	ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]domain.ProductReturn, error)
	ProcessReturn(ctx context.Context, id string, decide ReturnDecision) (*domain.ProductReturn, *domain.Product, *domain.InventoryTransaction, error)

	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error)
	RecordPayments(ctx context.Context, invoiceID string, apply PaymentApplication) (*domain.Invoice, []domain.Payment, error)
	ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	CountCustomerReferences(ctx context.Context, id string) (int, error)

	CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error)
	ListVehicles(ctx context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// NotFound builds the NOT_FOUND error every implementation returns for a
// missing entity.
func NotFound(entity string, id string) error {
	return apperr.New(apperr.KindNotFound, "%s %s not found", entity, id)
}

// Conflict builds a CONFLICT error.
func Conflict(format string, args ...any) error {
	return apperr.New(apperr.KindConflict, format, args...)
}
