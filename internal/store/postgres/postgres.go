package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
	"partsledger/internal/store"
	"partsledger/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// EnsureSchema creates any missing tables and indexes. Every statement is
// idempotent so it is safe to run on each start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const productColumns = `id, brand, model, product_name, COALESCE(product_code, ''), COALESCE(hsn_number, ''),
	COALESCE(barcode, ''), category, model_compatibility, COALESCE(warranty, ''), mrp, selling_price, discount,
	stock_qty, min_stock_level, status, variants, images, COALESCE(supplier_id, ''), version, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p        domain.Product
		compat   []byte
		variants []byte
		images   []byte
	)
	err := row.Scan(&p.ID, &p.Brand, &p.Model, &p.ProductName, &p.ProductCode, &p.HSNNumber,
		&p.Barcode, &p.Category, &compat, &p.Warranty, &p.MRP, &p.SellingPrice, &p.Discount,
		&p.StockQty, &p.MinStockLevel, &p.Status, &variants, &images, &p.SupplierID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if err := decodeJSON(compat, &p.ModelCompatibility); err != nil {
		return p, err
	}
	if err := decodeJSON(variants, &p.Variants); err != nil {
		return p, err
	}
	if err := decodeJSON(images, &p.Images); err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Version = 1

	compat, variants, images, err := productJSON(product)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, brand, model, product_name, product_code, hsn_number, barcode, category,
			model_compatibility, warranty, mrp, selling_price, discount, stock_qty, min_stock_level,
			status, variants, images, supplier_id, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`, product.ID, product.Brand, product.Model, product.ProductName, nullIfEmpty(product.ProductCode),
		nullIfEmpty(product.HSNNumber), nullIfEmpty(product.Barcode), product.Category, compat,
		nullIfEmpty(product.Warranty), product.MRP, product.SellingPrice, product.Discount, product.StockQty,
		product.MinStockLevel, product.Status, variants, images, nullIfEmpty(product.SupplierID),
		product.Version, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product", id)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var w where
	if search := strings.TrimSpace(filter.Search); search != "" {
		w.add(`(brand ILIKE $%[1]d OR model ILIKE $%[1]d OR product_name ILIKE $%[1]d OR barcode ILIKE $%[1]d
			OR product_code ILIKE $%[1]d OR category ILIKE $%[1]d)`, "%"+search+"%")
	}
	if filter.Category != "" {
		w.add(`lower(category) = lower($%d)`, filter.Category)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		w.add(`status = ANY($%d)`, statuses)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+w.clause()+
		` ORDER BY lower(brand), lower(product_name), id`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) MutateProduct(ctx context.Context, id string, mutate store.ProductMutation) (*domain.Product, *domain.InventoryTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.NotFound("product", id)
		}
		return nil, nil, err
	}

	working := current
	txn, err := mutate(&working)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	working.Version = current.Version + 1
	working.UpdatedAt = now
	if err := updateProduct(ctx, tx, working); err != nil {
		return nil, nil, err
	}

	var saved *domain.InventoryTransaction
	if txn != nil {
		entry := *txn
		if err := insertTransaction(ctx, tx, &entry, now); err != nil {
			return nil, nil, err
		}
		saved = &entry
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, translate(err)
	}
	return &working, saved, nil
}

func updateProduct(ctx context.Context, db execer, p domain.Product) error {
	compat, variants, images, err := productJSON(p)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		UPDATE products
		SET brand = $2, model = $3, product_name = $4, product_code = $5, hsn_number = $6, barcode = $7,
			category = $8, model_compatibility = $9, warranty = $10, mrp = $11, selling_price = $12,
			discount = $13, stock_qty = $14, min_stock_level = $15, status = $16, variants = $17,
			images = $18, supplier_id = $19, version = $20, updated_at = $21
		WHERE id = $1
	`, p.ID, p.Brand, p.Model, p.ProductName, nullIfEmpty(p.ProductCode), nullIfEmpty(p.HSNNumber),
		nullIfEmpty(p.Barcode), p.Category, compat, nullIfEmpty(p.Warranty), p.MRP, p.SellingPrice,
		p.Discount, p.StockQty, p.MinStockLevel, p.Status, variants, images, nullIfEmpty(p.SupplierID),
		p.Version, p.UpdatedAt)
	return translate(err)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound("product", id)
	}
	return nil
}

func (s *Store) CountProductReferences(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM inventory_transactions WHERE product_id = $1) +
			(SELECT count(*) FROM product_returns WHERE product_id = $1)
	`, id).Scan(&count)
	return count, err
}

const transactionColumns = `id, product_id, type, COALESCE(direction, ''), quantity, reason, previous_stock, new_stock,
	COALESCE(supplier_id, ''), COALESCE(batch_number, ''), unit_cost, COALESCE(warehouse_location, ''),
	COALESCE(notes, ''), COALESCE(return_id, ''), created_by, created_at`

func scanTransaction(row rowScanner) (domain.InventoryTransaction, error) {
	var (
		txn      domain.InventoryTransaction
		unitCost decimal.NullDecimal
	)
	err := row.Scan(&txn.ID, &txn.ProductID, &txn.Type, &txn.Direction, &txn.Quantity, &txn.Reason,
		&txn.PreviousStock, &txn.NewStock, &txn.SupplierID, &txn.BatchNumber, &unitCost,
		&txn.WarehouseLocation, &txn.Notes, &txn.ReturnID, &txn.CreatedBy, &txn.CreatedAt)
	if err != nil {
		return txn, err
	}
	if unitCost.Valid {
		cost := unitCost.Decimal
		txn.UnitCost = &cost
	}
	txn.CreatedAt = txn.CreatedAt.UTC()
	return txn, nil
}

func insertTransaction(ctx context.Context, db execer, txn *domain.InventoryTransaction, at time.Time) error {
	if txn.ID == "" {
		txn.ID = xid.New("itx")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = at
	}
	var unitCost decimal.NullDecimal
	if txn.UnitCost != nil {
		unitCost = decimal.NewNullDecimal(*txn.UnitCost)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory_transactions (
			id, product_id, type, direction, quantity, reason, previous_stock, new_stock, supplier_id,
			batch_number, unit_cost, warehouse_location, notes, return_id, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, txn.ID, txn.ProductID, txn.Type, nullIfEmpty(string(txn.Direction)), txn.Quantity, txn.Reason,
		txn.PreviousStock, txn.NewStock, nullIfEmpty(txn.SupplierID), nullIfEmpty(txn.BatchNumber), unitCost,
		nullIfEmpty(txn.WarehouseLocation), nullIfEmpty(txn.Notes), nullIfEmpty(txn.ReturnID), txn.CreatedBy, txn.CreatedAt)
	return translate(err)
}

func (s *Store) GetInventoryTransaction(ctx context.Context, id string) (*domain.InventoryTransaction, error) {
	txn, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("inventory transaction", id)
		}
		return nil, err
	}
	return &txn, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.InventoryTransaction, error) {
	var w where
	if filter.ProductID != "" {
		w.add(`product_id = $%d`, filter.ProductID)
	}
	if filter.Type != "" {
		w.add(`type = $%d`, string(filter.Type))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions`+w.clause()+
		` ORDER BY created_at DESC, id DESC`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.InventoryTransaction, 0, 64)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteInventoryTransaction(ctx context.Context, id string, reverse store.TransactionReversal) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	txn, err := scanTransaction(tx.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("inventory transaction", id)
		}
		return nil, err
	}
	current, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, txn.ProductID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Conflict("product %s of transaction %s no longer exists", txn.ProductID, id)
		}
		return nil, err
	}

	working := current
	if err := reverse(&working, txn); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.Version = current.Version + 1
	working.UpdatedAt = time.Now().UTC()
	if err := updateProduct(ctx, tx, working); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_transactions WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}
	return &working, nil
}

const returnColumns = `id, product_id, COALESCE(customer_id, ''), COALESCE(order_id, ''), quantity, reason, condition,
	refund_amount, restockable, status, return_date, COALESCE(notes, ''), COALESCE(transaction_id, ''),
	COALESCE(processed_by, ''), processed_at, version, created_at, updated_at`

func scanReturn(row rowScanner) (domain.ProductReturn, error) {
	var (
		ret         domain.ProductReturn
		processedAt sql.NullTime
	)
	err := row.Scan(&ret.ID, &ret.ProductID, &ret.CustomerID, &ret.OrderID, &ret.Quantity, &ret.Reason, &ret.Condition,
		&ret.RefundAmount, &ret.Restockable, &ret.Status, &ret.ReturnDate, &ret.Notes, &ret.TransactionID,
		&ret.ProcessedBy, &processedAt, &ret.Version, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		return ret, err
	}
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		ret.ProcessedAt = &at
	}
	ret.ReturnDate = ret.ReturnDate.UTC()
	ret.CreatedAt = ret.CreatedAt.UTC()
	ret.UpdatedAt = ret.UpdatedAt.UTC()
	return ret, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.ProductReturn) (*domain.ProductReturn, error) {
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	now := time.Now().UTC()
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = now
	}
	ret.UpdatedAt = now
	ret.Version = 1

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO product_returns (
			id, product_id, customer_id, order_id, quantity, reason, condition, refund_amount, restockable,
			status, return_date, notes, version, created_at, updated_at
		)
		SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
		WHERE EXISTS (SELECT 1 FROM products WHERE id = $2)
	`, ret.ID, ret.ProductID, nullIfEmpty(ret.CustomerID), nullIfEmpty(ret.OrderID), ret.Quantity, ret.Reason,
		ret.Condition, ret.RefundAmount, ret.Restockable, ret.Status, ret.ReturnDate, nullIfEmpty(ret.Notes),
		ret.Version, ret.CreatedAt, ret.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.NotFound("product", ret.ProductID)
	}

	created := ret
	return &created, nil
}

func (s *Store) GetReturn(ctx context.Context, id string) (*domain.ProductReturn, error) {
	ret, err := scanReturn(s.db.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM product_returns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("return", id)
		}
		return nil, err
	}
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]domain.ProductReturn, error) {
	var w where
	if filter.Status != "" {
		w.add(`status = $%d`, string(filter.Status))
	}
	if filter.ProductID != "" {
		w.add(`product_id = $%d`, filter.ProductID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+returnColumns+` FROM product_returns`+w.clause()+
		` ORDER BY created_at DESC, id DESC`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductReturn, 0, 32)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ProcessReturn(ctx context.Context, id string, decide store.ReturnDecision) (*domain.ProductReturn, *domain.Product, *domain.InventoryTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanReturn(tx.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM product_returns WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, store.NotFound("return", id)
		}
		return nil, nil, nil, err
	}
	var working *domain.Product
	product, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, current.ProductID))
	switch {
	case err == nil:
		copied := product
		working = &copied
	case !errors.Is(err, sql.ErrNoRows):
		return nil, nil, nil, err
	}

	ret := current
	txn, err := decide(&ret, working)
	if err != nil {
		return nil, nil, nil, err
	}

	now := time.Now().UTC()
	var saved *domain.InventoryTransaction
	switch {
	case txn != nil && working == nil:
		return nil, nil, nil, store.NotFound("product", current.ProductID)
	case txn != nil:
		entry := *txn
		if err := insertTransaction(ctx, tx, &entry, now); err != nil {
			return nil, nil, nil, err
		}
		working.ID = product.ID
		working.Version = product.Version + 1
		working.UpdatedAt = now
		if err := updateProduct(ctx, tx, *working); err != nil {
			return nil, nil, nil, err
		}
		ret.TransactionID = entry.ID
		saved = &entry
	case working != nil:
		*working = product
	}

	ret.ID = current.ID
	ret.Version = current.Version + 1
	ret.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		UPDATE product_returns
		SET restockable = $2, status = $3, notes = $4, transaction_id = $5, processed_by = $6,
			processed_at = $7, version = $8, updated_at = $9
		WHERE id = $1
	`, ret.ID, ret.Restockable, ret.Status, nullIfEmpty(ret.Notes), nullIfEmpty(ret.TransactionID),
		nullIfEmpty(ret.ProcessedBy), nullTime(ret.ProcessedAt), ret.Version, ret.UpdatedAt)
	if err != nil {
		return nil, nil, nil, translate(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, translate(err)
	}
	return &ret, working, saved, nil
}

const invoiceColumns = `id, invoice_number, COALESCE(customer_id, ''), COALESCE(vehicle_id, ''), total_amount,
	paid_amount, due_amount, status, COALESCE(notes, ''), version, created_by, created_at, updated_at`

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &inv.VehicleID, &inv.TotalAmount,
		&inv.PaidAmount, &inv.DueAmount, &inv.Status, &inv.Notes, &inv.Version, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, err
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now
	invoice.Version = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, invoice_number, customer_id, vehicle_id, total_amount, paid_amount, due_amount, status,
			notes, version, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, invoice.ID, invoice.InvoiceNumber, nullIfEmpty(invoice.CustomerID), nullIfEmpty(invoice.VehicleID),
		invoice.TotalAmount, invoice.PaidAmount, invoice.DueAmount, invoice.Status, nullIfEmpty(invoice.Notes),
		invoice.Version, invoice.CreatedBy, invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Conflict("invoice number %s is already used", invoice.InvoiceNumber)
		}
		return nil, translate(err)
	}

	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("invoice", id)
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	var w where
	if filter.CustomerID != "" {
		w.add(`customer_id = $%d`, filter.CustomerID)
	}
	if filter.Status != "" {
		w.add(`status = $%d`, string(filter.Status))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices`+w.clause()+
		` ORDER BY created_at DESC, id DESC`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Invoice, 0, 32)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) RecordPayments(ctx context.Context, invoiceID string, apply store.PaymentApplication) (*domain.Invoice, []domain.Payment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanInvoice(tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.NotFound("invoice", invoiceID)
		}
		return nil, nil, err
	}

	working := current
	rows, err := apply(&working)
	if err != nil {
		return nil, nil, err
	}

	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = xid.New("pay")
		}
		row.InvoiceID = invoiceID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (
				id, invoice_id, batch_id, sequence, amount, payment_mode, transaction_id, notes, received_by, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, row.ID, row.InvoiceID, row.BatchID, row.Sequence, row.Amount, row.PaymentMode,
			nullIfEmpty(row.TransactionID), nullIfEmpty(row.Notes), row.ReceivedBy, row.CreatedAt)
		if err != nil {
			return nil, nil, translate(err)
		}
	}

	working.ID = current.ID
	working.Version = current.Version + 1
	working.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET paid_amount = $2, due_amount = $3, status = $4, version = $5, updated_at = $6
		WHERE id = $1
	`, working.ID, working.PaidAmount, working.DueAmount, working.Status, working.Version, working.UpdatedAt)
	if err != nil {
		return nil, nil, translate(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, translate(err)
	}
	return &working, rows, nil
}

func (s *Store) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, invoiceID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.NotFound("invoice", invoiceID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, batch_id, sequence, amount, payment_mode, COALESCE(transaction_id, ''),
			COALESCE(notes, ''), received_by, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY created_at, sequence
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 8)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.BatchID, &p.Sequence, &p.Amount, &p.PaymentMode,
			&p.TransactionID, &p.Notes, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

const customerColumns = `id, full_name, mobile_number, COALESCE(alternative_number, ''), COALESCE(email, ''),
	COALESCE(address, ''), COALESCE(city, ''), COALESCE(taluka, ''), COALESCE(district, ''), COALESCE(state, ''),
	COALESCE(pin_code, ''), COALESCE(referral_source, ''), created_at, updated_at`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.FullName, &c.MobileNumber, &c.AlternativeNumber, &c.Email, &c.Address, &c.City,
		&c.Taluka, &c.District, &c.State, &c.PinCode, &c.ReferralSource, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, full_name, mobile_number, alternative_number, email, address, city, taluka, district,
			state, pin_code, referral_source, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, customer.ID, customer.FullName, customer.MobileNumber, nullIfEmpty(customer.AlternativeNumber),
		nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), nullIfEmpty(customer.City),
		nullIfEmpty(customer.Taluka), nullIfEmpty(customer.District), nullIfEmpty(customer.State),
		nullIfEmpty(customer.PinCode), nullIfEmpty(customer.ReferralSource), customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("customer", id)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	var w where
	if search := strings.TrimSpace(filter.Search); search != "" {
		w.add(`(full_name ILIKE $%[1]d OR mobile_number ILIKE $%[1]d)`, "%"+search+"%")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers`+w.clause()+
		` ORDER BY lower(full_name), id`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.UpdatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET full_name = $2, mobile_number = $3, alternative_number = $4, email = $5, address = $6, city = $7,
			taluka = $8, district = $9, state = $10, pin_code = $11, referral_source = $12, updated_at = $13
		WHERE id = $1
		RETURNING created_at
	`, customer.ID, customer.FullName, customer.MobileNumber, nullIfEmpty(customer.AlternativeNumber),
		nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), nullIfEmpty(customer.City),
		nullIfEmpty(customer.Taluka), nullIfEmpty(customer.District), nullIfEmpty(customer.State),
		nullIfEmpty(customer.PinCode), nullIfEmpty(customer.ReferralSource), customer.UpdatedAt).Scan(&customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("customer", customer.ID)
		}
		return nil, translate(err)
	}
	customer.CreatedAt = customer.CreatedAt.UTC()

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound("customer", id)
	}
	return nil
}

func (s *Store) CountCustomerReferences(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM vehicles WHERE customer_id = $1) +
			(SELECT count(*) FROM invoices WHERE customer_id = $1) +
			(SELECT count(*) FROM product_returns WHERE customer_id = $1)
	`, id).Scan(&count)
	return count, err
}

const vehicleColumns = `id, customer_id, vehicle_number, vehicle_brand, vehicle_model, COALESCE(custom_model, ''),
	COALESCE(variant, ''), COALESCE(color, ''), COALESCE(year_of_purchase, 0), vehicle_photo, is_new_vehicle,
	COALESCE(chassis_number, ''), selected_parts, warranty_cards, created_at, updated_at`

func scanVehicle(row rowScanner) (domain.Vehicle, error) {
	var (
		v        domain.Vehicle
		parts    []byte
		warranty []byte
	)
	err := row.Scan(&v.ID, &v.CustomerID, &v.VehicleNumber, &v.VehicleBrand, &v.VehicleModel, &v.CustomModel,
		&v.Variant, &v.Color, &v.YearOfPurchase, &v.VehiclePhoto, &v.IsNewVehicle, &v.ChassisNumber,
		&parts, &warranty, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return v, err
	}
	if err := decodeJSON(parts, &v.SelectedParts); err != nil {
		return v, err
	}
	if err := decodeJSON(warranty, &v.WarrantyCards); err != nil {
		return v, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, nil
}

func (s *Store) CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	if vehicle.ID == "" {
		vehicle.ID = xid.New("veh")
	}
	now := time.Now().UTC()
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = now
	}
	vehicle.UpdatedAt = now

	parts, err := encodeJSON(vehicle.SelectedParts)
	if err != nil {
		return nil, err
	}
	warranty, err := encodeJSON(vehicle.WarrantyCards)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vehicles (
			id, customer_id, vehicle_number, vehicle_brand, vehicle_model, custom_model, variant, color,
			year_of_purchase, vehicle_photo, is_new_vehicle, chassis_number, selected_parts, warranty_cards,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, vehicle.ID, vehicle.CustomerID, vehicle.VehicleNumber, vehicle.VehicleBrand, vehicle.VehicleModel,
		nullIfEmpty(vehicle.CustomModel), nullIfEmpty(string(vehicle.Variant)), nullIfEmpty(vehicle.Color),
		nullIfZero(vehicle.YearOfPurchase), vehicle.VehiclePhoto, vehicle.IsNewVehicle,
		nullIfEmpty(vehicle.ChassisNumber), parts, warranty, vehicle.CreatedAt, vehicle.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.NotFound("customer", vehicle.CustomerID)
		}
		return nil, translate(err)
	}

	created := vehicle
	return &created, nil
}

func (s *Store) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	v, err := scanVehicle(s.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("vehicle", id)
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVehicles(ctx context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error) {
	var w where
	if filter.CustomerID != "" {
		w.add(`customer_id = $%d`, filter.CustomerID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles`+w.clause()+
		` ORDER BY created_at DESC, id`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Vehicle, 0, 16)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteVehicle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound("vehicle", id)
	}
	return nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, apperr.Field("name", "is required")
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, supplier.Phone, nullIfEmpty(supplier.Email), nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}

	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, COALESCE(email, ''), COALESCE(address, ''), created_at
		FROM suppliers
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.Email, &supplier.Address, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	var w where
	if filter.EntityType != "" {
		w.add(`entity_type = $%d`, filter.EntityType)
	}
	if filter.EntityID != "" {
		w.add(`entity_id = $%d`, filter.EntityID)
	}
	if !filter.From.IsZero() {
		w.add(`created_at >= $%d`, filter.From)
	}
	if !filter.To.IsZero() {
		w.add(`created_at < $%d`, filter.To)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs`+w.clause()+`
		ORDER BY created_at DESC, id DESC`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return apperr.Field("username", "username and password are required")
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Conflict("username %s already exists", username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return apperr.Field("password", "is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound("user", username)
	}
	return nil
}

// where accumulates filter conditions. Each condition is a format string
// whose verbs receive the placeholder index of its argument.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) limit(n int) string {
	if n < 1 {
		return ""
	}
	w.args = append(w.args, n)
	return fmt.Sprintf(" LIMIT $%d", len(w.args))
}

func productJSON(p domain.Product) (string, string, string, error) {
	compat, err := encodeJSON(p.ModelCompatibility)
	if err != nil {
		return "", "", "", err
	}
	variants, err := encodeJSON(p.Variants)
	if err != nil {
		return "", "", "", err
	}
	images, err := encodeJSON(p.Images)
	if err != nil {
		return "", "", "", err
	}
	return compat, variants, images, nil
}

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return "[]", nil
	}
	return string(raw), nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// translate maps constraint and serialization failures onto error kinds the
// service layer understands. Anything else passes through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return apperr.Wrap(apperr.KindConflict, err, "record already exists")
	case "23503":
		return apperr.Wrap(apperr.KindConflict, err, "record is referenced by other records")
	case "23514":
		return apperr.Wrap(apperr.KindInvalidState, err, "write violates %s", pgErr.ConstraintName)
	case "40001", "40P01":
		return apperr.Wrap(apperr.KindConflict, err, "concurrent update, retry the request")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfZero(val int) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
