// Package mongo implements store.Repository on MongoDB. Atomic operations
// run in multi-document transactions, so the server must be a replica set
// (a single-node one is enough). Mutable documents carry a version field that
// every update matches on, turning a lost update into a CONFLICT.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
	"partsledger/internal/store"
	"partsledger/internal/xid"
)

const (
	colProducts     = "products"
	colTransactions = "inventory_transactions"
	colReturns      = "product_returns"
	colInvoices     = "invoices"
	colPayments     = "payments"
	colCustomers    = "customers"
	colVehicles     = "vehicles"
	colSuppliers    = "suppliers"
	colAuditLogs    = "audit_logs"
	colUsers        = "app_users"
)

type Store struct {
	client *driver.Client
	db     *driver.Database
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := driver.Connect(connectCtx, options.Client().ApplyURI(uri).SetRegistry(NewRegistry()))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the unique and lookup indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]driver.IndexModel{
		colInvoices: {
			{Keys: bson.D{{Key: "invoice_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "invoice_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "sequence", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colProducts: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		colReturns: {
			{Keys: bson.D{{Key: "product_id", Value: 1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		},
		colVehicles: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) col(name string) *driver.Collection {
	return s.db.Collection(name)
}

// inTransaction runs fn in a session transaction. Errors returned by fn
// abort the transaction and come back unchanged.
func (s *Store) inTransaction(ctx context.Context, fn func(sc driver.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc driver.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return translate(err)
}

func (s *Store) findOne(ctx context.Context, collection string, filter any, out any, entity string, id string) error {
	err := s.col(collection).FindOne(ctx, filter).Decode(out)
	if err != nil {
		if errors.Is(err, driver.ErrNoDocuments) {
			return store.NotFound(entity, id)
		}
		return err
	}
	return nil
}

// replaceVersioned swaps doc in only if the stored version still equals
// version.
func replaceVersioned(ctx context.Context, c *driver.Collection, id string, version int64, doc any) error {
	res, err := c.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.Conflict("%s %s was modified concurrently, retry the request", strings.TrimSuffix(c.Name(), "s"), id)
	}
	return nil
}

func findOptions(limit int, sort bson.D) *options.FindOptions {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func findAll[T any](ctx context.Context, c *driver.Collection, filter any, opts *options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make([]T, 0, 32)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func containsPattern(search string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
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

	if _, err := s.col(colProducts).InsertOne(ctx, product); err != nil {
		return nil, translate(err)
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := s.findOne(ctx, colProducts, bson.M{"_id": id}, &product, "product", id); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := bson.M{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := containsPattern(search)
		query["$or"] = bson.A{
			bson.M{"brand": pattern},
			bson.M{"model": pattern},
			bson.M{"product_name": pattern},
			bson.M{"barcode": pattern},
			bson.M{"product_code": pattern},
			bson.M{"category": pattern},
		}
	}
	if filter.Category != "" {
		query["category"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(filter.Category) + "$", Options: "i"}
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}

	opts := findOptions(filter.Limit, bson.D{{Key: "brand", Value: 1}, {Key: "product_name", Value: 1}, {Key: "_id", Value: 1}}).
		SetCollation(&options.Collation{Locale: "en", Strength: 2})
	return findAll[domain.Product](ctx, s.col(colProducts), query, opts)
}

func (s *Store) MutateProduct(ctx context.Context, id string, mutate store.ProductMutation) (*domain.Product, *domain.InventoryTransaction, error) {
	var (
		updated domain.Product
		saved   *domain.InventoryTransaction
	)
	err := s.inTransaction(ctx, func(sc driver.SessionContext) error {
		var current domain.Product
		if err := s.findOne(sc, colProducts, bson.M{"_id": id}, &current, "product", id); err != nil {
			return err
		}

		working := current
		txn, err := mutate(&working)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		working.ID = current.ID
		working.CreatedAt = current.CreatedAt
		working.Version = current.Version + 1
		working.UpdatedAt = now
		if err := replaceVersioned(sc, s.col(colProducts), id, current.Version, working); err != nil {
			return err
		}

		saved = nil
		if txn != nil {
			entry := stampTransaction(*txn, now)
			if _, err := s.col(colTransactions).InsertOne(sc, entry); err != nil {
				return err
			}
			saved = &entry
		}
		updated = working
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &updated, saved, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.col(colProducts).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.NotFound("product", id)
	}
	return nil
}

func (s *Store) CountProductReferences(ctx context.Context, id string) (int, error) {
	txns, err := s.col(colTransactions).CountDocuments(ctx, bson.M{"product_id": id})
	if err != nil {
		return 0, err
	}
	returns, err := s.col(colReturns).CountDocuments(ctx, bson.M{"product_id": id})
	if err != nil {
		return 0, err
	}
	return int(txns + returns), nil
}

func (s *Store) GetInventoryTransaction(ctx context.Context, id string) (*domain.InventoryTransaction, error) {
	var txn domain.InventoryTransaction
	if err := s.findOne(ctx, colTransactions, bson.M{"_id": id}, &txn, "inventory transaction", id); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.InventoryTransaction, error) {
	query := bson.M{}
	if filter.ProductID != "" {
		query["product_id"] = filter.ProductID
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	opts := findOptions(filter.Limit, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return findAll[domain.InventoryTransaction](ctx, s.col(colTransactions), query, opts)
}

func (s *Store) DeleteInventoryTransaction(ctx context.Context, id string, reverse store.TransactionReversal) (*domain.Product, error) {
	var updated domain.Product
	err := s.inTransaction(ctx, func(sc driver.SessionContext) error {
		var txn domain.InventoryTransaction
		if err := s.findOne(sc, colTransactions, bson.M{"_id": id}, &txn, "inventory transaction", id); err != nil {
			return err
		}
		var current domain.Product
		if err := s.col(colProducts).FindOne(sc, bson.M{"_id": txn.ProductID}).Decode(&current); err != nil {
			if errors.Is(err, driver.ErrNoDocuments) {
				return store.Conflict("product %s of transaction %s no longer exists", txn.ProductID, id)
			}
			return err
		}

		working := current
		if err := reverse(&working, txn); err != nil {
			return err
		}
		working.ID = current.ID
		working.Version = current.Version + 1
		working.UpdatedAt = time.Now().UTC()
		if err := replaceVersioned(sc, s.col(colProducts), current.ID, current.Version, working); err != nil {
			return err
		}

		res, err := s.col(colTransactions).DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return store.Conflict("inventory transaction %s was deleted concurrently", id)
		}
		updated = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.ProductReturn) (*domain.ProductReturn, error) {
	count, err := s.col(colProducts).CountDocuments(ctx, bson.M{"_id": ret.ProductID})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, store.NotFound("product", ret.ProductID)
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	now := time.Now().UTC()
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = now
	}
	ret.UpdatedAt = now
	ret.Version = 1

	if _, err := s.col(colReturns).InsertOne(ctx, ret); err != nil {
		return nil, translate(err)
	}
	created := ret
	return &created, nil
}

func (s *Store) GetReturn(ctx context.Context, id string) (*domain.ProductReturn, error) {
	var ret domain.ProductReturn
	if err := s.findOne(ctx, colReturns, bson.M{"_id": id}, &ret, "return", id); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context, filter domain.ReturnFilter) ([]domain.ProductReturn, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.ProductID != "" {
		query["product_id"] = filter.ProductID
	}
	opts := findOptions(filter.Limit, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return findAll[domain.ProductReturn](ctx, s.col(colReturns), query, opts)
}

func (s *Store) ProcessReturn(ctx context.Context, id string, decide store.ReturnDecision) (*domain.ProductReturn, *domain.Product, *domain.InventoryTransaction, error) {
	var (
		updatedRet     domain.ProductReturn
		updatedProduct *domain.Product
		saved          *domain.InventoryTransaction
	)
	err := s.inTransaction(ctx, func(sc driver.SessionContext) error {
		var current domain.ProductReturn
		if err := s.findOne(sc, colReturns, bson.M{"_id": id}, &current, "return", id); err != nil {
			return err
		}
		var (
			product domain.Product
			working *domain.Product
		)
		err := s.findOne(sc, colProducts, bson.M{"_id": current.ProductID}, &product, "product", current.ProductID)
		switch {
		case err == nil:
			copied := product
			working = &copied
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}

		ret := current
		txn, err := decide(&ret, working)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		saved = nil
		switch {
		case txn != nil && working == nil:
			return store.NotFound("product", current.ProductID)
		case txn != nil:
			entry := stampTransaction(*txn, now)
			if _, err := s.col(colTransactions).InsertOne(sc, entry); err != nil {
				return err
			}
			working.ID = product.ID
			working.Version = product.Version + 1
			working.UpdatedAt = now
			if err := replaceVersioned(sc, s.col(colProducts), product.ID, product.Version, *working); err != nil {
				return err
			}
			ret.TransactionID = entry.ID
			saved = &entry
		case working != nil:
			*working = product
		}

		ret.ID = current.ID
		ret.Version = current.Version + 1
		ret.UpdatedAt = now
		if err := replaceVersioned(sc, s.col(colReturns), current.ID, current.Version, ret); err != nil {
			return err
		}
		updatedRet = ret
		updatedProduct = working
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return &updatedRet, updatedProduct, saved, nil
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

	if _, err := s.col(colInvoices).InsertOne(ctx, invoice); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return nil, store.Conflict("invoice number %s is already used", invoice.InvoiceNumber)
		}
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := s.findOne(ctx, colInvoices, bson.M{"_id": id}, &invoice, "invoice", id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	query := bson.M{}
	if filter.CustomerID != "" {
		query["customer_id"] = filter.CustomerID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := findOptions(filter.Limit, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return findAll[domain.Invoice](ctx, s.col(colInvoices), query, opts)
}

func (s *Store) RecordPayments(ctx context.Context, invoiceID string, apply store.PaymentApplication) (*domain.Invoice, []domain.Payment, error) {
	var (
		updated domain.Invoice
		saved   []domain.Payment
	)
	err := s.inTransaction(ctx, func(sc driver.SessionContext) error {
		var current domain.Invoice
		if err := s.findOne(sc, colInvoices, bson.M{"_id": invoiceID}, &current, "invoice", invoiceID); err != nil {
			return err
		}

		working := current
		rows, err := apply(&working)
		if err != nil {
			return err
		}

		docs := make([]any, 0, len(rows))
		for i := range rows {
			if rows[i].ID == "" {
				rows[i].ID = xid.New("pay")
			}
			rows[i].InvoiceID = invoiceID
			docs = append(docs, rows[i])
		}
		if len(docs) > 0 {
			if _, err := s.col(colPayments).InsertMany(sc, docs); err != nil {
				return err
			}
		}

		working.ID = current.ID
		working.Version = current.Version + 1
		working.UpdatedAt = time.Now().UTC()
		if err := replaceVersioned(sc, s.col(colInvoices), current.ID, current.Version, working); err != nil {
			return err
		}
		updated = working
		saved = rows
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &updated, saved, nil
}

func (s *Store) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	count, err := s.col(colInvoices).CountDocuments(ctx, bson.M{"_id": invoiceID})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, store.NotFound("invoice", invoiceID)
	}
	opts := findOptions(0, bson.D{{Key: "created_at", Value: 1}, {Key: "sequence", Value: 1}})
	return findAll[domain.Payment](ctx, s.col(colPayments), bson.M{"invoice_id": invoiceID}, opts)
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

	if _, err := s.col(colCustomers).InsertOne(ctx, customer); err != nil {
		return nil, translate(err)
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := s.findOne(ctx, colCustomers, bson.M{"_id": id}, &customer, "customer", id); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	query := bson.M{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := containsPattern(search)
		query["$or"] = bson.A{bson.M{"full_name": pattern}, bson.M{"mobile_number": pattern}}
	}
	opts := findOptions(filter.Limit, bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}}).
		SetCollation(&options.Collation{Locale: "en", Strength: 2})
	return findAll[domain.Customer](ctx, s.col(colCustomers), query, opts)
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	var existing domain.Customer
	if err := s.findOne(ctx, colCustomers, bson.M{"_id": customer.ID}, &existing, "customer", customer.ID); err != nil {
		return nil, err
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = time.Now().UTC()

	res, err := s.col(colCustomers).ReplaceOne(ctx, bson.M{"_id": customer.ID}, customer)
	if err != nil {
		return nil, translate(err)
	}
	if res.MatchedCount == 0 {
		return nil, store.NotFound("customer", customer.ID)
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.col(colCustomers).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.NotFound("customer", id)
	}
	return nil
}

func (s *Store) CountCustomerReferences(ctx context.Context, id string) (int, error) {
	total := 0
	for _, name := range []string{colVehicles, colInvoices, colReturns} {
		count, err := s.col(name).CountDocuments(ctx, bson.M{"customer_id": id})
		if err != nil {
			return 0, err
		}
		total += int(count)
	}
	return total, nil
}

func (s *Store) CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	count, err := s.col(colCustomers).CountDocuments(ctx, bson.M{"_id": vehicle.CustomerID})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, store.NotFound("customer", vehicle.CustomerID)
	}

	if vehicle.ID == "" {
		vehicle.ID = xid.New("veh")
	}
	now := time.Now().UTC()
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = now
	}
	vehicle.UpdatedAt = now

	if _, err := s.col(colVehicles).InsertOne(ctx, vehicle); err != nil {
		return nil, translate(err)
	}
	created := vehicle
	return &created, nil
}

func (s *Store) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	if err := s.findOne(ctx, colVehicles, bson.M{"_id": id}, &vehicle, "vehicle", id); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (s *Store) ListVehicles(ctx context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error) {
	query := bson.M{}
	if filter.CustomerID != "" {
		query["customer_id"] = filter.CustomerID
	}
	opts := findOptions(filter.Limit, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return findAll[domain.Vehicle](ctx, s.col(colVehicles), query, opts)
}

func (s *Store) DeleteVehicle(ctx context.Context, id string) error {
	res, err := s.col(colVehicles).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
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

	if _, err := s.col(colSuppliers).InsertOne(ctx, supplier); err != nil {
		return nil, translate(err)
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	opts := findOptions(0, bson.D{{Key: "created_at", Value: 1}, {Key: "name", Value: 1}})
	return findAll[domain.Supplier](ctx, s.col(colSuppliers), bson.M{}, opts)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.col(colAuditLogs).InsertOne(ctx, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	query := bson.M{}
	if filter.EntityType != "" {
		query["entity_type"] = filter.EntityType
	}
	if filter.EntityID != "" {
		query["entity_id"] = filter.EntityID
	}
	window := bson.M{}
	if !filter.From.IsZero() {
		window["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		window["$lt"] = filter.To
	}
	if len(window) > 0 {
		query["created_at"] = window
	}
	opts := findOptions(filter.Limit, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return findAll[domain.AuditLog](ctx, s.col(colAuditLogs), query, opts)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return apperr.Field("username", "username and password are required")
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	if _, err := s.col(colUsers).InsertOne(ctx, user); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return store.Conflict("username %s already exists", username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	opts := findOptions(0, bson.D{{Key: "_id", Value: 1}})
	return findAll[domain.UserAccount](ctx, s.col(colUsers), bson.M{}, opts)
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return apperr.Field("password", "is required")
	}
	res, err := s.col(colUsers).UpdateOne(ctx, bson.M{"_id": username}, bson.M{"$set": bson.M{"password": password}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.NotFound("user", username)
	}
	return nil
}

func stampTransaction(txn domain.InventoryTransaction, at time.Time) domain.InventoryTransaction {
	if txn.ID == "" {
		txn.ID = xid.New("itx")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = at
	}
	return txn
}

// translate maps driver failures that callers can act on onto error kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	if driver.IsDuplicateKeyError(err) {
		return apperr.Wrap(apperr.KindConflict, err, "record already exists")
	}
	var cmdErr driver.CommandError
	if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
		return apperr.Wrap(apperr.KindConflict, err, "concurrent update, retry the request")
	}
	return err
}
