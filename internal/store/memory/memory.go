package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"partsledger/internal/apperr"
	"partsledger/internal/catalog"
	"partsledger/internal/domain"
	"partsledger/internal/ledger"
	"partsledger/internal/store"
	"partsledger/internal/xid"
)

// Store keeps everything in maps behind one RWMutex. Each Repository call
// holds the write lock for its whole duration, which is what makes the
// callback methods atomic here.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	transactions    map[string]domain.InventoryTransaction
	returns         map[string]domain.ProductReturn
	invoices        map[string]domain.Invoice
	invoiceByNumber map[string]string
	payments        map[string][]domain.Payment
	customers       map[string]domain.Customer
	vehicles        map[string]domain.Vehicle
	suppliers       map[string]domain.Supplier
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	// paymentFault runs before each payment row is staged. Tests set it to
	// fail a submission part way through.
	paymentFault func(index int) error
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		transactions:    make(map[string]domain.InventoryTransaction),
		returns:         make(map[string]domain.ProductReturn),
		invoices:        make(map[string]domain.Invoice),
		invoiceByNumber: make(map[string]string),
		payments:        make(map[string][]domain.Payment),
		customers:       make(map[string]domain.Customer),
		vehicles:        make(map[string]domain.Vehicle),
		suppliers:       make(map[string]domain.Supplier),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo users and a small parts catalog for
// local development. Seed passwords come from SEED_ADMIN_PASSWORD and
// SEED_STAFF_PASSWORD when set.
func NewSeeded(logger *zap.Logger) *Store {
	s := New()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		if logger != nil {
			logger.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
		}
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			panic("memory store: hash seed password: " + err.Error())
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}

	seed := []domain.Product{
		{Brand: "Bosch", Model: "EC6", ProductName: "Dual Tone Horn", Category: "electrical", Barcode: "8901001000011", MRP: decimal.NewFromInt(650), SellingPrice: decimal.NewFromInt(585), StockQty: 24, MinStockLevel: 10, ModelCompatibility: []string{"Activa 6G", "Jupiter"}},
		{Brand: "Minda", Model: "R12", ProductName: "Flasher Relay", Category: "electrical", Barcode: "8901001000028", MRP: decimal.NewFromInt(180), SellingPrice: decimal.NewFromInt(160), StockQty: 6, MinStockLevel: 10, ModelCompatibility: []string{"Splendor Plus"}},
		{Brand: "Philips", Model: "H4", ProductName: "Headlamp Bulb", Category: "lighting", Barcode: "8901001000035", MRP: decimal.NewFromInt(420), SellingPrice: decimal.NewFromInt(399), StockQty: 0, MinStockLevel: 5, ModelCompatibility: []string{"Pulsar 150", "Apache RTR 160"}},
		{Brand: "TVS", Model: "Jupiter", ProductName: "Seat Cover", Category: "accessories", MRP: decimal.NewFromInt(900), SellingPrice: decimal.NewFromInt(750), StockQty: 15, MinStockLevel: 4, Variants: []domain.Variant{{Color: "black"}, {Color: "brown"}}},
	}
	for i, p := range seed {
		p.ID = xid.New("prd")
		p.Discount = catalog.Discount(p.MRP, p.SellingPrice)
		p.Version = 1
		p.CreatedAt = now.Add(time.Duration(i) * time.Second)
		p.UpdatedAt = p.CreatedAt
		ledger.Refresh(&p)
		s.products[p.ID] = p
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.Conflict("product %s already exists", product.ID)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Version = 1
	ledger.Refresh(&product)

	s.products[product.ID] = cloneProduct(product)
	return ptr(cloneProduct(product)), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	return ptr(cloneProduct(product)), nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, p.Status) {
			continue
		}
		if search != "" && !productMatches(p, search) {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(strings.ToLower(a.Brand), strings.ToLower(b.Brand)); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.ProductName), strings.ToLower(b.ProductName)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return limit(products, filter.Limit), nil
}

func productMatches(p domain.Product, search string) bool {
	for _, field := range []string{p.Brand, p.Model, p.ProductName, p.Barcode, p.ProductCode, p.Category} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (s *Store) MutateProduct(_ context.Context, id string, mutate store.ProductMutation) (*domain.Product, *domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[id]
	if !ok {
		return nil, nil, store.NotFound("product", id)
	}

	working := cloneProduct(current)
	txn, err := mutate(&working)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	working.Version = current.Version + 1
	working.UpdatedAt = now

	var saved *domain.InventoryTransaction
	if txn != nil {
		entry := stampTransaction(*txn, now)
		s.transactions[entry.ID] = entry
		saved = ptr(cloneTransaction(entry))
	}
	s.products[id] = working
	return ptr(cloneProduct(working)), saved, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.NotFound("product", id)
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CountProductReferences(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, txn := range s.transactions {
		if txn.ProductID == id {
			count++
		}
	}
	for _, ret := range s.returns {
		if ret.ProductID == id {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetInventoryTransaction(_ context.Context, id string) (*domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, store.NotFound("inventory transaction", id)
	}
	return ptr(cloneTransaction(txn)), nil
}

func (s *Store) ListInventoryTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryTransaction, 0, 64)
	for _, txn := range s.transactions {
		if filter.ProductID != "" && txn.ProductID != filter.ProductID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		result = append(result, cloneTransaction(txn))
	}
	slices.SortFunc(result, func(a, b domain.InventoryTransaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return limit(result, filter.Limit), nil
}

func (s *Store) DeleteInventoryTransaction(_ context.Context, id string, reverse store.TransactionReversal) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, store.NotFound("inventory transaction", id)
	}
	current, ok := s.products[txn.ProductID]
	if !ok {
		return nil, store.Conflict("product %s of transaction %s no longer exists", txn.ProductID, id)
	}

	working := cloneProduct(current)
	if err := reverse(&working, cloneTransaction(txn)); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.Version = current.Version + 1
	working.UpdatedAt = time.Now().UTC()

	delete(s.transactions, id)
	s.products[working.ID] = working
	return ptr(cloneProduct(working)), nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.ProductReturn) (*domain.ProductReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[ret.ProductID]; !ok {
		return nil, store.NotFound("product", ret.ProductID)
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if _, exists := s.returns[ret.ID]; exists {
		return nil, store.Conflict("return %s already exists", ret.ID)
	}
	now := time.Now().UTC()
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = now
	}
	ret.UpdatedAt = now
	ret.Version = 1

	s.returns[ret.ID] = cloneReturn(ret)
	return ptr(cloneReturn(ret)), nil
}

func (s *Store) GetReturn(_ context.Context, id string) (*domain.ProductReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returns[id]
	if !ok {
		return nil, store.NotFound("return", id)
	}
	return ptr(cloneReturn(ret)), nil
}

func (s *Store) ListReturns(_ context.Context, filter domain.ReturnFilter) ([]domain.ProductReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductReturn, 0, len(s.returns))
	for _, ret := range s.returns {
		if filter.Status != "" && ret.Status != filter.Status {
			continue
		}
		if filter.ProductID != "" && ret.ProductID != filter.ProductID {
			continue
		}
		result = append(result, cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.ProductReturn) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return limit(result, filter.Limit), nil
}

func (s *Store) ProcessReturn(_ context.Context, id string, decide store.ReturnDecision) (*domain.ProductReturn, *domain.Product, *domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentRet, ok := s.returns[id]
	if !ok {
		return nil, nil, nil, store.NotFound("return", id)
	}
	currentProduct, productExists := s.products[currentRet.ProductID]

	ret := cloneReturn(currentRet)
	var product *domain.Product
	if productExists {
		product = ptr(cloneProduct(currentProduct))
	}
	txn, err := decide(&ret, product)
	if err != nil {
		return nil, nil, nil, err
	}

	now := time.Now().UTC()
	ret.ID = currentRet.ID
	ret.Version = currentRet.Version + 1
	ret.UpdatedAt = now

	var saved *domain.InventoryTransaction
	switch {
	case txn != nil && product == nil:
		return nil, nil, nil, store.NotFound("product", currentRet.ProductID)
	case txn != nil:
		entry := stampTransaction(*txn, now)
		ret.TransactionID = entry.ID
		product.ID = currentProduct.ID
		product.Version = currentProduct.Version + 1
		product.UpdatedAt = now
		s.transactions[entry.ID] = entry
		s.products[product.ID] = *product
		saved = ptr(cloneTransaction(entry))
	case productExists:
		product = ptr(cloneProduct(currentProduct))
	}
	s.returns[ret.ID] = ret

	var result *domain.Product
	if product != nil {
		result = ptr(cloneProduct(*product))
	}
	return ptr(cloneReturn(ret)), result, saved, nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.ID == "" {
		invoice.ID = xid.New("inv")
	}
	if _, exists := s.invoices[invoice.ID]; exists {
		return nil, store.Conflict("invoice %s already exists", invoice.ID)
	}
	if _, taken := s.invoiceByNumber[invoice.InvoiceNumber]; taken {
		return nil, store.Conflict("invoice number %s is already used", invoice.InvoiceNumber)
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now
	invoice.Version = 1

	s.invoices[invoice.ID] = invoice
	s.invoiceByNumber[invoice.InvoiceNumber] = invoice.ID
	created := invoice
	return &created, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.NotFound("invoice", id)
	}
	return &invoice, nil
}

func (s *Store) ListInvoices(_ context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		if filter.CustomerID != "" && invoice.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && invoice.Status != filter.Status {
			continue
		}
		result = append(result, invoice)
	}
	slices.SortFunc(result, func(a, b domain.Invoice) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return limit(result, filter.Limit), nil
}

func (s *Store) RecordPayments(_ context.Context, invoiceID string, apply store.PaymentApplication) (*domain.Invoice, []domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.invoices[invoiceID]
	if !ok {
		return nil, nil, store.NotFound("invoice", invoiceID)
	}

	working := current
	rows, err := apply(&working)
	if err != nil {
		return nil, nil, err
	}

	// Stage every row first; nothing is visible until all of them are ready.
	staged := make([]domain.Payment, 0, len(rows))
	for i, row := range rows {
		if s.paymentFault != nil {
			if err := s.paymentFault(i); err != nil {
				return nil, nil, err
			}
		}
		if row.ID == "" {
			row.ID = xid.New("pay")
		}
		row.InvoiceID = invoiceID
		staged = append(staged, row)
	}

	working.ID = current.ID
	working.Version = current.Version + 1
	working.UpdatedAt = time.Now().UTC()
	s.payments[invoiceID] = append(s.payments[invoiceID], staged...)
	s.invoices[invoiceID] = working

	updated := working
	return &updated, slices.Clone(staged), nil
}

func (s *Store) ListPayments(_ context.Context, invoiceID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.invoices[invoiceID]; !ok {
		return nil, store.NotFound("invoice", invoiceID)
	}
	payments := slices.Clone(s.payments[invoiceID])
	slices.SortStableFunc(payments, func(a, b domain.Payment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.Sequence - b.Sequence
	})
	return payments, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.Conflict("customer %s already exists", customer.ID)
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.NotFound("customer", id)
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		if search != "" &&
			!strings.Contains(strings.ToLower(customer.FullName), search) &&
			!strings.Contains(customer.MobileNumber, search) {
			continue
		}
		result = append(result, customer)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		if c := strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return limit(result, filter.Limit), nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.NotFound("customer", customer.ID)
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.NotFound("customer", id)
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) CountCustomerReferences(_ context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, vehicle := range s.vehicles {
		if vehicle.CustomerID == id {
			count++
		}
	}
	for _, invoice := range s.invoices {
		if invoice.CustomerID == id {
			count++
		}
	}
	for _, ret := range s.returns {
		if ret.CustomerID == id {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateVehicle(_ context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[vehicle.CustomerID]; !ok {
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
	s.vehicles[vehicle.ID] = cloneVehicle(vehicle)
	return ptr(cloneVehicle(vehicle)), nil
}

func (s *Store) GetVehicle(_ context.Context, id string) (*domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicle, ok := s.vehicles[id]
	if !ok {
		return nil, store.NotFound("vehicle", id)
	}
	return ptr(cloneVehicle(vehicle)), nil
}

func (s *Store) ListVehicles(_ context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Vehicle, 0, len(s.vehicles))
	for _, vehicle := range s.vehicles {
		if filter.CustomerID != "" && vehicle.CustomerID != filter.CustomerID {
			continue
		}
		result = append(result, cloneVehicle(vehicle))
	}
	slices.SortFunc(result, func(a, b domain.Vehicle) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return limit(result, filter.Limit), nil
}

func (s *Store) DeleteVehicle(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[id]; !ok {
		return store.NotFound("vehicle", id)
	}
	delete(s.vehicles, id)
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.suppliers[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if filter.EntityType != "" && entry.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && entry.EntityID != filter.EntityID {
			continue
		}
		if !filter.From.IsZero() && entry.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !entry.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return limit(result, filter.Limit), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return apperr.Field("username", "username and password are required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.Conflict("username %s already exists", username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return apperr.Field("password", "is required")
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.NotFound("user", username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func stampTransaction(txn domain.InventoryTransaction, at time.Time) domain.InventoryTransaction {
	if txn.ID == "" {
		txn.ID = xid.New("itx")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = at
	}
	return cloneTransaction(txn)
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func ptr[T any](v T) *T {
	return &v
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.ModelCompatibility = slices.Clone(src.ModelCompatibility)
	dst.Variants = slices.Clone(src.Variants)
	dst.Images = slices.Clone(src.Images)
	return dst
}

func cloneTransaction(src domain.InventoryTransaction) domain.InventoryTransaction {
	dst := src
	if src.UnitCost != nil {
		cost := *src.UnitCost
		dst.UnitCost = &cost
	}
	return dst
}

func cloneReturn(src domain.ProductReturn) domain.ProductReturn {
	dst := src
	if src.ProcessedAt != nil {
		at := *src.ProcessedAt
		dst.ProcessedAt = &at
	}
	return dst
}

func cloneVehicle(src domain.Vehicle) domain.Vehicle {
	dst := src
	dst.SelectedParts = slices.Clone(src.SelectedParts)
	dst.WarrantyCards = slices.Clone(src.WarrantyCards)
	return dst
}
