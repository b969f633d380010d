package httpapi

import (
	"bytes"
	"net/http"
	"strings"

	"partsledger/internal/apperr"
	"partsledger/internal/catalog"
	"partsledger/internal/domain"
)

const maxUploadBytes = 10 << 20

func productFilterFromQuery(r *http.Request) domain.ProductFilter {
	query := r.URL.Query()
	filter := domain.ProductFilter{
		Search:   query.Get("search"),
		Category: query.Get("category"),
		Limit:    parsePositiveLimit(query.Get("limit"), 200, 1000),
	}
	for _, raw := range strings.Split(query.Get("status"), ",") {
		if status := strings.ToLower(strings.TrimSpace(raw)); status != "" {
			filter.Statuses = append(filter.Statuses, domain.ProductStatus(status))
		}
	}
	return filter
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context(), productFilterFromQuery(r))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r, "/api/v1/products/")
	if id == "" || action != "" {
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown product path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		updated, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		confirm, err := parseConfirm(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if err := a.service.DeleteProduct(r.Context(), id, confirm); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	products, err := a.service.LowStockProducts(r.Context(), parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

// handleProductImport accepts either a JSON body {"products": [...]} or a
// multipart upload whose "file" part is an .xlsx workbook.
func (a *API) handleProductImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var req domain.ProductImportRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		result, err := a.service.ImportProducts(r.Context(), req.Products)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.fail(w, r, apperr.Wrap(apperr.KindValidation, err, "invalid multipart upload"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, apperr.Field("file", "an .xlsx file is required"))
		return
	}
	defer file.Close()

	rows, err := catalog.ReadXLSX(file)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	result, err := a.service.ImportProductRows(r.Context(), rows)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleProductExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	var buf bytes.Buffer
	if err := a.service.ExportProducts(r.Context(), &buf, productFilterFromQuery(r)); err != nil {
		a.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", catalog.XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="products.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (a *API) handleProductDuplicates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := a.service.FindDuplicateProducts(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
	case http.MethodDelete:
		confirm, err := parseConfirm(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		result, err := a.service.DeleteDuplicateProducts(r.Context(), confirm)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		txns, err := a.service.ListTransactions(r.Context(), domain.TransactionFilter{
			ProductID: query.Get("product_id"),
			Type:      domain.TransactionType(query.Get("type")),
			Limit:     parsePositiveLimit(query.Get("limit"), 100, 1000),
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
	case http.MethodPost:
		var req domain.InventoryTransactionRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		result, err := a.service.ApplyTransaction(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r, "/api/v1/inventory/transactions/")
	if id == "" || action != "" {
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown transaction path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		txn, err := a.service.GetTransaction(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transaction": txn})
	case http.MethodDelete:
		product, err := a.service.DeleteTransaction(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id, "product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReturns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		returns, err := a.service.ListReturns(r.Context(), domain.ReturnFilter{
			Status:    domain.ReturnStatus(query.Get("status")),
			ProductID: query.Get("product_id"),
			Limit:     parsePositiveLimit(query.Get("limit"), 100, 1000),
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"returns": returns})
	case http.MethodPost:
		var req domain.ProductReturnCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		ret, err := a.service.CreateReturn(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReturnActions(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r, "/api/v1/returns/")
	if id == "" {
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown return path"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		ret, err := a.service.GetReturn(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"return": ret})
	case action == "process" && r.Method == http.MethodPost:
		var req domain.ProcessReturnRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		result, err := a.service.ProcessReturn(r.Context(), id, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case action == "" || action == "process":
		writeMethodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown return action %q", action))
	}
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		invoices, err := a.service.ListInvoices(r.Context(), domain.InvoiceFilter{
			CustomerID: query.Get("customer_id"),
			Status:     domain.InvoiceStatus(query.Get("status")),
			Limit:      parsePositiveLimit(query.Get("limit"), 100, 1000),
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
	case http.MethodPost:
		var req domain.InvoiceCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		invoice, err := a.service.CreateInvoice(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoiceActions(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r, "/api/v1/invoices/")
	if id == "" {
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown invoice path"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		invoice, err := a.service.GetInvoice(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
	case action == "payments" && r.Method == http.MethodGet:
		payments, err := a.service.ListPayments(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	case action == "payments" && r.Method == http.MethodPost:
		var req domain.RecordPaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		result, err := a.service.RecordPayment(r.Context(), id, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case action == "" || action == "payments":
		writeMethodNotAllowed(w)
	default:
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown invoice action %q", action))
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		customers, err := a.service.ListCustomers(r.Context(), domain.CustomerFilter{
			Search: query.Get("search"),
			Limit:  parsePositiveLimit(query.Get("limit"), 100, 1000),
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r, "/api/v1/customers/")
	if id == "" || action != "" {
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown customer path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodPut:
		var req domain.CustomerRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		customer, err := a.service.UpdateCustomer(r.Context(), id, req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodDelete:
		if err := a.service.DeleteCustomer(r.Context(), id); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleVehicles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		vehicles, err := a.service.ListVehicles(r.Context(), domain.VehicleFilter{
			CustomerID: query.Get("customer_id"),
			Limit:      parsePositiveLimit(query.Get("limit"), 100, 1000),
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
	case http.MethodPost:
		var req domain.VehicleRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		vehicle, err := a.service.CreateVehicle(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"vehicle": vehicle})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleVehicleActions(w http.ResponseWriter, r *http.Request) {
	id, action := pathID(r, "/api/v1/vehicles/")
	if id == "" || action != "" {
		writeError(w, http.StatusNotFound, apperr.New(apperr.KindNotFound, "unknown vehicle path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		vehicle, err := a.service.GetVehicle(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vehicle": vehicle})
	case http.MethodDelete:
		if err := a.service.DeleteVehicle(r.Context(), id); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), domain.AuditFilter{
		EntityType: strings.TrimSpace(query.Get("entity_type")),
		EntityID:   strings.TrimSpace(query.Get("entity_id")),
		From:       from,
		To:         to,
		Limit:      parsePositiveLimit(query.Get("limit"), 100, 1000),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
