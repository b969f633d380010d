package catalog

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName       = "Sheet1"
)

var ExportColumns = []string{
	"brand", "model", "productName", "category", "barcode", "mrp", "sellingPrice", "discount",
	"stockQty", "minStockLevel", "warranty", "status", "modelCompatibility",
}

// WriteXLSX renders products as a single-sheet workbook with a header row.
func WriteXLSX(w io.Writer, products []domain.Product) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := make([]any, 0, len(ExportColumns))
	for _, col := range ExportColumns {
		header = append(header, col)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	for i, p := range products {
		row := []any{
			p.Brand,
			p.Model,
			p.ProductName,
			p.Category,
			p.Barcode,
			p.MRP.InexactFloat64(),
			p.SellingPrice.InexactFloat64(),
			p.Discount.InexactFloat64(),
			p.StockQty,
			p.MinStockLevel,
			p.Warranty,
			string(p.Status),
			strings.Join(p.ModelCompatibility, ", "),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// ImportRow is one parsed data row. Row is the 1-based spreadsheet row number.
type ImportRow struct {
	Row     int
	Request domain.ProductCreateRequest
	Err     error
}

// ReadXLSX parses the first sheet of a workbook laid out like WriteXLSX.
// Header names are matched loosely ("productName", "product_name" and
// "Product Name" are the same column). Rows that cannot be parsed carry Err
// instead of aborting the whole file.
func ReadXLSX(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "file is not a readable xlsx workbook")
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperr.Field("file", "spreadsheet is empty")
	}

	columns := make(map[string]int, len(rows[0]))
	for idx, name := range rows[0] {
		columns[columnKey(name)] = idx
	}
	missing := make([]string, 0)
	for _, required := range []string{"brand", "productname", "category"} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Field("file", "missing columns: "+strings.Join(missing, ", "))
	}

	parsed := make([]ImportRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if isBlank(cells) {
			continue
		}
		get := func(key string) string {
			idx, ok := columns[key]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		req, rowErr := rowRequest(get)
		parsed = append(parsed, ImportRow{Row: i + 2, Request: req, Err: rowErr})
	}
	return parsed, nil
}

func rowRequest(get func(string) string) (domain.ProductCreateRequest, error) {
	req := domain.ProductCreateRequest{
		Brand:       get("brand"),
		Model:       get("model"),
		ProductName: get("productname"),
		Category:    get("category"),
		Barcode:     get("barcode"),
		Warranty:    get("warranty"),
	}
	fields := map[string]string{}

	if raw := get("mrp"); raw != "" {
		mrp, err := decimal.NewFromString(raw)
		if err != nil {
			fields["mrp"] = "must be a number"
		}
		req.MRP = mrp
	}
	if raw := get("sellingprice"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			fields["selling_price"] = "must be a number"
		}
		req.SellingPrice = price
	}
	if raw := get("discount"); raw != "" {
		discount, err := decimal.NewFromString(raw)
		if err != nil {
			fields["discount"] = "must be a number"
		} else {
			req.Discount = &discount
		}
	}
	if raw := get("stockqty"); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			fields["stock_qty"] = "must be a whole number"
		}
		req.StockQty = qty
	}
	if raw := get("minstocklevel"); raw != "" {
		level, err := strconv.Atoi(raw)
		if err != nil {
			fields["min_stock_level"] = "must be a whole number"
		} else {
			req.MinStockLevel = &level
		}
	}
	if strings.EqualFold(get("status"), string(domain.StatusDiscontinued)) {
		req.Discontinued = true
	}
	for _, item := range strings.Split(get("modelcompatibility"), ",") {
		if item = strings.TrimSpace(item); item != "" {
			req.ModelCompatibility = append(req.ModelCompatibility, item)
		}
	}

	if len(fields) > 0 {
		return req, apperr.Validation(fields)
	}
	return req, nil
}

func columnKey(name string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(name)))
}

func isBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ErrNotXLSX rejects uploads with another extension.
var ErrNotXLSX = apperr.Field("file", "only .xlsx files are accepted")
