package catalog

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"partsledger/internal/domain"
)

func TestDiscount(t *testing.T) {
	assert.Equal(t, "25", Discount(decimal.NewFromInt(400), decimal.NewFromInt(300)).String())
	assert.Equal(t, "33.33", Discount(decimal.NewFromInt(300), decimal.NewFromInt(200)).String())
	assert.True(t, Discount(decimal.NewFromInt(100), decimal.NewFromInt(120)).IsZero())
	assert.True(t, Discount(decimal.Zero, decimal.NewFromInt(10)).IsZero())
}

func TestDuplicateKeyPrefersBarcode(t *testing.T) {
	a := domain.Product{Brand: "Bosch", Model: "X1", ProductName: "Horn", Barcode: " 8901 "}
	b := domain.Product{Brand: "Minda", Model: "Y2", ProductName: "Horn Relay", Barcode: "8901"}
	assert.Equal(t, DuplicateKey(a), DuplicateKey(b))

	c := domain.Product{Brand: "Bosch ", Model: "x1", ProductName: "Horn  Set"}
	d := domain.Product{Brand: "bosch", Model: "X1", ProductName: "horn set"}
	assert.Equal(t, DuplicateKey(c), DuplicateKey(d))
	assert.NotEqual(t, DuplicateKey(a), DuplicateKey(c))
}

func TestFindDuplicatesKeepsOldest(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: "p3", Brand: "Bosch", ProductName: "Horn", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "p1", Brand: "bosch", ProductName: "horn", CreatedAt: base},
		{ID: "p2", Brand: "Bosch", ProductName: "Horn", CreatedAt: base.Add(time.Hour)},
		{ID: "p4", Brand: "Minda", ProductName: "Relay", CreatedAt: base},
	}

	groups := FindDuplicates(products)
	require.Len(t, groups, 1)
	assert.Equal(t, "p1", groups[0].Keep.ID)
	require.Len(t, groups[0].Duplicates, 2)
	assert.Equal(t, "p2", groups[0].Duplicates[0].ID)
	assert.Equal(t, "p3", groups[0].Duplicates[1].ID)
}

func TestWriteThenReadXLSX(t *testing.T) {
	products := []domain.Product{{
		Brand:              "Bosch",
		Model:              "H4",
		ProductName:        "Headlamp Bulb",
		Category:           "lighting",
		Barcode:            "890100",
		MRP:                decimal.NewFromInt(450),
		SellingPrice:       decimal.RequireFromString("405.5"),
		Discount:           decimal.RequireFromString("9.89"),
		StockQty:           12,
		MinStockLevel:      4,
		Status:             domain.StatusInStock,
		ModelCompatibility: []string{"Activa 6G", "Jupiter"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, products))

	rows, err := ReadXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, rows[0].Err)

	req := rows[0].Request
	assert.Equal(t, 2, rows[0].Row)
	assert.Equal(t, "Headlamp Bulb", req.ProductName)
	assert.Equal(t, "lighting", req.Category)
	assert.True(t, req.SellingPrice.Equal(decimal.RequireFromString("405.5")))
	assert.Equal(t, 12, req.StockQty)
	require.NotNil(t, req.MinStockLevel)
	assert.Equal(t, 4, *req.MinStockLevel)
	assert.Equal(t, []string{"Activa 6G", "Jupiter"}, req.ModelCompatibility)
	assert.False(t, req.Discontinued)
}

func TestReadXLSXFlagsBadCellsPerRow(t *testing.T) {
	f := excelize.NewFile()
	header := []any{"Brand", "Product Name", "Category", "MRP", "Stock Qty", "Status"}
	good := []any{"Minda", "Relay", "electrical", "120", "3", "discontinued"}
	bad := []any{"Minda", "Switch", "electrical", "abc", "1.5", ""}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &good))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &bad))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadXLSX(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.NoError(t, rows[0].Err)
	assert.True(t, rows[0].Request.Discontinued)

	assert.Equal(t, 4, rows[1].Row)
	require.Error(t, rows[1].Err)
}

func TestReadXLSXRequiresColumns(t *testing.T) {
	f := excelize.NewFile()
	header := []any{"brand", "model"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := ReadXLSX(&buf)
	require.Error(t, err)
}
