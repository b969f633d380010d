package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	StatusInStock      ProductStatus = "in_stock"
	StatusLowStock     ProductStatus = "low_stock"
	StatusOutOfStock   ProductStatus = "out_of_stock"
	StatusDiscontinued ProductStatus = "discontinued"
)

const DefaultMinStockLevel = 10

type Variant struct {
	Size  string `json:"size,omitempty" bson:"size,omitempty" validate:"max=60"`
	Color string `json:"color,omitempty" bson:"color,omitempty" validate:"max=60"`
}

type Product struct {
	ID                 string          `json:"id" bson:"_id"`
	Brand              string          `json:"brand" bson:"brand"`
	Model              string          `json:"model" bson:"model"`
	ProductName        string          `json:"product_name" bson:"product_name"`
	ProductCode        string          `json:"product_code,omitempty" bson:"product_code,omitempty"`
	HSNNumber          string          `json:"hsn_number,omitempty" bson:"hsn_number,omitempty"`
	Barcode            string          `json:"barcode,omitempty" bson:"barcode,omitempty"`
	Category           string          `json:"category" bson:"category"`
	ModelCompatibility []string        `json:"model_compatibility" bson:"model_compatibility"`
	Warranty           string          `json:"warranty,omitempty" bson:"warranty,omitempty"`
	MRP                decimal.Decimal `json:"mrp" bson:"mrp"`
	SellingPrice       decimal.Decimal `json:"selling_price" bson:"selling_price"`
	Discount           decimal.Decimal `json:"discount" bson:"discount"`
	StockQty           int             `json:"stock_qty" bson:"stock_qty"`
	MinStockLevel      int             `json:"min_stock_level" bson:"min_stock_level"`
	Status             ProductStatus   `json:"status" bson:"status"`
	Variants           []Variant       `json:"variants" bson:"variants"`
	Images             []string        `json:"images,omitempty" bson:"images,omitempty"`
	SupplierID         string          `json:"supplier_id,omitempty" bson:"supplier_id,omitempty"`
	Version            int64           `json:"version" bson:"version"`
	CreatedAt          time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" bson:"updated_at"`
}

type ProductCreateRequest struct {
	Brand              string           `json:"brand" validate:"required,max=120"`
	Model              string           `json:"model" validate:"max=120"`
	ProductName        string           `json:"product_name" validate:"required,max=200"`
	ProductCode        string           `json:"product_code" validate:"max=80"`
	HSNNumber          string           `json:"hsn_number" validate:"max=40"`
	Barcode            string           `json:"barcode" validate:"max=80"`
	Category           string           `json:"category" validate:"required,max=120"`
	ModelCompatibility []string         `json:"model_compatibility" validate:"dive,max=120"`
	Warranty           string           `json:"warranty" validate:"max=120"`
	MRP                decimal.Decimal  `json:"mrp"`
	SellingPrice       decimal.Decimal  `json:"selling_price"`
	Discount           *decimal.Decimal `json:"discount,omitempty"`
	StockQty           int              `json:"stock_qty" validate:"gte=0"`
	MinStockLevel      *int             `json:"min_stock_level,omitempty" validate:"omitempty,gte=0"`
	Discontinued       bool             `json:"discontinued"`
	Variants           []Variant        `json:"variants" validate:"dive"`
	Images             []string         `json:"images" validate:"dive,datauri|base64"`
	SupplierID         string           `json:"supplier_id" validate:"max=80"`
}

// ProductUpdateRequest is a partial update; nil fields are left untouched.
type ProductUpdateRequest struct {
	Brand              *string          `json:"brand,omitempty" validate:"omitempty,max=120"`
	Model              *string          `json:"model,omitempty" validate:"omitempty,max=120"`
	ProductName        *string          `json:"product_name,omitempty" validate:"omitempty,max=200"`
	ProductCode        *string          `json:"product_code,omitempty" validate:"omitempty,max=80"`
	HSNNumber          *string          `json:"hsn_number,omitempty" validate:"omitempty,max=40"`
	Barcode            *string          `json:"barcode,omitempty" validate:"omitempty,max=80"`
	Category           *string          `json:"category,omitempty" validate:"omitempty,max=120"`
	ModelCompatibility *[]string        `json:"model_compatibility,omitempty"`
	Warranty           *string          `json:"warranty,omitempty" validate:"omitempty,max=120"`
	MRP                *decimal.Decimal `json:"mrp,omitempty"`
	SellingPrice       *decimal.Decimal `json:"selling_price,omitempty"`
	Discount           *decimal.Decimal `json:"discount,omitempty"`
	StockQty           *int             `json:"stock_qty,omitempty" validate:"omitempty,gte=0"`
	MinStockLevel      *int             `json:"min_stock_level,omitempty" validate:"omitempty,gte=0"`
	Discontinued       *bool            `json:"discontinued,omitempty"`
	Variants           *[]Variant       `json:"variants,omitempty"`
	Images             *[]string        `json:"images,omitempty"`
	SupplierID         *string          `json:"supplier_id,omitempty" validate:"omitempty,max=80"`
}

type ProductUpdateResult struct {
	Product     Product               `json:"product"`
	Transaction *InventoryTransaction `json:"transaction,omitempty"`
}

type ProductFilter struct {
	Search   string
	Category string
	Statuses []ProductStatus
	Limit    int
}

type ProductImportRequest struct {
	Products []ProductCreateRequest `json:"products"`
}

type ImportRowError struct {
	Row     int               `json:"row"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ImportResult struct {
	Imported int              `json:"imported"`
	Errors   []ImportRowError `json:"errors"`
}

type DuplicateGroup struct {
	Key        string    `json:"key"`
	Keep       Product   `json:"keep"`
	Duplicates []Product `json:"duplicates"`
}

type DeleteDuplicatesResult struct {
	DeletedCount    int      `json:"deleted_count"`
	DuplicateGroups int      `json:"duplicate_groups"`
	Skipped         []string `json:"skipped"`
}

type TransactionType string

const (
	TxIn         TransactionType = "IN"
	TxOut        TransactionType = "OUT"
	TxAdjustment TransactionType = "ADJUSTMENT"
	TxReturn     TransactionType = "RETURN"
)

type AdjustmentDirection string

const (
	AdjustIncrease AdjustmentDirection = "increase"
	AdjustDecrease AdjustmentDirection = "decrease"
)

type InventoryTransaction struct {
	ID                string              `json:"id" bson:"_id"`
	ProductID         string              `json:"product_id" bson:"product_id"`
	Type              TransactionType     `json:"type" bson:"type"`
	Direction         AdjustmentDirection `json:"direction,omitempty" bson:"direction,omitempty"`
	Quantity          int                 `json:"quantity" bson:"quantity"`
	Reason            string              `json:"reason" bson:"reason"`
	PreviousStock     int                 `json:"previous_stock" bson:"previous_stock"`
	NewStock          int                 `json:"new_stock" bson:"new_stock"`
	SupplierID        string              `json:"supplier_id,omitempty" bson:"supplier_id,omitempty"`
	BatchNumber       string              `json:"batch_number,omitempty" bson:"batch_number,omitempty"`
	UnitCost          *decimal.Decimal    `json:"unit_cost,omitempty" bson:"unit_cost,omitempty"`
	WarehouseLocation string              `json:"warehouse_location,omitempty" bson:"warehouse_location,omitempty"`
	Notes             string              `json:"notes,omitempty" bson:"notes,omitempty"`
	ReturnID          string              `json:"return_id,omitempty" bson:"return_id,omitempty"`
	CreatedBy         string              `json:"created_by" bson:"created_by"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
}

// Delta is the signed stock change this transaction recorded.
func (t InventoryTransaction) Delta() int {
	return t.NewStock - t.PreviousStock
}

type InventoryTransactionRequest struct {
	ProductID         string              `json:"product_id" validate:"required"`
	Type              TransactionType     `json:"type" validate:"required,oneof=IN OUT ADJUSTMENT RETURN"`
	Direction         AdjustmentDirection `json:"direction" validate:"omitempty,oneof=increase decrease"`
	Quantity          int                 `json:"quantity" validate:"required,gt=0"`
	Reason            string              `json:"reason" validate:"required,max=500"`
	SupplierID        string              `json:"supplier_id" validate:"max=80"`
	BatchNumber       string              `json:"batch_number" validate:"max=80"`
	UnitCost          *decimal.Decimal    `json:"unit_cost,omitempty"`
	WarehouseLocation string              `json:"warehouse_location" validate:"max=120"`
	Notes             string              `json:"notes" validate:"max=1000"`
}

type TransactionFilter struct {
	ProductID string
	Type      TransactionType
	Limit     int
}

type TransactionResult struct {
	Transaction InventoryTransaction `json:"transaction"`
	Product     Product              `json:"product"`
}

type ReturnCondition string

const (
	ConditionDefective      ReturnCondition = "defective"
	ConditionDamaged        ReturnCondition = "damaged"
	ConditionWrongItem      ReturnCondition = "wrong_item"
	ConditionNotAsDescribed ReturnCondition = "not_as_described"
	ConditionOther          ReturnCondition = "other"
)

type ReturnStatus string

const (
	ReturnPending   ReturnStatus = "pending"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnProcessed ReturnStatus = "processed"
)

type ProductReturn struct {
	ID            string          `json:"id" bson:"_id"`
	ProductID     string          `json:"product_id" bson:"product_id"`
	CustomerID    string          `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	OrderID       string          `json:"order_id,omitempty" bson:"order_id,omitempty"`
	Quantity      int             `json:"quantity" bson:"quantity"`
	Reason        string          `json:"reason" bson:"reason"`
	Condition     ReturnCondition `json:"condition" bson:"condition"`
	RefundAmount  decimal.Decimal `json:"refund_amount" bson:"refund_amount"`
	Restockable   bool            `json:"restockable" bson:"restockable"`
	Status        ReturnStatus    `json:"status" bson:"status"`
	ReturnDate    time.Time       `json:"return_date" bson:"return_date"`
	Notes         string          `json:"notes,omitempty" bson:"notes,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	ProcessedBy   string          `json:"processed_by,omitempty" bson:"processed_by,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
	Version       int64           `json:"version" bson:"version"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" bson:"updated_at"`
}

type ProductReturnCreateRequest struct {
	ProductID    string           `json:"product_id" validate:"required"`
	CustomerID   string           `json:"customer_id" validate:"max=80"`
	OrderID      string           `json:"order_id" validate:"max=80"`
	Quantity     int              `json:"quantity" validate:"required,gt=0"`
	Reason       string           `json:"reason" validate:"required,max=500"`
	Condition    ReturnCondition  `json:"condition" validate:"required,oneof=defective damaged wrong_item not_as_described other"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	Restockable  bool             `json:"restockable"`
	ReturnDate   *time.Time       `json:"return_date,omitempty"`
	Notes        string           `json:"notes" validate:"max=1000"`
}

// ProcessReturnRequest carries the decision for a pending return. A nil
// Restockable keeps the flag recorded when the return was created.
type ProcessReturnRequest struct {
	Status      ReturnStatus `json:"status" validate:"required,oneof=processed rejected"`
	Restockable *bool        `json:"restockable,omitempty"`
	Notes       string       `json:"notes" validate:"max=1000"`
}

type ReturnFilter struct {
	Status    ReturnStatus
	ProductID string
	Limit     int
}

type ReturnResult struct {
	Return      ProductReturn         `json:"return"`
	Transaction *InventoryTransaction `json:"transaction,omitempty"`
	Product     *Product              `json:"product,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Phone     string    `json:"phone" bson:"phone"`
	Email     string    `json:"email,omitempty" bson:"email,omitempty"`
	Address   string    `json:"address,omitempty" bson:"address,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name" validate:"required,max=160"`
	Phone   string `json:"phone" validate:"max=20"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
}
