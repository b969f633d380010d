package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
)

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(domain.InventoryTransactionRequest{
		Type:     "SWAP",
		Quantity: 0,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	fields := apperr.FieldsOf(err)
	assert.Equal(t, "is required", fields["product_id"])
	assert.Equal(t, "is required", fields["quantity"])
	assert.Equal(t, "is required", fields["reason"])
	assert.Equal(t, "must be one of: IN, OUT, ADJUSTMENT, RETURN", fields["type"])
}

func TestStructValidatesNestedSlices(t *testing.T) {
	err := Struct(domain.VehicleRequest{
		CustomerID:    "cus_1",
		VehicleNumber: "MH12AB1234",
		VehicleBrand:  "Honda",
		VehicleModel:  "Activa",
		VehiclePhoto:  "aGVsbG8=",
		Variant:       "Sport",
		WarrantyCards: []domain.WarrantyCard{{PartID: "prd_1", FileData: "aGVsbG8="}},
	})
	require.Error(t, err)

	fields := apperr.FieldsOf(err)
	assert.Equal(t, "must be one of: Top, Base", fields["variant"])
	assert.Equal(t, "is required", fields["warranty_cards[0].part_name"])
}

func TestStructAcceptsValidRequest(t *testing.T) {
	err := Struct(domain.CustomerRequest{
		FullName:     "Ravi Patil",
		MobileNumber: "9876543210",
		Email:        "ravi@example.com",
		PinCode:      "411001",
	})
	assert.NoError(t, err)
}

func TestVarUsesGivenName(t *testing.T) {
	err := Var("images", []string{"not base64!"}, "dive,datauri|base64")
	require.Error(t, err)
	assert.Equal(t, "must be base64 encoded data", apperr.FieldsOf(err)["images"])
}

func TestMergeCombinesFieldsAndKeepsOtherErrors(t *testing.T) {
	merged := Merge(nil, apperr.Field("mrp", "must be greater than 0"), apperr.Field("selling_price", "must be greater than 0"))
	require.Error(t, merged)
	assert.Len(t, apperr.FieldsOf(merged), 2)

	boom := errors.New("boom")
	assert.Same(t, boom, Merge(apperr.Field("a", "b"), boom))
	assert.NoError(t, Merge(nil, nil))
}
