package domain

import "time"

type Customer struct {
	ID                string    `json:"id" bson:"_id"`
	FullName          string    `json:"full_name" bson:"full_name"`
	MobileNumber      string    `json:"mobile_number" bson:"mobile_number"`
	AlternativeNumber string    `json:"alternative_number,omitempty" bson:"alternative_number,omitempty"`
	Email             string    `json:"email,omitempty" bson:"email,omitempty"`
	Address           string    `json:"address,omitempty" bson:"address,omitempty"`
	City              string    `json:"city,omitempty" bson:"city,omitempty"`
	Taluka            string    `json:"taluka,omitempty" bson:"taluka,omitempty"`
	District          string    `json:"district,omitempty" bson:"district,omitempty"`
	State             string    `json:"state,omitempty" bson:"state,omitempty"`
	PinCode           string    `json:"pin_code,omitempty" bson:"pin_code,omitempty"`
	ReferralSource    string    `json:"referral_source,omitempty" bson:"referral_source,omitempty"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" bson:"updated_at"`
}

type CustomerRequest struct {
	FullName          string `json:"full_name" validate:"required,max=160"`
	MobileNumber      string `json:"mobile_number" validate:"required,min=10,max=20"`
	AlternativeNumber string `json:"alternative_number" validate:"omitempty,min=10,max=20"`
	Email             string `json:"email" validate:"omitempty,email"`
	Address           string `json:"address" validate:"max=500"`
	City              string `json:"city" validate:"max=120"`
	Taluka            string `json:"taluka" validate:"max=120"`
	District          string `json:"district" validate:"max=120"`
	State             string `json:"state" validate:"max=120"`
	PinCode           string `json:"pin_code" validate:"omitempty,numeric,max=10"`
	ReferralSource    string `json:"referral_source" validate:"max=120"`
}

type CustomerFilter struct {
	Search string
	Limit  int
}

type VehicleVariant string

const (
	VariantTop  VehicleVariant = "Top"
	VariantBase VehicleVariant = "Base"
)

type WarrantyCard struct {
	PartID   string `json:"part_id" bson:"part_id" validate:"required"`
	PartName string `json:"part_name" bson:"part_name" validate:"required,max=200"`
	FileData string `json:"file_data" bson:"file_data" validate:"required,datauri|base64"`
}

type Vehicle struct {
	ID             string         `json:"id" bson:"_id"`
	CustomerID     string         `json:"customer_id" bson:"customer_id"`
	VehicleNumber  string         `json:"vehicle_number" bson:"vehicle_number"`
	VehicleBrand   string         `json:"vehicle_brand" bson:"vehicle_brand"`
	VehicleModel   string         `json:"vehicle_model" bson:"vehicle_model"`
	CustomModel    string         `json:"custom_model,omitempty" bson:"custom_model,omitempty"`
	Variant        VehicleVariant `json:"variant,omitempty" bson:"variant,omitempty"`
	Color          string         `json:"color,omitempty" bson:"color,omitempty"`
	YearOfPurchase int            `json:"year_of_purchase,omitempty" bson:"year_of_purchase,omitempty"`
	VehiclePhoto   string         `json:"vehicle_photo" bson:"vehicle_photo"`
	IsNewVehicle   bool           `json:"is_new_vehicle" bson:"is_new_vehicle"`
	ChassisNumber  string         `json:"chassis_number,omitempty" bson:"chassis_number,omitempty"`
	SelectedParts  []string       `json:"selected_parts" bson:"selected_parts"`
	WarrantyCards  []WarrantyCard `json:"warranty_cards" bson:"warranty_cards"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" bson:"updated_at"`
}

type VehicleRequest struct {
	CustomerID     string         `json:"customer_id" validate:"required"`
	VehicleNumber  string         `json:"vehicle_number" validate:"required,max=20"`
	VehicleBrand   string         `json:"vehicle_brand" validate:"required,max=80"`
	VehicleModel   string         `json:"vehicle_model" validate:"required,max=80"`
	CustomModel    string         `json:"custom_model" validate:"max=80"`
	Variant        VehicleVariant `json:"variant" validate:"omitempty,oneof=Top Base"`
	Color          string         `json:"color" validate:"max=40"`
	YearOfPurchase int            `json:"year_of_purchase" validate:"omitempty,gte=1950,lte=2100"`
	VehiclePhoto   string         `json:"vehicle_photo" validate:"required,datauri|base64"`
	IsNewVehicle   bool           `json:"is_new_vehicle"`
	ChassisNumber  string         `json:"chassis_number" validate:"max=40"`
	SelectedParts  []string       `json:"selected_parts" validate:"dive,required"`
	WarrantyCards  []WarrantyCard `json:"warranty_cards" validate:"dive"`
}

type VehicleFilter struct {
	CustomerID string
	Limit      int
}
