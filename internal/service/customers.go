package service

import (
	"context"
	"fmt"
	"strings"

	"partsledger/internal/apperr"
	"partsledger/internal/domain"
	"partsledger/internal/validation"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Customer{}, err
	}

	req = normalizeCustomerRequest(req)
	if err := validation.Struct(req); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, customerFromRequest(req))
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.FullName)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Limit = clampLimit(filter.Limit, 100, 1000)
	return s.repo.ListCustomers(ctx, filter)
}

// UpdateCustomer replaces every editable field of the customer.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Customer{}, err
	}

	req = normalizeCustomerRequest(req)
	if err := validation.Struct(req); err != nil {
		return domain.Customer{}, err
	}

	customer := customerFromRequest(req)
	customer.ID = strings.TrimSpace(id)
	updated, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", updated.ID, "name="+updated.FullName)
	return *updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if _, err := s.repo.GetCustomer(ctx, id); err != nil {
		return err
	}
	refs, err := s.repo.CountCustomerReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return apperr.New(apperr.KindConflict, "customer %s is referenced by %d vehicles, invoices or returns", id, refs)
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "customer_delete", "customer", id, "")
	return nil
}

func normalizeCustomerRequest(req domain.CustomerRequest) domain.CustomerRequest {
	req.FullName = strings.TrimSpace(req.FullName)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	req.AlternativeNumber = strings.TrimSpace(req.AlternativeNumber)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Address = strings.TrimSpace(req.Address)
	req.City = strings.TrimSpace(req.City)
	req.Taluka = strings.TrimSpace(req.Taluka)
	req.District = strings.TrimSpace(req.District)
	req.State = strings.TrimSpace(req.State)
	req.PinCode = strings.TrimSpace(req.PinCode)
	req.ReferralSource = strings.TrimSpace(req.ReferralSource)
	return req
}

func customerFromRequest(req domain.CustomerRequest) domain.Customer {
	return domain.Customer{
		FullName:          req.FullName,
		MobileNumber:      req.MobileNumber,
		AlternativeNumber: req.AlternativeNumber,
		Email:             req.Email,
		Address:           req.Address,
		City:              req.City,
		Taluka:            req.Taluka,
		District:          req.District,
		State:             req.State,
		PinCode:           req.PinCode,
		ReferralSource:    req.ReferralSource,
	}
}

func (s *Service) CreateVehicle(ctx context.Context, req domain.VehicleRequest) (domain.Vehicle, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Vehicle{}, err
	}

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.VehicleNumber = strings.ToUpper(strings.TrimSpace(req.VehicleNumber))
	req.VehicleBrand = strings.TrimSpace(req.VehicleBrand)
	req.VehicleModel = strings.TrimSpace(req.VehicleModel)
	req.SelectedParts = compactStrings(req.SelectedParts)
	if err := validation.Struct(req); err != nil {
		return domain.Vehicle{}, err
	}

	if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
		return domain.Vehicle{}, err
	}
	fields := map[string]string{}
	for i, partID := range req.SelectedParts {
		if _, err := s.repo.GetProduct(ctx, partID); err != nil {
			if apperr.KindOf(err) != apperr.KindNotFound {
				return domain.Vehicle{}, err
			}
			fields[fmt.Sprintf("selected_parts[%d]", i)] = "unknown product " + partID
		}
	}
	for i, card := range req.WarrantyCards {
		if _, err := s.repo.GetProduct(ctx, card.PartID); err != nil {
			if apperr.KindOf(err) != apperr.KindNotFound {
				return domain.Vehicle{}, err
			}
			fields[fmt.Sprintf("warranty_cards[%d].part_id", i)] = "unknown product " + card.PartID
		}
	}
	if err := fieldsError(fields); err != nil {
		return domain.Vehicle{}, err
	}

	created, err := s.repo.CreateVehicle(ctx, domain.Vehicle{
		CustomerID:     req.CustomerID,
		VehicleNumber:  req.VehicleNumber,
		VehicleBrand:   req.VehicleBrand,
		VehicleModel:   req.VehicleModel,
		CustomModel:    strings.TrimSpace(req.CustomModel),
		Variant:        req.Variant,
		Color:          strings.TrimSpace(req.Color),
		YearOfPurchase: req.YearOfPurchase,
		VehiclePhoto:   req.VehiclePhoto,
		IsNewVehicle:   req.IsNewVehicle,
		ChassisNumber:  strings.TrimSpace(req.ChassisNumber),
		SelectedParts:  req.SelectedParts,
		WarrantyCards:  req.WarrantyCards,
	})
	if err != nil {
		return domain.Vehicle{}, err
	}

	s.logAudit(ctx, "vehicle_create", "vehicle", created.ID,
		fmt.Sprintf("customer=%s,number=%s,parts=%d", created.CustomerID, created.VehicleNumber, len(created.SelectedParts)))
	return *created, nil
}

func (s *Service) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	vehicle, err := s.repo.GetVehicle(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Vehicle{}, err
	}
	return *vehicle, nil
}

func (s *Service) ListVehicles(ctx context.Context, filter domain.VehicleFilter) ([]domain.Vehicle, error) {
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.Limit = clampLimit(filter.Limit, 100, 1000)
	return s.repo.ListVehicles(ctx, filter)
}

func (s *Service) DeleteVehicle(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteVehicle(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "vehicle_delete", "vehicle", id, "")
	return nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireStaff(ctx); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Address = strings.TrimSpace(req.Address)
	if err := validation.Struct(req); err != nil {
		return domain.Supplier{}, err
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}
