package registry

import (
	"context"
	"strings"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

type CustomerInput struct {
	Name       string
	NationalID string
}

func (s *Service) RegisterCustomer(ctx context.Context, input CustomerInput) (models.Customer, error) {
	name := strings.TrimSpace(input.Name)
	nationalID := strings.TrimSpace(input.NationalID)
	if name == "" || nationalID == "" {
		return models.Customer{}, invalid("name and national_id are required")
	}
	var created models.Customer
	err := s.store.Update(ctx, func(q store.Queries) error {
		var err error
		created, err = q.InsertCustomer(ctx, models.Customer{Name: name, NationalID: nationalID})
		return err
	})
	return created, err
}

func (s *Service) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		customers, err = q.ListCustomers(ctx)
		return err
	})
	if customers == nil {
		customers = []models.Customer{}
	}
	return customers, err
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	var customer models.Customer
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		customer, err = q.GetCustomer(ctx, customerID)
		return err
	})
	return customer, err
}

// UpdateCustomer corrects a customer's name or national id. Blank fields keep
// their current value. Turns already issued keep their snapshot.
func (s *Service) UpdateCustomer(ctx context.Context, customerID string, input CustomerInput) (models.Customer, error) {
	var updated models.Customer
	err := s.store.Update(ctx, func(q store.Queries) error {
		customer, err := q.GetCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		customer.Name = pick(input.Name, customer.Name)
		customer.NationalID = pick(input.NationalID, customer.NationalID)
		updated, err = q.UpdateCustomer(ctx, customer)
		return err
	})
	return updated, err
}

// DeleteCustomer removes the customer and every turn issued to them.
func (s *Service) DeleteCustomer(ctx context.Context, customerID string) error {
	return s.store.Update(ctx, func(q store.Queries) error {
		return q.DeleteCustomer(ctx, customerID)
	})
}
