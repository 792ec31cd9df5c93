package postgres

import (
	"context"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const customerColumns = `customer_id, national_id, name, created_at, updated_at`

func scanCustomer(row pgx.Row) (models.Customer, error) {
	var customer models.Customer
	if err := row.Scan(&customer.CustomerID, &customer.NationalID, &customer.Name, &customer.CreatedAt, &customer.UpdatedAt); err != nil {
		return models.Customer{}, err
	}
	return customer, nil
}

func (q *queries) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	if !isUUID(customerID) {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	customer, err := scanCustomer(q.tx.QueryRow(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE customer_id = $1
	`, customerID))
	if err != nil {
		return models.Customer{}, notFound(err, store.ErrCustomerNotFound)
	}
	return customer, nil
}

func (q *queries) GetCustomerByNationalID(ctx context.Context, nationalID string) (models.Customer, error) {
	customer, err := scanCustomer(q.tx.QueryRow(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE national_id = $1
	`, nationalID))
	if err != nil {
		return models.Customer{}, notFound(err, store.ErrCustomerNotFound)
	}
	return customer, nil
}

func (q *queries) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT `+customerColumns+` FROM customers ORDER BY name ASC, customer_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (q *queries) InsertCustomer(ctx context.Context, customer models.Customer) (models.Customer, error) {
	if customer.CustomerID == "" {
		customer.CustomerID = uuid.NewString()
	}
	inserted, err := scanCustomer(q.tx.QueryRow(ctx, `
		INSERT INTO customers (customer_id, national_id, name)
		VALUES ($1, $2, $3)
		RETURNING `+customerColumns, customer.CustomerID, customer.NationalID, customer.Name))
	if err != nil {
		return models.Customer{}, translateError(err)
	}
	return inserted, nil
}

func (q *queries) UpdateCustomer(ctx context.Context, customer models.Customer) (models.Customer, error) {
	if !isUUID(customer.CustomerID) {
		return models.Customer{}, store.ErrCustomerNotFound
	}
	updated, err := scanCustomer(q.tx.QueryRow(ctx, `
		UPDATE customers SET national_id = $2, name = $3, updated_at = now()
		WHERE customer_id = $1
		RETURNING `+customerColumns, customer.CustomerID, customer.NationalID, customer.Name))
	if err != nil {
		return models.Customer{}, notFound(err, store.ErrCustomerNotFound)
	}
	return updated, nil
}

func (q *queries) DeleteCustomer(ctx context.Context, customerID string) error {
	if !isUUID(customerID) {
		return store.ErrCustomerNotFound
	}
	tag, err := q.tx.Exec(ctx, `DELETE FROM customers WHERE customer_id = $1`, customerID)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrCustomerNotFound
	}
	return nil
}
