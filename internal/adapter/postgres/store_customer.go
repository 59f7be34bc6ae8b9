package postgres

import (
	"context"
	"fmt"

	"github.com/supportiq/supportiq/internal/domain/customer"
)

const customerColumns = `id, name, tier, industry, contact_email, created_at, updated_at`

// GetCustomer fetches one customer by ID.
func (s *Store) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)

	c, err := scanCustomer(row)
	if err != nil {
		return nil, notFoundWrap(err, "get customer %s", id)
	}
	return &c, nil
}

// SearchCustomers finds customers whose name, industry or contact email
// contains the query, case-insensitively.
func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]customer.Customer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+customerColumns+`
		 FROM customers
		 WHERE name ILIKE '%' || $1 || '%'
		    OR industry ILIKE '%' || $1 || '%'
		    OR contact_email ILIKE '%' || $1 || '%'
		 ORDER BY name
		 LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	customers := []customer.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func scanCustomer(row scannable) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Tier, &c.Industry, &c.ContactEmail, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
