// Package customer defines the customer account entity.
package customer

import "time"

// Customer is an account serviced by the support organization.
type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Tier         string    `json:"tier"`
	Industry     string    `json:"industry,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
