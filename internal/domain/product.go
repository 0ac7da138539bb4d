package domain

import "time"

// Product groups endpoints under one owning API product.
type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	TotalEndpoints  int       `json:"total_endpoints"`
	ActiveEndpoints int       `json:"active_endpoints"`
	CreatedAt       time.Time `json:"created_at"`
}
