// Package client defines the billed party of an invoice.
package client

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Client belongs to exactly one business.
type Client struct {
	types.Entity
	ID         id.ClientID   `json:"id"`
	BusinessID id.BusinessID `json:"business_id"`
	Name       string        `json:"name"`
	Email      string        `json:"email,omitempty"`
	Company    string        `json:"company,omitempty"`
	Address    string        `json:"address,omitempty"`
	Phone      string        `json:"phone,omitempty"`
}

// DisplayName prefers the company name when set.
func (c *Client) DisplayName() string {
	if c.Company != "" {
		return c.Company
	}
	return c.Name
}
