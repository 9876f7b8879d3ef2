package client

import (
	"context"

	"github.com/xraph/tally/id"
)

type Store interface {
	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, clientID id.ClientID) (*Client, error)
	ListClients(ctx context.Context, businessID id.BusinessID, opts ListOpts) ([]*Client, error)
	UpdateClient(ctx context.Context, c *Client) error
	DeleteClient(ctx context.Context, clientID id.ClientID) error
}

type ListOpts struct {
	Limit  int
	Offset int
}
