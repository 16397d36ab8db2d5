package unifiedllm

import (
	"context"
	"errors"
)

// Adapter sends a request to one model backend. GollmAdapter is the
// production implementation.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Middleware wraps a model call. It can inspect or rewrite the request,
// call next, and inspect the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client sends requests to a single adapter through a middleware chain.
type Client struct {
	adapter    Adapter
	middleware []Middleware
}

// NewClient creates a Client for adapter. Middleware runs in the order
// given, the first entry outermost.
func NewClient(adapter Adapter, middleware ...Middleware) *Client {
	return &Client{adapter: adapter, middleware: middleware}
}

// Provider returns the name of the backing adapter.
func (c *Client) Provider() string {
	if c.adapter == nil {
		return ""
	}
	return c.adapter.Name()
}

// Complete sends req and returns the model's reply. An empty
// req.Provider is filled with the adapter name.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.adapter == nil {
		return nil, errors.New("unifiedllm: client has no adapter")
	}
	if req.Provider == "" {
		req.Provider = c.adapter.Name()
	}

	call := c.adapter.Complete
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw, next := c.middleware[i], call
		call = func(ctx context.Context, req Request) (*Response, error) {
			return mw(ctx, req, next)
		}
	}
	return call(ctx, req)
}
