package api

import (
	"context"
	"errors"
	"net/http"
)

// Health fetches GET /health (outside the /api prefix, no envelope).
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doBare(ctx, call{method: http.MethodGet, endpoint: "/health", path: "/health"}, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Connect sends POST /api/connect. The tenant is identified by the API key.
func (c *Client) Connect(ctx context.Context, req ConnectRequest) (*ConnectResult, error) {
	var out ConnectResult
	if err := c.post(ctx, "/api/connect", "/api/connect", req, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, &DecodeError{Op: "POST /api/connect", Err: errors.New("missing sessionId")}
	}
	return &out, nil
}

// Connections fetches GET /api/connections for the current tenant.
func (c *Client) Connections(ctx context.Context) ([]Connection, error) {
	var out []Connection
	if err := c.get(ctx, "/api/connections", "/api/connections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConnectionStatus fetches GET /api/connection/{id}/status.
func (c *Client) ConnectionStatus(ctx context.Context, sessionID string) (*ConnectionStatus, error) {
	var out ConnectionStatus
	if err := c.get(ctx, "/api/connection/{id}/status", "/api/connection/"+esc(sessionID)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConnection sends DELETE /api/connection/{id}. The API uses the same
// call for disconnect and delete.
func (c *Client) DeleteConnection(ctx context.Context, sessionID string) error {
	return c.delete(ctx, "/api/connection/{id}", "/api/connection/"+esc(sessionID))
}

// ConnectionProfile looks the session up in the connection list and returns
// its profile, or nil when the API has none yet.
func (c *Client) ConnectionProfile(ctx context.Context, sessionID string) (*Profile, error) {
	conns, err := c.Connections(ctx)
	if err != nil {
		return nil, err
	}
	for _, conn := range conns {
		if conn.SessionID == sessionID {
			return conn.ProfileData, nil
		}
	}
	return nil, nil
}

// Profile fetches GET /api/profile/{sessionId}.
func (c *Client) Profile(ctx context.Context, sessionID string) (*Profile, error) {
	var out Profile
	if err := c.get(ctx, "/api/profile/{id}", "/api/profile/"+esc(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Tenants ---

func (c *Client) Tenants(ctx context.Context) ([]Tenant, error) {
	var out []Tenant
	if err := c.get(ctx, "/api/tenants", "/api/tenants", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tenant(ctx context.Context, id string) (*Tenant, error) {
	var out Tenant
	if err := c.get(ctx, "/api/tenants/{id}", "/api/tenants/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTenant(ctx context.Context, in TenantInput) (*Tenant, error) {
	if in.Name == "" {
		return nil, errors.New("tenant name is required")
	}
	var out Tenant
	if err := c.post(ctx, "/api/tenants", "/api/tenants", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTenant(ctx context.Context, id string, in TenantInput) (*Tenant, error) {
	var out Tenant
	if err := c.put(ctx, "/api/tenants/{id}", "/api/tenants/"+esc(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
