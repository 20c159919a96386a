package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) Contacts(ctx context.Context, f ContactFilter) ([]Contact, error) {
	var out []Contact
	if err := c.get(ctx, "/api/contacts", "/api/contacts", f.Values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Contact(ctx context.Context, id string) (*Contact, error) {
	var out Contact
	if err := c.get(ctx, "/api/contacts/{id}", "/api/contacts/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateContact(ctx context.Context, id string, in ContactUpdate) (*Contact, error) {
	var out Contact
	if err := c.put(ctx, "/api/contacts/{id}", "/api/contacts/"+esc(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error) {
	var out []Contact
	if err := c.get(ctx, "/api/contacts/search", "/api/contacts/search", searchQuery(query, limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GroupContacts(ctx context.Context) ([]Contact, error) {
	var out []Contact
	if err := c.get(ctx, "/api/contacts/groups", "/api/contacts/groups", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BlockContact sends POST /api/contacts/{whatsappId}/block.
func (c *Client) BlockContact(ctx context.Context, whatsappID string) error {
	return c.post(ctx, "/api/contacts/{id}/block", "/api/contacts/"+esc(whatsappID)+"/block", nil, nil)
}

// UnblockContact sends POST /api/contacts/{whatsappId}/unblock.
func (c *Client) UnblockContact(ctx context.Context, whatsappID string) error {
	return c.post(ctx, "/api/contacts/{id}/unblock", "/api/contacts/"+esc(whatsappID)+"/unblock", nil, nil)
}

func (c *Client) ExportContacts(ctx context.Context, f ContactFilter) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.get(ctx, "/api/export/contacts", "/api/export/contacts", f.Values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Webhooks ---
// The webhook endpoints answer with bare JSON rather than the envelope.

func (c *Client) WebhookConfig(ctx context.Context, tenantID string) (*WebhookConfig, error) {
	var out WebhookConfig
	cl := call{method: http.MethodGet, endpoint: "/api/webhook/config/{tenant}", path: "/api/webhook/config/" + esc(tenantID)}
	if err := c.doBare(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveWebhookConfig(ctx context.Context, tenantID string, cfg WebhookConfig) error {
	if err := ValidateWebhookURL(cfg.URL); err != nil {
		return err
	}
	cl, err := jsonCall(http.MethodPost, "/api/webhook/config/{tenant}", "/api/webhook/config/"+esc(tenantID), cfg)
	if err != nil {
		return err
	}
	return c.doBare(ctx, cl, nil)
}

// TestWebhook asks the API to deliver a test event to webhookURL.
func (c *Client) TestWebhook(ctx context.Context, tenantID, webhookURL string) (*WebhookTestResult, error) {
	if err := ValidateWebhookURL(webhookURL); err != nil {
		return nil, err
	}
	body := map[string]string{"url": webhookURL, "tenantId": tenantID}
	cl, err := jsonCall(http.MethodPost, "/api/webhook/test", "/api/webhook/test", body)
	if err != nil {
		return nil, err
	}
	var out WebhookTestResult
	if err := c.doBare(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) WebhookLogs(ctx context.Context, tenantID string, limit int) ([]WebhookLog, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []WebhookLog
	cl := call{
		method:   http.MethodGet,
		endpoint: "/api/webhook/logs/{tenant}",
		path:     "/api/webhook/logs/" + esc(tenantID),
		query:    url.Values{"limit": {strconv.Itoa(limit)}},
	}
	if err := c.doBare(ctx, cl, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ClearWebhookLogs(ctx context.Context, tenantID string) error {
	cl := call{method: http.MethodDelete, endpoint: "/api/webhook/logs/{tenant}", path: "/api/webhook/logs/" + esc(tenantID)}
	return c.doBare(ctx, cl, nil)
}
