package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// SendMessage sends POST /api/messages/send.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if req.SessionID == "" || req.To == "" {
		return nil, errors.New("sessionId and recipient are required")
	}
	if req.Type == "" {
		req.Type = "text"
	}
	var out Message
	if err := c.post(ctx, "/api/messages/send", "/api/messages/send", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendBulk sends POST /api/messages/send-bulk.
func (c *Client) SendBulk(ctx context.Context, req BulkMessageRequest) (*BulkResult, error) {
	var out BulkResult
	if err := c.post(ctx, "/api/messages/send-bulk", "/api/messages/send-bulk", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Messages(ctx context.Context, f MessageFilter) ([]Message, error) {
	var out []Message
	if err := c.get(ctx, "/api/messages", "/api/messages", f.Values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Message(ctx context.Context, id string) (*Message, error) {
	var out Message
	if err := c.get(ctx, "/api/messages/{id}", "/api/messages/"+esc(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateMessageStatus(ctx context.Context, id, status string) error {
	return c.put(ctx, "/api/messages/{id}/status", "/api/messages/"+esc(id)+"/status", map[string]string{"status": status}, nil)
}

func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	return c.put(ctx, "/api/messages/{id}/read", "/api/messages/"+esc(id)+"/read", nil, nil)
}

func (c *Client) UnreadMessages(ctx context.Context) ([]Message, error) {
	var out []Message
	if err := c.get(ctx, "/api/messages/unread", "/api/messages/unread", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SearchMessages(ctx context.Context, query string, limit int) ([]Message, error) {
	var out []Message
	if err := c.get(ctx, "/api/messages/search", "/api/messages/search", searchQuery(query, limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MessageStats fetches GET /api/messages/stats. Empty bounds are omitted.
func (c *Client) MessageStats(ctx context.Context, dateFrom, dateTo string) (*MessageStats, error) {
	q := url.Values{}
	setIf(q, "dateFrom", dateFrom)
	setIf(q, "dateTo", dateTo)
	var out MessageStats
	if err := c.get(ctx, "/api/messages/stats", "/api/messages/stats", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportMessages fetches GET /api/export/messages and returns the exported
// payload untouched.
func (c *Client) ExportMessages(ctx context.Context, f MessageFilter) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.get(ctx, "/api/export/messages", "/api/export/messages", f.Values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Media ---

// UploadMedia sends a multipart POST /api/media/upload with the file under
// the "file" field.
func (c *Client) UploadMedia(ctx context.Context, filename string, r io.Reader) (*MediaUpload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out MediaUpload
	cl := call{
		method:      http.MethodPost,
		endpoint:    "/api/media/upload",
		path:        "/api/media/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MediaURL returns the download URL for an uploaded file.
func (c *Client) MediaURL(filename string) string {
	return c.baseURL + "/api/media/" + esc(filename)
}

func (c *Client) DeleteMedia(ctx context.Context, filename string) error {
	return c.delete(ctx, "/api/media/{filename}", "/api/media/"+esc(filename))
}

func searchQuery(query string, limit int) url.Values {
	if limit <= 0 {
		limit = 20
	}
	return url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}}
}
