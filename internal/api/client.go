// Package api is the HTTP client for the sheet service. Client
// implements the session's persistence surface over the REST routes;
// Subscriber attaches to the websocket push stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gridhouse/sheetsync/internal/engine"
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/wire"
)

// Client is the session's persistence layer when talking to a live
// service.
var _ engine.Persistence = (*Client)(nil)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource for a fixed token. An empty token means
// unauthenticated requests.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

// Client talks to one project of the sheet service.
type Client struct {
	base    string
	project string
	tokens  TokenSource
	http    *http.Client
}

// NewClient creates a client for the given service base URL and project.
func NewClient(baseURL, project string, tokens TokenSource) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		project: project,
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the underlying http.Client, for tests and custom
// transports.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base + "/sheet/projects/" + url.PathEscape(c.project) + "/" + strings.Join(escaped, "/")
}

// do runs one JSON round trip. body and out may be nil.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &sheet.PersistenceError{Op: method + " " + rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeError maps service rejections onto the shared error taxonomy so
// callers can use the usual predicates on client errors too.
func decodeError(resp *http.Response) error {
	var body wire.ErrorResponse
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &sheet.ValidationError{Message: msg}
	case http.StatusNotFound:
		return &sheet.NotFoundError{Target: "resource", Key: msg}
	case http.StatusConflict:
		return &sheet.InvariantViolation{Message: msg}
	default:
		return &sheet.PersistenceError{
			Op:  "request",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}
}

// FetchColumns returns the project's column names in canonical order.
func (c *Client) FetchColumns(ctx context.Context) ([]string, error) {
	var cols []wire.Column
	if err := c.do(ctx, http.MethodGet, c.url("columns"), nil, &cols); err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names, nil
}

// FetchRows returns all rows of the project.
func (c *Client) FetchRows(ctx context.Context) ([]sheet.RowRecord, error) {
	var rows []wire.Row
	if err := c.do(ctx, http.MethodGet, c.url("rows"), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]sheet.RowRecord, len(rows))
	for i, r := range rows {
		out[i] = sheet.RowRecord{Identity: r.Identity, Fields: r.Fields}
	}
	return out, nil
}

// FetchStyles returns all style overrides of the project keyed by cell.
func (c *Client) FetchStyles(ctx context.Context) (map[sheet.CellKey]sheet.StylePayload, error) {
	var styles []wire.CellStyle
	if err := c.do(ctx, http.MethodGet, c.url("styles"), nil, &styles); err != nil {
		return nil, err
	}
	out := make(map[sheet.CellKey]sheet.StylePayload, len(styles))
	for _, s := range styles {
		out[sheet.CellKey{Identity: s.Identity, Header: s.Field}] = sheet.StylePayload{
			Color:      s.Color,
			Background: s.Background,
			Bold:       s.Bold,
			Italic:     s.Italic,
		}
	}
	return out, nil
}

func (c *Client) AddColumn(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, c.url("columns"), wire.AddColumnRequest{Name: name}, nil)
}

func (c *Client) RemoveColumn(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, c.url("columns", name), nil, nil)
}

// AddRow creates a row and returns the server-assigned identity.
func (c *Client) AddRow(ctx context.Context, fields map[string]string) (string, error) {
	var resp wire.AddRowResponse
	if err := c.do(ctx, http.MethodPost, c.url("rows"), wire.AddRowRequest{Fields: fields}, &resp); err != nil {
		return "", err
	}
	return resp.Identity, nil
}

func (c *Client) RemoveRows(ctx context.Context, identities []string) error {
	return c.do(ctx, http.MethodDelete, c.url("rows"), wire.RemoveRowsRequest{Identities: identities}, nil)
}

func (c *Client) SetCell(ctx context.Context, identity, field, value string) error {
	return c.do(ctx, http.MethodPatch, c.url("cells"), wire.SetCellRequest{
		Identity: identity,
		Field:    field,
		Value:    value,
	}, nil)
}

func (c *Client) SetStyle(ctx context.Context, identity, field string, style sheet.StylePayload) error {
	return c.do(ctx, http.MethodPut, c.url("styles"), wire.SetStyleRequest{
		Identity:   identity,
		Field:      field,
		Color:      style.Color,
		Background: style.Background,
		Bold:       style.Bold,
		Italic:     style.Italic,
	}, nil)
}
