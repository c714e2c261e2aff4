// Package sheets is a client for a spreadsheet-as-database REST service.
// Each tab of the sheet is addressed with the "sheet" query parameter and
// rows are flat string maps keyed by the header row.
package sheets

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

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
)

const vendorName = "sheets"

// Row is one spreadsheet row keyed by column header.
type Row map[string]string

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a client for the sheet API rooted at baseURL. apiKey may be
// empty for unauthenticated sheets.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Append adds rows to the end of tab.
func (c *Client) Append(ctx context.Context, tab string, rows ...Row) error {
	if len(rows) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, c.endpoint("", tab, nil), map[string]any{"data": rows}, nil)
}

// Search returns the rows of tab whose column equals value, ignoring case.
func (c *Client) Search(ctx context.Context, tab, column, value string) ([]Row, error) {
	q := url.Values{}
	q.Set(column, value)
	q.Set("casesensitive", "false")

	var rows []Row
	if err := c.do(ctx, http.MethodGet, c.endpoint("/search", tab, q), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Update sets fields on every row of tab whose column equals value and
// returns the number of rows changed.
func (c *Client) Update(ctx context.Context, tab, column, value string, fields Row) (int, error) {
	path := "/" + url.PathEscape(column) + "/" + url.PathEscape(value)
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPatch, c.endpoint(path, tab, nil), map[string]any{"data": fields}, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *Client) endpoint(path, tab string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if tab != "" {
		q.Set("sheet", tab)
	}
	u := c.baseURL + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sheets: encode body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return fmt.Errorf("sheets: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperrors.TransportError{Vendor: vendorName, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &apperrors.TransportError{Vendor: vendorName, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperrors.RelayError{Vendor: vendorName, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("sheets: decode response: %w", err)
	}
	return nil
}
