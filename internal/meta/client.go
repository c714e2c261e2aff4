// Package meta sends server-side events to the ad platform's Conversions API.
package meta

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

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

const (
	vendorName        = "meta"
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v18.0"

	// maxResponseBody caps how much of a vendor response is read.
	maxResponseBody = 64 << 10
)

type Config struct {
	PixelID     string
	AccessToken string
	APIVersion  string
	BaseURL     string
	HTTPClient  *http.Client
}

type Client struct {
	pixelID string
	token   string
	version string
	baseURL string
	http    *http.Client
}

func New(cfg Config) *Client {
	c := &Client{
		pixelID: cfg.PixelID,
		token:   cfg.AccessToken,
		version: cfg.APIVersion,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
	}
	if c.version == "" {
		c.version = DefaultAPIVersion
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// Configured reports whether both the pixel id and access token are set.
func (c *Client) Configured() error {
	switch {
	case c.pixelID == "":
		return apperrors.NewConfigurationError("conversion relay", "META_PIXEL_ID")
	case c.token == "":
		return apperrors.NewConfigurationError("conversion relay", "META_ACCESS_TOKEN")
	}
	return nil
}

// serverEvent is the vendor's per-event payload.
type serverEvent struct {
	EventName      types.EventKind  `json:"event_name"`
	EventTime      int64            `json:"event_time"`
	EventID        string           `json:"event_id"`
	EventSourceURL string           `json:"event_source_url,omitempty"`
	ActionSource   string           `json:"action_source"`
	UserData       types.UserData   `json:"user_data"`
	CustomData     types.CustomData `json:"custom_data"`
}

type request struct {
	Data          []serverEvent `json:"data"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

// Send posts env and returns the decoded vendor response. A non-2xx answer
// is a *errors.RelayError carrying the body; a network failure is a
// *errors.TransportError.
func (c *Client) Send(ctx context.Context, env types.Envelope) (map[string]any, int, error) {
	if err := c.Configured(); err != nil {
		return nil, 0, err
	}

	body, err := json.Marshal(request{
		Data: []serverEvent{{
			EventName:      env.Kind(),
			EventTime:      env.EventTime,
			EventID:        env.EventID,
			EventSourceURL: env.SourceURL,
			ActionSource:   "website",
			UserData:       env.UserData,
			CustomData:     env.Custom(),
		}},
		TestEventCode: env.TestEventCode,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("meta: encode event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		c.baseURL, c.version, url.PathEscape(c.pixelID), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("meta: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &apperrors.TransportError{Vendor: vendorName, Err: redact(err, c.token)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, &apperrors.TransportError{Vendor: vendorName, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decode(raw), resp.StatusCode, &apperrors.RelayError{
			Vendor:     vendorName,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	return decode(raw), resp.StatusCode, nil
}

// decode parses an arbitrary JSON object body. Non-object bodies are echoed
// under "raw".
func decode(raw []byte) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var s structpb.Struct
	if err := protojson.Unmarshal(raw, &s); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return s.AsMap()
}

// redact keeps the access token out of transport errors, which embed the
// request URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return apperrors.New(strings.ReplaceAll(err.Error(), url.QueryEscape(token), "REDACTED"))
}
