package tailscale

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tailscale/accessbot/internal/store"
)

const (
	// DefaultBaseURL is the production device-management API.
	DefaultBaseURL = "https://api.tailscale.com/api/v2"

	userAgent = "tailscale-accessbot/0.0.1"

	// devicesCacheSeconds bounds the staleness of the device list used
	// for autocomplete. Grants never go through the cache.
	devicesCacheSeconds = 60
)

// Config contains the device API client configuration
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // defaults to DefaultBaseURL
}

// Client is the single call-site for the device-management API. It owns
// token acquisition and refresh (persisted across invocations through
// the store) and an optional TTL response cache for GET requests.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	cache      *responseCache
	logger     *slog.Logger
}

// NewClient creates a new device API client. Construction is cheap: the
// persisted token, if any, is read once, and no grant is run until the
// first request needs one.
func NewClient(ctx context.Context, cfg Config, kv store.KV, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	source := newTokenSource(ctx, cfg, kv, logger)

	return &Client{
		baseURL:  cfg.BaseURL,
		clientID: cfg.ClientID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &authTransport{
				source: source,
				base:   http.DefaultTransport,
			},
		},
		cache:  &responseCache{kv: kv, logger: logger},
		logger: logger,
	}
}

// authTransport injects the bearer credential and the identifying
// user-agent into every outbound request.
type authTransport struct {
	source oauth2.TokenSource
	base   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("acquiring access token: %w", err)
	}

	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)
	r.Header.Set("User-Agent", userAgent)

	return t.base.RoundTrip(r)
}

// Response is a fully read HTTP response. The body is read exactly once
// regardless of how many consumers need it.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ReqOpts carries per-request options.
type ReqOpts struct {
	// CacheSeconds requests a cached copy no older than this many
	// seconds for GET requests. Zero bypasses the cache entirely.
	CacheSeconds int
}

// Do performs an authenticated request against an absolute URL. GET
// requests with a cache TTL race the response cache; everything else
// goes straight to the network.
func (c *Client) Do(ctx context.Context, method, reqURL string, body []byte, opts ReqOpts) (*Response, error) {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	do := func() (*Response, error) {
		return c.roundTrip(ctx, method, reqURL, body)
	}

	if opts.CacheSeconds <= 0 || method != http.MethodGet {
		return do()
	}

	key := c.clientID + ":" + reqURL
	return c.cache.fetch(ctx, key, time.Duration(opts.CacheSeconds)*time.Second, do)
}

func (c *Client) roundTrip(ctx context.Context, method, reqURL string, body []byte) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Device API request", "method", method, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   respBody,
	}, nil
}

// Device represents a device in the tailnet
type Device struct {
	NodeID    string   `json:"nodeId"`
	Name      string   `json:"name"`
	User      string   `json:"user"`
	OS        string   `json:"os"`
	LastSeen  string   `json:"lastSeen"`
	Tags      []string `json:"tags"`
	Addresses []string `json:"addresses"`
}

// Devices lists all devices in the tailnet. Responses may be served
// from the cache within the autocomplete staleness window.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	resp, err := c.Do(ctx, http.MethodGet, c.baseURL+"/tailnet/-/devices", nil, ReqOpts{CacheSeconds: devicesCacheSeconds})
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, apiError("listing devices", resp)
	}

	var payload struct {
		Devices []Device `json:"devices"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
	}

	return payload.Devices, nil
}

// Device fetches a single device by node id, uncached.
func (c *Client) Device(ctx context.Context, nodeID string) (*Device, error) {
	resp, err := c.Do(ctx, http.MethodGet, c.baseURL+"/device/"+url.PathEscape(nodeID), nil, ReqOpts{})
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, apiError("fetching device", resp)
	}

	var device Device
	if err := json.Unmarshal(resp.Body, &device); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device: %w", err)
	}

	return &device, nil
}

// attributeRequest is the grant body: a boolean attribute with expiry
// and an audit comment of at most 200 characters.
type attributeRequest struct {
	Value   bool   `json:"value"`
	Expiry  string `json:"expiry"`
	Comment string `json:"comment"`
}

// SetDeviceAttribute sets a named boolean attribute on a device until
// the given expiry. The comment must already be within the API's
// 200-character limit.
func (c *Client) SetDeviceAttribute(ctx context.Context, nodeID, attribute string, value bool, expiry time.Time, comment string) error {
	body, err := json.Marshal(attributeRequest{
		Value:   value,
		Expiry:  expiry.UTC().Format(time.RFC3339),
		Comment: comment,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal attribute request: %w", err)
	}

	reqURL := c.baseURL + "/device/" + url.PathEscape(nodeID) + "/attributes/" + url.PathEscape(attribute)
	resp, err := c.Do(ctx, http.MethodPost, reqURL, body, ReqOpts{})
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return apiError("setting device attribute", resp)
	}

	c.logger.Info("Device attribute updated",
		"node_id", nodeID,
		"attribute", attribute,
		"value", value,
		"expiry", expiry)

	return nil
}

func apiError(op string, resp *Response) error {
	body := string(resp.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%s: API returned status %d: %s", op, resp.Status, body)
}
