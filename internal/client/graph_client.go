package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/rushabhsmehta/tour-messaging/internal/metrics"
	"github.com/rushabhsmehta/tour-messaging/internal/payload"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	maxTemplatePages  = 20
)

type GraphConfig struct {
	BaseURL           string
	APIVersion        string
	PhoneNumberID     string
	AccessToken       string
	BusinessAccountID string
	AppID             string
	AppSecret         string
	Timeout           time.Duration
	RetryAttempts     int
	RetryBackoff      time.Duration
}

// APIError is a non-2xx reply from the Graph API.
type APIError struct {
	StatusCode int
	Code       int64
	Message    string
	Raw        string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api: status %d body=%q", e.StatusCode, e.Raw)
	}
	return fmt.Sprintf("graph api: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Raw: string(body)}
	apiErr.Message, _ = jsonparser.GetString(body, "error", "message")
	apiErr.Code, _ = jsonparser.GetInt(body, "error", "code")
	return apiErr
}

// GraphClient talks to the WhatsApp Cloud API.
type GraphClient struct {
	cfg    GraphConfig
	client *http.Client

	group      singleflight.Group
	mu         sync.RWMutex
	businessID string
}

func NewGraphClient(cfg GraphConfig) *GraphClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &GraphClient{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		businessID: cfg.BusinessAccountID,
	}
}

func (c *GraphClient) endpoint(parts ...string) string {
	return c.cfg.BaseURL + "/" + c.cfg.APIVersion + "/" + strings.Join(parts, "/")
}

// SendMessage posts a wire envelope to the messages edge. The idempotency key
// is sent on every attempt so a retried request is not delivered twice.
func (c *GraphClient) SendMessage(ctx context.Context, body []byte, idempotencyKey string) (*payload.SendResponse, error) {
	if c.cfg.PhoneNumberID == "" {
		return nil, errors.New("phone number id is not configured")
	}
	raw, err := c.do(ctx, http.MethodPost, c.endpoint(c.cfg.PhoneNumberID, "messages"), body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	var resp payload.SendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode send response body=%q", string(raw))
	}
	if resp.MessageID() == "" {
		return nil, errors.Errorf("missing message id in response body=%q", string(raw))
	}
	return &resp, nil
}

// BusinessAccountID returns the configured WABA id, or looks up the parent
// account of the sending number once and remembers it.
func (c *GraphClient) BusinessAccountID(ctx context.Context) (string, error) {
	c.mu.RLock()
	id := c.businessID
	c.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	v, err, _ := c.group.Do("business-id", func() (any, error) {
		u := c.endpoint(c.cfg.PhoneNumberID) + "?fields=whatsapp_business_account"
		raw, err := c.do(ctx, http.MethodGet, u, nil, "")
		if err != nil {
			return "", err
		}
		id, err := jsonparser.GetString(raw, "whatsapp_business_account", "id")
		if err != nil || id == "" {
			return "", errors.Errorf("business account id missing from body=%q", string(raw))
		}
		c.mu.Lock()
		c.businessID = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// RegisteredTemplate is one entry of the message_templates edge.
type RegisteredTemplate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Language   string          `json:"language"`
	Status     string          `json:"status"`
	Category   string          `json:"category"`
	Components json.RawMessage `json:"components"`
}

func (c *GraphClient) ListTemplates(ctx context.Context) ([]RegisteredTemplate, error) {
	waba, err := c.BusinessAccountID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve business account")
	}

	next := c.endpoint(waba, "message_templates") + "?limit=100"
	var out []RegisteredTemplate
	for page := 0; next != "" && page < maxTemplatePages; page++ {
		raw, err := c.do(ctx, http.MethodGet, next, nil, "")
		if err != nil {
			return out, err
		}
		var body struct {
			Data []RegisteredTemplate `json:"data"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return out, errors.Wrap(err, "decode templates")
		}
		out = append(out, body.Data...)
		next, _ = jsonparser.GetString(raw, "paging", "next")
	}
	return out, nil
}

type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeToken trades a short lived user token for a long lived one.
func (c *GraphClient) ExchangeToken(ctx context.Context, shortLived string) (AccessToken, error) {
	if c.cfg.AppID == "" || c.cfg.AppSecret == "" {
		return AccessToken{}, errors.New("app id and app secret are required for token exchange")
	}
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.cfg.AppID)
	q.Set("client_secret", c.cfg.AppSecret)
	q.Set("fb_exchange_token", shortLived)

	raw, err := c.do(ctx, http.MethodGet, c.endpoint("oauth", "access_token")+"?"+q.Encode(), nil, "")
	if err != nil {
		return AccessToken{}, err
	}
	var tok AccessToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return AccessToken{}, errors.Wrap(err, "decode access token")
	}
	return tok, nil
}

func (c *GraphClient) do(ctx context.Context, method, u string, body []byte, idempotencyKey string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			metrics.ProviderRetry()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(withJitter(c.cfg.RetryBackoff, attempt-1)):
			}
		}

		raw, status, err := c.once(ctx, method, u, body, idempotencyKey)
		if err == nil && status >= 200 && status < 300 {
			return raw, nil
		}
		if err != nil {
			lastErr = errors.Wrapf(err, "%s %s", method, redact(u))
		} else {
			lastErr = newAPIError(status, raw)
		}
		if !shouldRetry(status, err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *GraphClient) once(ctx context.Context, method, u string, body []byte, idempotencyKey string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func shouldRetry(status int, err error) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	if err != nil {
		var netErr net.Error
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return true
		}
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
	}
	return false
}

func withJitter(base time.Duration, attempt int) time.Duration {
	backoff := base << attempt
	if backoff < 2 {
		return backoff
	}
	j := time.Duration(rand.Int63n(int64(backoff / 2)))
	return backoff/2 + j
}

// redact strips query strings, which may carry app secrets, from error text.
func redact(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i]
	}
	return u
}
