package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBodyBytes = 64 << 10

// WebhookClient delivers automation payloads to third-party endpoints.
type WebhookClient struct {
	client *http.Client
}

func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookClient{
		client: &http.Client{Timeout: timeout},
	}
}

type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
}

// Do sends the request with a JSON body. Any 2xx status is a success.
func (c *WebhookClient) Do(ctx context.Context, wr WebhookRequest) error {
	method := strings.ToUpper(strings.TrimSpace(wr.Method))
	if method == "" {
		method = http.MethodPost
	}

	reqBody, err := json.Marshal(wr.Body)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, wr.URL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range wr.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
}
