package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookClient_Do_Success(t *testing.T) {
	t.Parallel()

	type gotReq struct {
		Method      string
		ContentType string
		Secret      string
		Body        []byte
	}

	var captured gotReq

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Method = r.Method
		captured.ContentType = r.Header.Get("Content-Type")
		captured.Secret = r.Header.Get("X-Secret")

		b, _ := ioReadAll(r)
		captured.Body = b

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewWebhookClient(time.Second)

	err := c.Do(context.Background(), WebhookRequest{
		URL:     srv.URL,
		Method:  "put",
		Headers: map[string]string{"X-Secret": "s3cret"},
		Body:    map[string]string{"automationId": "a1"},
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}

	if captured.Method != http.MethodPut {
		t.Fatalf("expected method PUT, got %q", captured.Method)
	}
	if captured.ContentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", captured.ContentType)
	}
	if captured.Secret != "s3cret" {
		t.Fatalf("expected custom header, got %q", captured.Secret)
	}

	var body map[string]string
	if err := json.Unmarshal(captured.Body, &body); err != nil {
		t.Fatalf("failed to decode request json: %v body=%q", err, string(captured.Body))
	}
	if body["automationId"] != "a1" {
		t.Fatalf("expected automationId %q, got %q", "a1", body["automationId"])
	}
}

func TestWebhookClient_Do_DefaultsToPost(t *testing.T) {
	t.Parallel()

	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := NewWebhookClient(0).Do(context.Background(), WebhookRequest{URL: srv.URL}); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if method != http.MethodPost {
		t.Fatalf("expected POST, got %q", method)
	}
}

func TestWebhookClient_Do_Non2xx_ReturnsErrorWithBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad payload"))
	}))
	defer srv.Close()

	err := NewWebhookClient(time.Second).Do(context.Background(), WebhookRequest{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "unexpected status code: 400") {
		t.Fatalf("expected error to mention status code, got: %v", err)
	}
	if !strings.Contains(msg, `body="bad payload"`) {
		t.Fatalf("expected error to include body, got: %v", err)
	}
}

func TestWebhookClient_Do_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewWebhookClient(time.Second).Do(ctx, WebhookRequest{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "context") &&
		!strings.Contains(strings.ToLower(err.Error()), "deadline") {
		t.Fatalf("expected context/deadline error, got: %v", err)
	}
}

func ioReadAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
