package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/rushabhsmehta/tour-messaging/internal/service"
)

const signatureHeader = "X-Hub-Signature-256"

// VerifyWebhook answers the provider's subscription handshake.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if h.deps.VerifyToken == "" {
		writeError(w, http.StatusServiceUnavailable, "webhook verify token is not configured")
		return
	}
	if mode != "subscribe" || challenge == "" ||
		!hmac.Equal([]byte(token), []byte(h.deps.VerifyToken)) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string       `json:"field"`
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type replyItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type interactiveReply struct {
	Type        string     `json:"type"`
	ButtonReply *replyItem `json:"button_reply,omitempty"`
	ListReply   *replyItem `json:"list_reply,omitempty"`
	NfmReply    *struct {
		Name         string `json:"name"`
		Body         string `json:"body"`
		ResponseJSON string `json:"response_json"`
	} `json:"nfm_reply,omitempty"`
}

type webhookValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text,omitempty"`
		Button *struct {
			Text    string `json:"text"`
			Payload string `json:"payload"`
		} `json:"button,omitempty"`
		Interactive *interactiveReply `json:"interactive,omitempty"`
	} `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
		Errors      []struct {
			Code    int    `json:"code"`
			Title   string `json:"title"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"statuses"`
}

// ReceiveWebhook applies delivery receipts and inbound messages. The provider
// retries non-2xx replies, so per item failures are logged and acknowledged.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if h.deps.AppSecret != "" {
		if err := verifySignature(h.deps.AppSecret, r.Header.Get(signatureHeader), raw); err != nil {
			slog.Warn("webhook signature rejected", "err", err)
			writeError(w, http.StatusForbidden, "forbidden: "+err.Error())
			return
		}
	}

	var body webhookPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx := r.Context()
	var statuses, messages int
	for _, entry := range body.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			for _, st := range v.Statuses {
				if h.deps.Statuses == nil {
					break
				}
				u := service.StatusUpdate{
					ProviderMessageID: st.ID,
					Status:            st.Status,
					Timestamp:         unixTime(st.Timestamp),
					RecipientID:       st.RecipientID,
				}
				for _, e := range st.Errors {
					u.Errors = append(u.Errors, strconv.Itoa(e.Code)+" "+firstNonEmpty(e.Message, e.Title))
				}
				if _, _, err := h.deps.Statuses.Apply(ctx, u); err != nil {
					slog.Warn("apply status failed", "provider_message_id", st.ID, "status", st.Status, "err", err)
					continue
				}
				statuses++
			}

			for _, m := range v.Messages {
				if h.deps.Events == nil {
					break
				}
				in := service.InboundMessage{
					ProviderMessageID: m.ID,
					From:              m.From,
					Type:              m.Type,
					Timestamp:         unixTime(m.Timestamp),
				}
				for _, c := range v.Contacts {
					if c.WaID == m.From {
						in.ContactID = c.WaID
						in.ProfileName = c.Profile.Name
					}
				}
				switch {
				case m.Text != nil:
					in.Text = m.Text.Body
				case m.Button != nil:
					in.Text = m.Button.Text
				case m.Interactive != nil:
					readInteractive(&in, m.Interactive)
				}
				if _, err := h.deps.Events.Receive(ctx, in); err != nil {
					slog.Warn("receive message failed", "provider_message_id", m.ID, "err", err)
					continue
				}
				messages++
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses, "messages": messages})
}

func readInteractive(in *service.InboundMessage, r *interactiveReply) {
	in.Type = "interactive:" + r.Type
	switch {
	case r.ButtonReply != nil:
		in.Text = r.ButtonReply.Title
	case r.ListReply != nil:
		in.Text = r.ListReply.Title
	case r.NfmReply != nil:
		// flow completion; response_json carries the token issued on send
		in.Text = firstNonEmpty(r.NfmReply.Body, r.NfmReply.Name)
		resp := []byte(r.NfmReply.ResponseJSON)
		in.FlowToken, _ = jsonparser.GetString(resp, "flow_token")
		in.Screen, _ = jsonparser.GetString(resp, "screen")
	}
}

func verifySignature(secret, header string, body []byte) error {
	sig := strings.TrimSpace(header)
	if sig == "" {
		return errors.New("missing " + signatureHeader)
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return errors.New("invalid " + signatureHeader + " format")
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return errors.New("invalid signature hex")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return errors.New("signature mismatch")
	}
	return nil
}

func unixTime(raw string) time.Time {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
