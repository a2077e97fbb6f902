package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rushabhsmehta/tour-messaging/internal/automation"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/payload"
	"github.com/rushabhsmehta/tour-messaging/internal/scheduler"
	"github.com/rushabhsmehta/tour-messaging/internal/service"
)

type MessageLister interface {
	ListSent(ctx context.Context, limit, offset int) ([]model.Message, error)
}

type Sender interface {
	Send(ctx context.Context, req service.SendRequest) (service.SendResult, error)
}

type DueProcessor interface {
	ProcessDue(ctx context.Context, limit int) (service.ProcessReport, error)
}

type StatusApplier interface {
	Apply(ctx context.Context, u service.StatusUpdate) (model.Message, bool, error)
}

type EventReceiver interface {
	Receive(ctx context.Context, m service.InboundMessage) (*model.Session, error)
	Emit(ctx context.Context, ev service.CustomEvent) (automation.RunReport, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type TemplateSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// Deps are the collaborators behind the HTTP surface. Nil members disable
// their routes' behaviour with 503.
type Deps struct {
	Messages  MessageLister
	Sender    Sender
	Processor DueProcessor
	Statuses  StatusApplier
	Events    EventReceiver
	Templates TemplateSyncer
	DB        Pinger

	BatchSize   int
	VerifyToken string
	AppSecret   string
}

type Handler struct {
	sched    *scheduler.Scheduler
	deps     Deps
	validate *validator.Validate
}

func NewHandler(s *scheduler.Scheduler, deps Deps) *Handler {
	if deps.BatchSize <= 0 {
		deps.BatchSize = 20
	}
	return &Handler{sched: s, deps: deps, validate: validator.New()}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.DB.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) ListSentMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.deps.Messages.ListSent(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type sendMessageRequest struct {
	payload.Request
	ScheduleFor     *time.Time         `json:"scheduleFor,omitempty"`
	SkipPersistence bool               `json:"skipPersistence,omitempty"`
	ContactID       string             `json:"contactId,omitempty"`
	Tags            []string           `json:"tags,omitempty" validate:"omitempty,dive,required"`
	Context         model.ContextPatch `json:"context"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sender == nil {
		writeError(w, http.StatusServiceUnavailable, "sending is not configured")
		return
	}

	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := req.Context
	patch.Tags = append(patch.Tags, req.Tags...)

	res, err := h.deps.Sender.Send(r.Context(), service.SendRequest{
		Request:         req.Request,
		ScheduleFor:     req.ScheduleFor,
		SkipPersistence: req.SkipPersistence,
		ContactID:       req.ContactID,
		Patch:           patch,
		Metadata:        req.Metadata,
	})
	switch {
	case errors.Is(err, payload.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, res)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case !res.Success:
		writeJSON(w, http.StatusBadGateway, res)
	case res.Record != nil && res.Record.Status == model.Scheduled:
		writeJSON(w, http.StatusAccepted, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) ProcessDue(w http.ResponseWriter, r *http.Request) {
	if h.deps.Processor == nil {
		writeError(w, http.StatusServiceUnavailable, "processing is not configured")
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), h.deps.BatchSize)
	if limit <= 0 {
		limit = h.deps.BatchSize
	}
	report, err := h.deps.Processor.ProcessDue(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type emitEventRequest struct {
	EventType   string         `json:"eventType" validate:"required"`
	PhoneNumber string         `json:"phoneNumber,omitempty"`
	ContactID   string         `json:"contactId,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (h *Handler) EmitEvent(w http.ResponseWriter, r *http.Request) {
	if h.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "events are not configured")
		return
	}

	var req emitEventRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.deps.Events.Emit(r.Context(), service.CustomEvent{
		Type:        strings.TrimSpace(req.EventType),
		PhoneNumber: req.PhoneNumber,
		ContactID:   req.ContactID,
		SessionID:   req.SessionID,
		Payload:     req.Payload,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) SyncTemplates(w http.ResponseWriter, r *http.Request) {
	if h.deps.Templates == nil {
		writeError(w, http.StatusServiceUnavailable, "template sync is not configured")
		return
	}
	n, err := h.deps.Templates.Sync(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"synced": n})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid json body: " + err.Error())
	}
	return nil
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
