package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("POST /v1/messages", h.SendMessage)
	mux.HandleFunc("POST /v1/messages/process-due", h.ProcessDue)
	mux.HandleFunc("GET /v1/messages/sent", h.ListSentMessages)

	mux.HandleFunc("GET /v1/webhook", h.VerifyWebhook)
	mux.HandleFunc("POST /v1/webhook", h.ReceiveWebhook)

	mux.HandleFunc("POST /v1/events", h.EmitEvent)
	mux.HandleFunc("POST /v1/templates/sync", h.SyncTemplates)

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("tour-messaging"))
	})

	return mux
}
