package httpx

import (
	"log/slog"
	"net/http"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Receiver     *service.ReceiverService
	Introspector core.ChannelIntrospector
	Webhook      config.WebhookConfig
	HTTP         config.HTTPConfig
	Logger       *slog.Logger // Logger for middleware and handler errors (optional)
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	webhookHandlers := &WebhookHandlers{
		Svc:    services.Receiver,
		Config: services.Webhook,
		Logger: services.Logger,
	}
	registerWebhookRoutes(mux, webhookHandlers, services.HTTP.MaxBodyBytes)

	if services.Introspector != nil {
		registerQueueRoutes(mux, &QueueHandlers{Introspector: services.Introspector})
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return mux
}

func registerWebhookRoutes(mux *http.ServeMux, h *WebhookHandlers, maxBody int64) {
	mux.Handle("POST /webhooks/github", MaxBody(maxBody)(http.HandlerFunc(h.Receive)))
}

func registerQueueRoutes(mux *http.ServeMux, h *QueueHandlers) {
	mux.HandleFunc("GET /api/queue/stats", h.Stats)
	mux.HandleFunc("GET /api/queue/dead-letters", h.ListDeadLetters)
	mux.HandleFunc("POST /api/queue/dead-letters/{id}/requeue", h.RequeueDeadLetter)
}
