// Package httpx provides HTTP handlers and utilities for the relay webhook ingest API.
package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/domain/model"
	"github.com/reviewloop/relay/internal/service"
)

// WebhookHandlers provides HTTP handlers for webhook ingest.
type WebhookHandlers struct {
	Svc    *service.ReceiverService
	Config config.WebhookConfig
	Logger *slog.Logger
}

// Receive handles an inbound webhook delivery. The raw body is read in full
// before anything else because the HMAC signature is computed over the exact
// bytes on the wire.
func (h *WebhookHandlers) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "body_too_large", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "body_read_failed", Err: err})
		return
	}

	req := service.WebhookRequest{
		Body:       body,
		Signature:  r.Header.Get(h.Config.SignatureHeader),
		EventType:  r.Header.Get(h.Config.EventHeader),
		DeliveryID: r.Header.Get(h.Config.DeliveryHeader),
		ReceivedAt: time.Now().UTC(),
	}

	id, err := h.Svc.Receive(r.Context(), req)
	if err != nil {
		h.writeReceiveError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "delivery_id": id})
}

// writeReceiveError maps receiver sentinels onto HTTP statuses. Ignored and
// duplicate events are accepted so the origin does not retry them.
func (h *WebhookHandlers) writeReceiveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_signature", Err: err})
	case errors.Is(err, service.ErrIgnoredEvent):
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
	case errors.Is(err, service.ErrDuplicateDelivery):
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "duplicate"})
	default:
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_payload", Err: err})
			return
		}
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "webhook ingest failed", "error", err)
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "ingest_failed", Err: err})
	}
}
