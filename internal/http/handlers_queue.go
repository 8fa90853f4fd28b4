package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/reviewloop/relay/internal/core"
	"github.com/reviewloop/relay/internal/domain/model"
)

// QueueHandlers provides operator-facing HTTP handlers for channel inspection.
type QueueHandlers struct {
	Introspector core.ChannelIntrospector
}

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// Stats returns delivery counts per state.
func (h *QueueHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Introspector.Stats(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ListDeadLetters returns the most recently dead-lettered deliveries.
func (h *QueueHandlers) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultDeadLetterLimit)
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}
	if limit > maxDeadLetterLimit {
		limit = maxDeadLetterLimit
	}

	letters, err := h.Introspector.ListDeadLetters(r.Context(), limit)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"dead_letters": letters, "count": len(letters)})
}

// RequeueDeadLetter moves a dead-lettered delivery back onto the channel as a
// fresh delivery with a reset receive count.
func (h *QueueHandlers) RequeueDeadLetter(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.PathValue("id")
	if deliveryID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("delivery id is required"),
		})
		return
	}

	newID, err := h.Introspector.RequeueDeadLetter(r.Context(), deliveryID)
	if err != nil {
		if errors.Is(err, model.ErrDeadLetterNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "requeue_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"delivery_id": newID})
}

// parseIntQuery parses an integer query parameter, returning def when the
// parameter is absent or malformed.
func parseIntQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
