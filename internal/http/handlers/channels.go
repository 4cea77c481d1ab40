package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/webhooks"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type channelManager interface {
	Setup(ctx context.Context, providerID uuid.UUID) (*webhooks.Channel, error)
	Stop(ctx context.Context, providerID uuid.UUID) error
}

// ChannelsHandler manages a provider's calendar watch subscription.
type ChannelsHandler struct {
	manager channelManager
	logger  *logging.Logger
}

func NewChannelsHandler(manager channelManager, logger *logging.Logger) *ChannelsHandler {
	if manager == nil {
		panic("handlers: channel manager required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChannelsHandler{manager: manager, logger: logger}
}

type channelResponse struct {
	ChannelID  string    `json:"channel_id"`
	ResourceID string    `json:"resource_id"`
	Expiration time.Time `json:"expiration"`
}

// Setup registers (or re-registers) the provider's watch channel.
func (h *ChannelsHandler) Setup(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	ch, err := h.manager.Setup(r.Context(), providerID)
	if err != nil {
		h.logger.Error("channel setup failed", "provider_id", providerID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, channelResponse{
		ChannelID:  ch.ChannelID,
		ResourceID: ch.ResourceID,
		Expiration: ch.Expiration,
	})
}

// Stop tears the provider's watch channel down.
func (h *ChannelsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	if err := h.manager.Stop(r.Context(), providerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
