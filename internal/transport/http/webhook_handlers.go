package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/memory"
	"github.com/anandk/vidya-server/internal/store"
	"github.com/anandk/vidya-server/internal/summarize"
)

const transcriptLimit = 200

// WebhookHandlers finalizes conversations on room lifecycle events.
type WebhookHandlers struct {
	verifier   auth.KeyProvider
	memory     *memory.Service
	summarizer *summarize.Summarizer
	log        *zerolog.Logger
}

// NewWebhookHandlers creates the webhook handlers. summarizer may be nil,
// in which case conversations are closed without a summary.
func NewWebhookHandlers(apiKey, apiSecret string, memorySvc *memory.Service, summarizer *summarize.Summarizer, logger *zerolog.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		verifier:   auth.NewSimpleKeyProvider(apiKey, apiSecret),
		memory:     memorySvc,
		summarizer: summarizer,
		log:        logger,
	}
}

// Receive validates and dispatches a LiveKit webhook event.
// POST /webhooks/livekit
func (h *WebhookHandlers) Receive(c *gin.Context) {
	event, err := webhook.ReceiveWebhookEvent(c.Request, h.verifier)
	if err != nil {
		h.log.Warn().Err(err).Msg("rejected webhook event")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid webhook signature"})
		return
	}

	switch event.Event {
	case webhook.EventRoomFinished:
		h.roomFinished(c.Request.Context(), event)
	default:
		h.log.Debug().Str("event", event.Event).Msg("ignoring webhook event")
	}

	c.Status(http.StatusOK)
}

func (h *WebhookHandlers) roomFinished(ctx context.Context, event *livekit.WebhookEvent) {
	if event.Room == nil || h.memory == nil {
		return
	}
	roomName := event.Room.Name

	conv, err := h.memory.OpenByRoom(ctx, roomName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Str("room", roomName).Msg("failed to look up conversation for finished room")
		}
		return
	}

	var topic, summary *string
	if h.summarizer != nil {
		transcript, err := h.memory.Transcript(ctx, conv.ID, transcriptLimit)
		if err != nil {
			h.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to load transcript for summary")
		} else if transcript != "" {
			sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			t, s, err := h.summarizer.Summarize(sctx, transcript)
			cancel()
			if err != nil {
				h.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to summarize conversation")
			} else {
				if t != "" {
					topic = &t
				}
				if s != "" {
					summary = &s
				}
			}
		}
	}

	if err := h.memory.EndConversation(ctx, conv.ID, summary, topic); err != nil {
		h.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to end conversation")
		return
	}
	h.log.Info().Str("room", roomName).Str("conversation_id", conv.ID).Msg("conversation closed")
}
