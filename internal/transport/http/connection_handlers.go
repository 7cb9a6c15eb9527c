package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/identity"
	"github.com/anandk/vidya-server/internal/session"
)

// ConnectionHandlers serves the connection-details endpoint the browser
// client calls before joining a room.
type ConnectionHandlers struct {
	coordinator *session.Coordinator
	// missingVar names the unset LiveKit configuration variable when
	// the coordinator could not be built. Connection requests then fail
	// loudly instead of degrading.
	missingVar string
	log        *zerolog.Logger
}

// NewConnectionHandlers creates the connection handlers. coordinator
// may be nil when missingVar is set.
func NewConnectionHandlers(coordinator *session.Coordinator, missingVar string, logger *zerolog.Logger) *ConnectionHandlers {
	return &ConnectionHandlers{
		coordinator: coordinator,
		missingVar:  missingVar,
		log:         logger,
	}
}

// ConnectionRequest is the inbound body. Every field is untrusted and
// optional.
type ConnectionRequest struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email"`
	UserDBID   string `json:"user_db_id"`
	RoomConfig struct {
		Agents []struct {
			AgentName string `json:"agent_name"`
		} `json:"agents"`
	} `json:"room_config"`
}

// ConnectionResponse is everything the client needs to join its room.
type ConnectionResponse struct {
	ServerURL           string `json:"serverUrl"`
	RoomName            string `json:"roomName"`
	ParticipantToken    string `json:"participantToken"`
	ParticipantName     string `json:"participantName"`
	ParticipantIdentity string `json:"participantIdentity"`
}

// ResolveConnection handles the connection-details request.
// POST /api/connection-details
func (h *ConnectionHandlers) ResolveConnection(c *gin.Context) {
	if h.missingVar != "" {
		h.log.Error().Str("variable", h.missingVar).Msg("connection request with incomplete livekit configuration")
		c.String(http.StatusInternalServerError, "server misconfigured: %s is not set", h.missingVar)
		return
	}

	var req ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid connection request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	id := identity.Sanitize(identity.Raw{
		UserID:   req.UserID,
		UserName: req.UserName,
		Email:    req.UserEmail,
		DBID:     req.UserDBID,
	})

	var agentName string
	if len(req.RoomConfig.Agents) > 0 {
		agentName = identity.Clean(req.RoomConfig.Agents[0].AgentName)
	}

	desc, err := h.coordinator.ResolveConnection(c.Request.Context(), id, agentName)
	if err != nil {
		var rle *session.RateLimitError
		if errors.As(err, &rle) {
			seconds := int(math.Ceil(rle.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many connection attempts, please wait"})
			return
		}

		h.log.Error().Err(err).Str("identity", id.UserID).Msg("failed to resolve connection")
		c.String(http.StatusInternalServerError, "failed to resolve connection")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, ConnectionResponse{
		ServerURL:           desc.ServerURL,
		RoomName:            desc.RoomName,
		ParticipantToken:    desc.ParticipantToken,
		ParticipantName:     desc.ParticipantName,
		ParticipantIdentity: desc.ParticipantIdentity,
	})
}
