package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/memory"
	"github.com/anandk/vidya-server/internal/prompts"
	"github.com/anandk/vidya-server/internal/store"
)

// MemoryHandlers serves the agent-facing conversation memory API.
type MemoryHandlers struct {
	memory  *memory.Service
	prompts prompts.Config
	log     *zerolog.Logger
}

// NewMemoryHandlers creates the memory handlers.
func NewMemoryHandlers(memorySvc *memory.Service, promptCfg prompts.Config, logger *zerolog.Logger) *MemoryHandlers {
	return &MemoryHandlers{
		memory:  memorySvc,
		prompts: promptCfg,
		log:     logger,
	}
}

// StartSessionRequest opens a conversation for a room.
type StartSessionRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	RoomName string `json:"room_name" binding:"required"`
}

// SessionResponse identifies the opened conversation.
type SessionResponse struct {
	ConversationID string `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
}

// StartSession opens a conversation when the agent picks up a room.
// POST /api/memory/sessions
func (h *MemoryHandlers) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid start session request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	session, err := h.memory.StartSession(c.Request.Context(), req.Username, req.Email, req.FullName, req.RoomName)
	if err != nil {
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to start session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{
		ConversationID: session.ConversationID,
		UserID:         session.UserID,
	})
}

// LogTurnRequest records one user/tutor exchange.
type LogTurnRequest struct {
	ConversationID    string `json:"conversation_id" binding:"required"`
	Username          string `json:"username" binding:"required"`
	UserMessage       string `json:"user_message" binding:"required"`
	AssistantResponse string `json:"assistant_response" binding:"required"`
}

// LogTurn appends a transcript exchange.
// POST /api/memory/turns
func (h *MemoryHandlers) LogTurn(c *gin.Context) {
	var req LogTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid log turn request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.memory.LogTurn(c.Request.Context(), req.ConversationID, req.Username, req.UserMessage, req.AssistantResponse); err != nil {
		h.log.Error().Err(err).Str("conversation_id", req.ConversationID).Msg("failed to log turn")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Recall returns the formatted memory context for a user.
// GET /api/memory/recall?username=...
func (h *MemoryHandlers) Recall(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username required"})
		return
	}

	context, err := h.memory.ContextPrompt(c.Request.Context(), username)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("failed to recall memory")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"context": context})
}

// Knowledge queries the knowledge store on the agent's behalf.
// GET /api/memory/knowledge?query=...
func (h *MemoryHandlers) Knowledge(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query required"})
		return
	}

	answer, err := h.memory.Knowledge(c.Request.Context(), query)
	if err != nil {
		h.log.Warn().Err(err).Msg("knowledge query failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "knowledge store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// ProgressResponse is one learning progress row.
type ProgressResponse struct {
	Subject         string  `json:"subject"`
	Topic           string  `json:"topic"`
	Proficiency     int     `json:"proficiency"`
	Notes           *string `json:"notes,omitempty"`
	LastPracticedAt string  `json:"last_practiced_at"`
}

// GetProgress lists a user's learning progress.
// GET /api/memory/progress?username=...&subject=...
func (h *MemoryHandlers) GetProgress(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username required"})
		return
	}

	rows, err := h.memory.Progress(c.Request.Context(), username, c.Query("subject"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("username", username).Msg("failed to get progress")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ProgressResponse, 0, len(rows))
	for _, p := range rows {
		response = append(response, ProgressResponse{
			Subject:         p.Subject,
			Topic:           p.Topic,
			Proficiency:     p.Proficiency,
			Notes:           p.Notes,
			LastPracticedAt: p.LastPracticedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, response)
}

// UpdateProgressRequest upserts a proficiency row.
type UpdateProgressRequest struct {
	Username    string  `json:"username" binding:"required"`
	Subject     string  `json:"subject" binding:"required"`
	Topic       string  `json:"topic" binding:"required"`
	Proficiency int     `json:"proficiency" binding:"required,min=1,max=10"`
	Notes       *string `json:"notes"`
}

// UpdateProgress upserts a learning progress row.
// PUT /api/memory/progress
func (h *MemoryHandlers) UpdateProgress(c *gin.Context) {
	var req UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update progress request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.memory.UpdateProgress(c.Request.Context(), req.Username, req.Subject, req.Topic, req.Proficiency, req.Notes); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to update progress")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// InstructionsResponse carries the assembled agent prompts.
type InstructionsResponse struct {
	AgentInstruction   string `json:"agent_instruction"`
	SessionInstruction string `json:"session_instruction"`
	Returning          bool   `json:"returning"`
}

// Instructions returns memory-enhanced prompts for the agent.
// GET /api/agent/instructions?username=...&name=...
func (h *MemoryHandlers) Instructions(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username required"})
		return
	}

	memoryContext, err := h.memory.ContextPrompt(c.Request.Context(), username)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("failed to build memory context")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	returning := memoryContext != ""
	c.JSON(http.StatusOK, InstructionsResponse{
		AgentInstruction:   prompts.AgentInstruction(h.prompts, memoryContext),
		SessionInstruction: prompts.SessionInstruction(h.prompts, returning, c.Query("name")),
		Returning:          returning,
	})
}
