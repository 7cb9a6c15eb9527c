package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/auth"
	"github.com/anandk/vidya-server/internal/roomengine"
	"github.com/anandk/vidya-server/internal/store"
)

const conversationListLimit = 20

// AdminHandlers serves the operator dashboard API.
type AdminHandlers struct {
	auth   *auth.Service
	store  store.Store
	engine roomengine.Engine
	log    *zerolog.Logger
}

// NewAdminHandlers creates the admin handlers. store and engine may each
// be nil when the corresponding backend is not configured.
func NewAdminHandlers(authSvc *auth.Service, st store.Store, engine roomengine.Engine, logger *zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{
		auth:   authSvc,
		store:  st,
		engine: engine,
		log:    logger,
	}
}

// LoginRequest carries the operator password.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}

// Login exchanges the operator password for a bearer token.
// POST /api/admin/login
func (h *AdminHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.auth.Login(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Msg("admin login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token})
}

// StatsResponse is the admin overview.
type StatsResponse struct {
	TotalUsers         int64 `json:"total_users"`
	TotalConversations int64 `json:"total_conversations"`
	TotalMessages      int64 `json:"total_messages"`
	OpenConversations  int64 `json:"open_conversations"`
	ActiveRooms        int   `json:"active_rooms"`
}

// Stats reports store totals plus the live room count.
// GET /api/admin/stats
func (h *AdminHandlers) Stats(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage not configured"})
		return
	}

	stats, err := h.store.GetStats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load stats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := StatsResponse{
		TotalUsers:         stats.TotalUsers,
		TotalConversations: stats.TotalConversations,
		TotalMessages:      stats.TotalMessages,
		OpenConversations:  stats.OpenConversations,
	}
	if h.engine != nil {
		rooms, err := h.engine.ListRooms(c.Request.Context(), nil)
		if err != nil {
			h.log.Warn().Err(err).Msg("failed to count live rooms")
		} else {
			response.ActiveRooms = len(rooms)
		}
	}

	c.JSON(http.StatusOK, response)
}

// UserResponse is one user row in admin listings.
type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// ListUsers lists users, optionally filtered by a search term.
// GET /api/admin/users?search=...
func (h *AdminHandlers) ListUsers(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage not configured"})
		return
	}

	users, err := h.store.ListUsers(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, toUserResponse(u))
	}
	c.JSON(http.StatusOK, response)
}

// ConversationResponse is one conversation row in the user detail view.
type ConversationResponse struct {
	ID        string  `json:"id"`
	RoomName  string  `json:"room_name"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
	Topic     *string `json:"topic,omitempty"`
	Summary   *string `json:"summary,omitempty"`
}

// UserDetailResponse is a user plus recent conversations.
type UserDetailResponse struct {
	UserResponse
	Conversations []ConversationResponse `json:"conversations"`
}

// UserDetail returns one user and their recent conversations.
// GET /api/admin/users/:username
func (h *AdminHandlers) UserDetail(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage not configured"})
		return
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	conversations, err := h.store.ListConversations(c.Request.Context(), user.ID, conversationListLimit)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	detail := UserDetailResponse{UserResponse: toUserResponse(user)}
	detail.Conversations = make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		row := ConversationResponse{
			ID:        conv.ID,
			RoomName:  conv.RoomName,
			StartedAt: conv.StartedAt.Format(time.RFC3339),
			Topic:     conv.Topic,
			Summary:   conv.Summary,
		}
		if conv.EndedAt != nil {
			ended := conv.EndedAt.Format(time.RFC3339)
			row.EndedAt = &ended
		}
		detail.Conversations = append(detail.Conversations, row)
	}

	c.JSON(http.StatusOK, detail)
}

// DeleteUser removes a user and all their conversation history.
// DELETE /api/admin/users/:id
func (h *AdminHandlers) DeleteUser(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage not configured"})
		return
	}

	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	if err := h.store.DeleteUser(c.Request.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to delete user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", userID).Msg("user deleted")
	c.Status(http.StatusNoContent)
}

// RoomResponse is one live room row.
type RoomResponse struct {
	Name            string `json:"name"`
	SID             string `json:"sid"`
	NumParticipants int    `json:"num_participants"`
}

// ListRooms lists the live rooms on the media server.
// GET /api/admin/rooms
func (h *AdminHandlers) ListRooms(c *gin.Context) {
	if h.engine == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "media server not configured"})
		return
	}

	rooms, err := h.engine.ListRooms(c.Request.Context(), nil)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, RoomResponse{
			Name:            room.Name,
			SID:             room.SID,
			NumParticipants: room.NumParticipants,
		})
	}
	c.JSON(http.StatusOK, response)
}

// ParticipantResponse is one room participant row.
type ParticipantResponse struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	IsAgent  bool   `json:"is_agent"`
}

// RoomParticipants lists the participants of one live room.
// GET /api/admin/rooms/:name/participants
func (h *AdminHandlers) RoomParticipants(c *gin.Context) {
	if h.engine == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "media server not configured"})
		return
	}

	participants, err := h.engine.ListParticipants(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.log.Error().Err(err).Str("room", c.Param("name")).Msg("failed to list participants")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		response = append(response, ParticipantResponse{
			Identity: p.Identity,
			Name:     p.Name,
			IsAgent:  p.IsAgent,
		})
	}
	c.JSON(http.StatusOK, response)
}
