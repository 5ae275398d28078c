package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fieldlab/arena-server/internal/auth"
	"github.com/fieldlab/arena-server/internal/core"
)

// ErrorResponse is the generic error body of the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIHandlers provides the HTTP endpoints around the channel: login, claim,
// and room administration.
type APIHandlers struct {
	channel *core.Channel
	auth    *auth.Service
	log     *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(ch *core.Channel, authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{channel: ch, auth: authService, log: logger}
}

// LoginRequest is the login request body.
type LoginRequest struct {
	ID  string `json:"id" binding:"required"`
	Pwd string `json:"pwd"`
}

// TokenResponse carries an issued token.
type TokenResponse struct {
	ClientID string `json:"client_id"`
	Token    string `json:"token"`
}

// Login handles POST /api/login.
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.ID, req.Pwd)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("client", req.ID).Msg("login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, TokenResponse{ClientID: req.ID, Token: token})
}

// ClaimRequest maps an external participant code to a provisioned slot.
type ClaimRequest struct {
	Code string `json:"code" binding:"required"`
}

// Claim handles POST /api/claim.
func (h *APIHandlers) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	clientID, token, err := h.auth.Claim(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, auth.ErrPoolExhausted) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "no slot available"})
			return
		}
		h.log.Error().Err(err).Str("code", req.Code).Msg("claim failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, TokenResponse{ClientID: clientID, Token: token})
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
	Players  int      `json:"players"`
	Admins   int      `json:"admins"`
}

func roomResponse(r *core.Room) RoomResponse {
	return RoomResponse{
		ID:       r.ID,
		Name:     r.Name,
		Type:     string(r.Type),
		Parent:   r.Parent(),
		Children: r.Children(),
		Players:  r.PlayerCount(),
		Admins:   len(r.Admins()),
	}
}

// ListRooms handles GET /api/rooms.
func (h *APIHandlers) ListRooms(c *gin.Context) {
	rooms := h.channel.Rooms()
	out := make([]RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

// CreateRoomRequest is the create room request body.
type CreateRoomRequest struct {
	Name      string   `json:"name"`
	Parent    string   `json:"parent"`
	Game      string   `json:"game" binding:"required"`
	Treatment string   `json:"treatment"`
	Clients   []string `json:"clients"`
}

// CreateRoom handles POST /api/rooms (admin only).
func (h *APIHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	room, err := h.channel.CreateGameRoom(core.RoomConfig{
		Name:       req.Name,
		ParentName: req.Parent,
		GameName:   req.Game,
		Treatment:  req.Treatment,
		Clients:    req.Clients,
	})
	switch {
	case errors.Is(err, core.ErrRoomLimit):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "room limit reached"})
		return
	case errors.Is(err, core.ErrNameCollision):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
		return
	case errors.Is(err, core.ErrUnknownParent):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown parent room"})
		return
	case errors.Is(err, core.ErrConfiguration):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown game or treatment"})
		return
	case err != nil:
		h.log.Error().Err(err).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	h.log.Info().Str("room", room.Name).Msg("room created via api")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// DestroyRoomRequest is the destroy room request body.
type DestroyRoomRequest struct {
	SubstituteRoom    string `json:"substitute_room"`
	IgnoreRunningGame bool   `json:"ignore_running_game"`
	DisconnectPlayers bool   `json:"disconnect_players"`
}

// DestroyRoom handles DELETE /api/rooms/:name (admin only).
func (h *APIHandlers) DestroyRoom(c *gin.Context) {
	var req DestroyRoomRequest
	// Body is optional; default options destroy only empty, finished rooms.
	_ = c.ShouldBindJSON(&req)

	ok, err := h.channel.DestroyRoom(c.Param("name"), core.DestroyOptions{
		SubstituteRoom:    req.SubstituteRoom,
		IgnoreRunningGame: req.IgnoreRunningGame,
		DisconnectPlayers: req.DisconnectPlayers,
	})
	switch {
	case errors.Is(err, core.ErrUnknownRoom):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown room"})
		return
	case errors.Is(err, core.ErrIncompatibleOptions), errors.Is(err, core.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		h.log.Error().Err(err).Str("room", c.Param("name")).Msg("failed to destroy room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	case !ok:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "destroy refused"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListClients handles GET /api/clients (admin only).
func (h *APIHandlers) ListClients(c *gin.Context) {
	c.JSON(http.StatusOK, h.channel.Registry().Records())
}
