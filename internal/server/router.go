package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/backend/internal/directory"
	"github.com/inkwell-labs/inkwell/backend/internal/ids"
	"github.com/inkwell-labs/inkwell/backend/internal/notes"
	"github.com/inkwell-labs/inkwell/backend/internal/notify"
	"github.com/inkwell-labs/inkwell/backend/internal/presence"
	"github.com/inkwell-labs/inkwell/backend/internal/sharing"
)

const userIDContextKey = "inkwell_user_id"

var (
	errMissingCollabService = errors.New("collaboration service dependency required")
	errMissingNoteStore     = errors.New("note store dependency required")
	errMissingDirectory     = errors.New("directory dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingIDProvider    = errors.New("id provider dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates API bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to the collaboration core.
type Dependencies struct {
	Collab        *sharing.Service
	Notes         *notes.Store
	Directory     *directory.Service
	Notifications *notify.Dispatcher
	Tokens        TokenManager
	IDProvider    ids.Provider
	Events        *EventDispatcher
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin handler exposing the collaboration facade.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Collab == nil {
		return nil, errMissingCollabService
	}
	if deps.Notes == nil {
		return nil, errMissingNoteStore
	}
	if deps.Directory == nil {
		return nil, errMissingDirectory
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.IDProvider == nil {
		return nil, errMissingIDProvider
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewEventDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		collab:        deps.Collab,
		notes:         deps.Notes,
		directory:     deps.Directory,
		notifications: deps.Notifications,
		tokens:        deps.Tokens,
		ids:           deps.IDProvider,
		events:        events,
		logger:        logger,
	}

	router.POST("/users", handler.handleRegister)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes", handler.handleListOwnedNotes)
	protected.GET("/notes/:noteID/collaborators", handler.handleGetCollaborators)
	protected.POST("/notes/:noteID/collaborators", handler.handleInvite)
	protected.PATCH("/notes/:noteID/collaborators/:userID", handler.handleUpdatePermission)
	protected.DELETE("/notes/:noteID/collaborators/:userID", handler.handleRemoveCollaborator)
	protected.GET("/notes/:noteID/stats", handler.handleStats)
	protected.GET("/notes/:noteID/permission", handler.handleGetPermission)
	protected.GET("/notes/:noteID/events", handler.handleEvents)
	protected.GET("/collaborations", handler.handleCollaboratedNotes)
	protected.GET("/notifications", handler.handleNotifications)
	protected.POST("/presence/join", handler.handleJoin)
	protected.POST("/presence/leave", handler.handleLeave)
	protected.POST("/presence/cursor", handler.handleCursor)
	protected.POST("/presence/heartbeat", handler.handleHeartbeat)

	return router, nil
}

type httpHandler struct {
	collab        *sharing.Service
	notes         *notes.Store
	directory     *directory.Service
	notifications *notify.Dispatcher
	tokens        TokenManager
	ids           ids.Provider
	events        *EventDispatcher
	logger        *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// respondError maps the collaboration failure taxonomy onto HTTP statuses so
// clients can branch on cause.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sharing.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
	case errors.Is(err, sharing.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, sharing.ErrDuplicateCollaborator):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_collaborator"})
	case errors.Is(err, sharing.ErrInvalidOperation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_operation"})
	case errors.Is(err, sharing.ErrInvalidNoteID),
		errors.Is(err, sharing.ErrInvalidUserID),
		errors.Is(err, sharing.ErrInvalidConnectionID),
		errors.Is(err, sharing.ErrInvalidPermission),
		errors.Is(err, sharing.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, directory.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
	case errors.Is(err, sharing.ErrUpstreamUnavailable):
		h.logger.Error("upstream failure", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_unavailable"})
	default:
		h.logger.Error("unexpected failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

type registerRequestPayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type registerResponsePayload struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	DisplayName          string `json:"display_name"`
	AccessToken          string `json:"access_token"`
	ExpiresIn            int64  `json:"expires_in"`
	TokenType            string `json:"token_type"`
	ActivatedInvitations int    `json:"activated_invitations"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.directory.Register(c.Request.Context(), request.Email, request.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}

	userID, err := sharing.NewUserID(account.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	activated, err := h.collab.ActivatePendingInvitations(c.Request.Context(), userID, account.Email)
	if err != nil {
		// The account exists; deferred grants can still materialize via a
		// later invite. Registration proceeds.
		h.logger.Warn("pending invitation activation failed",
			zap.String("user_id", account.UserID), zap.Error(err))
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), account.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, registerResponsePayload{
		UserID:               account.UserID,
		Email:                account.Email,
		DisplayName:          account.DisplayName,
		AccessToken:          token,
		ExpiresIn:            expiresIn,
		TokenType:            "Bearer",
		ActivatedInvitations: activated,
	})
}

type createNoteRequestPayload struct {
	NoteID string `json:"note_id"`
	Title  string `json:"title"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	var request createNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	noteID := strings.TrimSpace(request.NoteID)
	if noteID == "" {
		generated, err := h.ids.NewID()
		if err != nil {
			h.logger.Error("id generation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		noteID = generated
	}

	note, err := h.notes.Create(c.Request.Context(), noteID, requester, strings.TrimSpace(request.Title))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"note_id":  note.NoteID,
		"owner_id": note.OwnerID,
		"title":    note.Title,
	})
}

func (h *httpHandler) handleListOwnedNotes(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	owned, err := h.notes.ListByOwner(c.Request.Context(), requester)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]gin.H, 0, len(owned))
	for _, note := range owned {
		payload = append(payload, gin.H{
			"note_id": note.NoteID,
			"title":   note.Title,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notes": payload})
}

type inviteRequestPayload struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

func (h *httpHandler) handleInvite(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	var request inviteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	noteID, inviterID, permission, err := h.parseGrantParams(c.Param("noteID"), requester, request.Permission)
	if err != nil {
		h.respondError(c, err)
		return
	}

	outcome, err := h.collab.Invite(c.Request.Context(), noteID, inviterID, request.Email, permission)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if outcome.Status == sharing.InviteStatusDeferred {
		c.JSON(http.StatusAccepted, gin.H{
			"status":  string(outcome.Status),
			"message": "invitation will be sent when the invitee registers",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status": string(outcome.Status),
		"grant": gin.H{
			"note_id":    outcome.Grant.NoteID,
			"user_id":    outcome.Grant.UserID,
			"permission": outcome.Grant.Permission.Display(),
		},
	})
}

type updatePermissionRequestPayload struct {
	Permission string `json:"permission"`
}

func (h *httpHandler) handleUpdatePermission(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	var request updatePermissionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	noteID, updaterID, permission, err := h.parseGrantParams(c.Param("noteID"), requester, request.Permission)
	if err != nil {
		h.respondError(c, err)
		return
	}
	targetID, err := sharing.NewUserID(c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	grant, err := h.collab.UpdatePermission(c.Request.Context(), noteID, targetID, permission, updaterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"note_id":    grant.NoteID,
		"user_id":    grant.UserID,
		"permission": grant.Permission.Display(),
	})
}

func (h *httpHandler) handleRemoveCollaborator(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	noteID, err := sharing.NewNoteID(c.Param("noteID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	targetID, err := sharing.NewUserID(c.Param("userID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	removerID, err := sharing.NewUserID(requester)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.collab.RemoveCollaborator(c.Request.Context(), noteID, targetID, removerID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetCollaborators(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	noteID, requesterID, err := h.parseNoteParams(c.Param("noteID"), requester)
	if err != nil {
		h.respondError(c, err)
		return
	}

	collaborators, err := h.collab.GetCollaborators(c.Request.Context(), noteID, requesterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	noteID, requesterID, err := h.parseNoteParams(c.Param("noteID"), requester)
	if err != nil {
		h.respondError(c, err)
		return
	}

	stats, err := h.collab.GetCollaborationStats(c.Request.Context(), noteID, requesterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleGetPermission(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	noteID, requesterID, err := h.parseNoteParams(c.Param("noteID"), requester)
	if err != nil {
		h.respondError(c, err)
		return
	}

	permission, err := h.collab.GetUserPermission(c.Request.Context(), noteID, requesterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permission": permission.Display()})
}

func (h *httpHandler) handleCollaboratedNotes(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	requesterID, err := sharing.NewUserID(requester)
	if err != nil {
		h.respondError(c, err)
		return
	}

	collaborated, err := h.collab.GetCollaboratedNotes(c.Request.Context(), requesterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": collaborated})
}

func (h *httpHandler) handleNotifications(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	if h.notifications == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []gin.H{}})
		return
	}
	rows, err := h.notifications.ListForUser(c.Request.Context(), requester)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, gin.H{
			"notification_id": row.NotificationID,
			"title":           row.Title,
			"message":         row.Message,
			"type":            row.Type,
			"note_id":         row.NoteID,
			"created_at_s":    row.CreatedAtSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"notifications": payload})
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	noteID, requesterID, err := h.parseNoteParams(c.Param("noteID"), requester)
	if err != nil {
		h.respondError(c, err)
		return
	}
	permission, err := h.collab.GetUserPermission(c.Request.Context(), noteID, requesterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !permission.AllowsRead() {
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
		return
	}

	stream, cleanup := h.events.Subscribe(c.Request.Context(), noteID.String())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent("presence", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type joinRequestPayload struct {
	NoteID       string `json:"note_id"`
	ConnectionID string `json:"connection_id"`
}

func (h *httpHandler) handleJoin(c *gin.Context) {
	requester := c.GetString(userIDContextKey)
	var request joinRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	noteID, userID, err := h.parseNoteParams(request.NoteID, requester)
	if err != nil {
		h.respondError(c, err)
		return
	}
	connectionID, err := sharing.NewConnectionID(request.ConnectionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	collaborators, err := h.collab.Join(c.Request.Context(), noteID, userID, connectionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.events.Publish(PresenceEvent{
		NoteID:    noteID.String(),
		UserID:    userID.String(),
		EventType: PresenceEventJoined,
		Timestamp: time.Now().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"collaborators": collaborators})
}

type connectionRequestPayload struct {
	ConnectionID string `json:"connection_id"`
}

func (h *httpHandler) handleLeave(c *gin.Context) {
	var request connectionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	connectionID, err := sharing.NewConnectionID(request.ConnectionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if noteID, userID, ok := h.collab.Leave(connectionID); ok {
		h.events.Publish(PresenceEvent{
			NoteID:    noteID,
			UserID:    userID,
			EventType: PresenceEventLeft,
			Timestamp: time.Now().UTC(),
		})
	}
	c.Status(http.StatusNoContent)
}

type cursorRequestPayload struct {
	ConnectionID string          `json:"connection_id"`
	Cursor       presence.Cursor `json:"cursor"`
}

func (h *httpHandler) handleCursor(c *gin.Context) {
	var request cursorRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	connectionID, err := sharing.NewConnectionID(request.ConnectionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if noteID, userID, ok := h.collab.UpdateCursor(connectionID, request.Cursor); ok {
		cursor := request.Cursor
		h.events.Publish(PresenceEvent{
			NoteID:    noteID,
			UserID:    userID,
			EventType: PresenceEventCursorMoved,
			Cursor:    &cursor,
			Timestamp: time.Now().UTC(),
		})
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleHeartbeat(c *gin.Context) {
	var request connectionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	connectionID, err := sharing.NewConnectionID(request.ConnectionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.collab.Touch(connectionID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) parseNoteParams(rawNoteID, rawUserID string) (sharing.NoteID, sharing.UserID, error) {
	noteID, err := sharing.NewNoteID(rawNoteID)
	if err != nil {
		return "", "", err
	}
	userID, err := sharing.NewUserID(rawUserID)
	if err != nil {
		return "", "", err
	}
	return noteID, userID, nil
}

func (h *httpHandler) parseGrantParams(rawNoteID, rawUserID, rawPermission string) (sharing.NoteID, sharing.UserID, sharing.Permission, error) {
	noteID, userID, err := h.parseNoteParams(rawNoteID, rawUserID)
	if err != nil {
		return "", "", sharing.PermissionNone, err
	}
	permission, err := sharing.ParsePermission(rawPermission)
	if err != nil {
		return "", "", sharing.PermissionNone, err
	}
	return noteID, userID, permission, nil
}
