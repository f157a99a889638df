package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mentorship-chat/internal/directory"
	"mentorship-chat/internal/middleware"
	"mentorship-chat/internal/models"
	"mentorship-chat/internal/repositories"
	"mentorship-chat/internal/service"
	"mentorship-chat/internal/telemetry"
)

// ChatHandler manages the mentorship chat REST endpoints.
type ChatHandler struct {
	lifecycle service.ChatLifecycle
	messaging service.Messaging
	chats     repositories.ChatRepository
	directory directory.Directory
	audit     *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(lifecycle service.ChatLifecycle, messaging service.Messaging, chats repositories.ChatRepository, dir directory.Directory, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		lifecycle: lifecycle,
		messaging: messaging,
		chats:     chats,
		directory: dir,
		audit:     audit,
	}
}

// RequestChat creates a mentorship chat request, or returns the already open
// chat between the pair. Retrying is safe.
func (h *ChatHandler) RequestChat(c *gin.Context) {
	var req struct {
		SeniorID int `json:"seniorId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	if _, err := h.directory.Resolve(c.Request.Context(), req.SeniorID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			respondFail(c, http.StatusBadRequest, "unknown senior")
			return
		}
		respondFail(c, http.StatusBadGateway, "failed to validate senior")
		return
	}

	chat, err := h.lifecycle.Request(c.Request.Context(), userID, req.SeniorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Chat requested")
	respondOK(c, http.StatusCreated, "Chat requested", chat)
}

// ListChats returns the caller's chats with unread counts and counterpart names.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	chats, err := h.lifecycle.List(c.Request.Context(), userID)
	if err != nil {
		respondFail(c, http.StatusInternalServerError, "failed to load chats")
		return
	}

	counterpartIDs := make([]int, 0, len(chats))
	for _, chat := range chats {
		counterpartIDs = append(counterpartIDs, chat.CounterpartID)
	}

	users, err := h.directory.BulkUsers(c.Request.Context(), counterpartIDs)
	if err != nil {
		respondFail(c, http.StatusBadGateway, "failed to load user info")
		return
	}
	nameByID := map[int]string{}
	for _, u := range users {
		nameByID[u.ID] = u.Name
	}

	type chatView struct {
		models.ChatSummary
		CounterpartName string `json:"counterpart_name,omitempty"`
	}
	views := make([]chatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, chatView{ChatSummary: chat, CounterpartName: nameByID[chat.CounterpartID]})
	}

	respondOK(c, http.StatusOK, "Chats", views)
}

// ApproveChat activates a pending request. Role gating happens in the route
// middleware; the lifecycle service enforces the participant rules.
func (h *ChatHandler) ApproveChat(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	chat, err := h.lifecycle.Approve(c.Request.Context(), chatID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Chat approved")
	respondOK(c, http.StatusOK, "Chat approved", chat)
}

// CloseChat is the admin forced close.
func (h *ChatHandler) CloseChat(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	chat, err := h.lifecycle.Close(c.Request.Context(), chatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Chat closed")
	respondOK(c, http.StatusOK, "Chat closed", chat)
}

// CancelChat withdraws a pending request; requester only.
func (h *ChatHandler) CancelChat(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	chat, err := h.lifecycle.Cancel(c.Request.Context(), chatID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Chat request canceled")
	respondOK(c, http.StatusOK, "Chat request canceled", chat)
}

// ListMessages returns the chat's messages, oldest first, with sender and
// seen-by identities resolved for display.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	chat, err := h.getChat(c, chatID)
	if err != nil {
		return
	}
	if !chat.HasParticipant(userID) {
		respondFail(c, http.StatusForbidden, "not a chat participant")
		return
	}

	msgs, err := h.messaging.List(c.Request.Context(), chatID)
	if err != nil {
		respondFail(c, http.StatusInternalServerError, "failed to load messages")
		return
	}

	users, err := h.directory.BulkUsers(c.Request.Context(), []int{chat.User1ID, chat.User2ID})
	if err != nil {
		respondFail(c, http.StatusBadGateway, "failed to load user info")
		return
	}
	nameByID := map[int]string{}
	for _, u := range users {
		nameByID[u.ID] = u.Name
	}

	type receiptView struct {
		UserID int       `json:"user_id"`
		Name   string    `json:"name,omitempty"`
		SeenAt time.Time `json:"seen_at"`
	}
	type messageView struct {
		models.Message
		SenderName string        `json:"sender_name,omitempty"`
		SeenBy     []receiptView `json:"seen_by"`
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		receipts := make([]receiptView, 0, len(m.SeenBy))
		for _, r := range m.SeenBy {
			receipts = append(receipts, receiptView{UserID: r.UserID, Name: nameByID[r.UserID], SeenAt: r.SeenAt})
		}
		views = append(views, messageView{Message: m, SenderName: nameByID[m.SenderID], SeenBy: receipts})
	}

	respondOK(c, http.StatusOK, "Messages", views)
}

// SendMessage stores a message in an active chat. Connected peers receive
// the new_message broadcast whether the send came in here or over the socket.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	chat, err := h.getChat(c, chatID)
	if err != nil {
		return
	}
	if !chat.HasParticipant(userID) {
		respondFail(c, http.StatusForbidden, "not a chat participant")
		return
	}

	var req struct {
		Content     string             `json:"content"`
		Attachments models.Attachments `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		respondFail(c, http.StatusBadRequest, "message needs content or attachments")
		return
	}

	msg, err := h.messaging.Send(c.Request.Context(), chatID, userID, req.Content, req.Attachments)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Message sent", msg)
}

// MarkSeen acknowledges every unread message in the chat for the caller.
// A non-participant's call is a no-op rather than an error.
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		respondFail(c, http.StatusInternalServerError, "failed to verify membership")
		return
	}
	if member {
		if _, err := h.messaging.MarkSeen(c.Request.Context(), chatID, userID); err != nil {
			respondFail(c, http.StatusInternalServerError, "failed to mark chat seen")
			return
		}
	}

	respondOK(c, http.StatusOK, "Chat seen", true)
}

// UpdateMessage edits a message's content; sender or admin only.
func (h *ChatHandler) UpdateMessage(c *gin.Context) {
	chatID, messageID, ok := chatAndMessageParams(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "invalid request payload", err.Error())
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	role := c.GetString(middleware.UserRoleKey)
	msg, err := h.messaging.Update(c.Request.Context(), chatID, messageID, userID, role, req.Content)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Message updated", msg)
}

// DeleteMessage removes a message permanently; sender or admin only.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	chatID, messageID, ok := chatAndMessageParams(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	role := c.GetString(middleware.UserRoleKey)
	if err := h.messaging.Delete(c.Request.Context(), chatID, messageID, userID, role); err != nil {
		respondServiceError(c, err)
		return
	}

	h.emitAudit(c, "INFO", "Message deleted")
	respondOK(c, http.StatusOK, "Message deleted", true)
}

func (h *ChatHandler) getChat(c *gin.Context, chatID int) (models.Chat, error) {
	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			respondFail(c, http.StatusNotFound, "chat not found")
		} else {
			respondFail(c, http.StatusInternalServerError, "failed to load chat")
		}
		return models.Chat{}, err
	}
	return chat, nil
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func chatIDParam(c *gin.Context) (int, bool) {
	chatID, err := strconv.Atoi(c.Param("chatId"))
	if err != nil {
		respondFail(c, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return chatID, true
}

func chatAndMessageParams(c *gin.Context) (int, int, bool) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return 0, 0, false
	}
	messageID, err := strconv.Atoi(c.Param("messageId"))
	if err != nil {
		respondFail(c, http.StatusBadRequest, "invalid message id")
		return 0, 0, false
	}
	return chatID, messageID, true
}
