package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mentorship-chat/internal/directory"
	"mentorship-chat/internal/middleware"
	"mentorship-chat/internal/mocks"
	"mentorship-chat/internal/models"
	"mentorship-chat/internal/service"
)

func setupChatRouter(handler *ChatHandler, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, 1)
		c.Set(middleware.UserRoleKey, role)
		c.Next()
	})
	r.POST("/chats/request", handler.RequestChat)
	r.GET("/chats", handler.ListChats)
	r.POST("/chats/:chatId/approve", handler.ApproveChat)
	r.POST("/chats/:chatId/close", handler.CloseChat)
	r.POST("/chats/:chatId/cancel", handler.CancelChat)
	r.GET("/chats/:chatId/messages", handler.ListMessages)
	r.POST("/chats/:chatId/messages", handler.SendMessage)
	r.POST("/chats/:chatId/seen", handler.MarkSeen)
	r.PUT("/chats/:chatId/messages/:messageId", handler.UpdateMessage)
	r.DELETE("/chats/:chatId/messages/:messageId", handler.DeleteMessage)
	return r
}

func TestRequestChatSuccess(t *testing.T) {
	lifecycle := new(mocks.LifecycleMock)
	dir := new(mocks.DirectoryMock)
	handler := NewChatHandler(lifecycle, nil, nil, dir, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	dir.On("Resolve", mock.Anything, 2).Return(directory.User{ID: 2, Name: "mentor", Role: directory.RoleSenior, IsActive: true}, nil).Once()
	lifecycle.On("Request", mock.Anything, 1, 2).
		Return(models.Chat{ID: 10, User1ID: 1, User2ID: 2, RequestedBy: 1, Status: models.ChatPending}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/request", bytes.NewBufferString(`{"seniorId":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	dir.AssertExpectations(t)
	lifecycle.AssertExpectations(t)
}

func TestRequestChatUnknownSenior(t *testing.T) {
	dir := new(mocks.DirectoryMock)
	handler := NewChatHandler(new(mocks.LifecycleMock), nil, nil, dir, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	dir.On("Resolve", mock.Anything, 99).Return(nil, directory.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/request", bytes.NewBufferString(`{"seniorId":99}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	dir.AssertExpectations(t)
}

func TestRequestChatDirectoryUnavailable(t *testing.T) {
	dir := new(mocks.DirectoryMock)
	handler := NewChatHandler(new(mocks.LifecycleMock), nil, nil, dir, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	dir.On("Resolve", mock.Anything, 2).Return(nil, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/request", bytes.NewBufferString(`{"seniorId":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	dir.AssertExpectations(t)
}

func TestRequestChatInvalidPayload(t *testing.T) {
	handler := NewChatHandler(new(mocks.LifecycleMock), nil, nil, new(mocks.DirectoryMock), nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	req := httptest.NewRequest(http.MethodPost, "/chats/request", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChatsSuccess(t *testing.T) {
	lifecycle := new(mocks.LifecycleMock)
	dir := new(mocks.DirectoryMock)
	handler := NewChatHandler(lifecycle, nil, nil, dir, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	lifecycle.On("List", mock.Anything, 1).
		Return([]models.ChatSummary{{Chat: models.Chat{ID: 3, User1ID: 1, User2ID: 2}, CounterpartID: 2, UnreadCount: 4}}, nil).Once()
	dir.On("BulkUsers", mock.Anything, []int{2}).
		Return([]directory.User{{ID: 2, Name: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool `json:"success"`
		Data    []struct {
			ID              int    `json:"id"`
			CounterpartName string `json:"counterpart_name"`
			UnreadCount     int    `json:"unread_count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "bob", resp.Data[0].CounterpartName)
	assert.Equal(t, 4, resp.Data[0].UnreadCount)

	lifecycle.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestApproveChatSuccess(t *testing.T) {
	lifecycle := new(mocks.LifecycleMock)
	handler := NewChatHandler(lifecycle, nil, nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleSenior)

	lifecycle.On("Approve", mock.Anything, 5, 1).
		Return(models.Chat{ID: 5, Status: models.ChatActive}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	lifecycle.AssertExpectations(t)
}

func TestApproveChatForbidden(t *testing.T) {
	lifecycle := new(mocks.LifecycleMock)
	handler := NewChatHandler(lifecycle, nil, nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleSenior)

	lifecycle.On("Approve", mock.Anything, 5, 1).Return(nil, service.ErrForbidden).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	lifecycle.AssertExpectations(t)
}

func TestApproveChatInvalidID(t *testing.T) {
	handler := NewChatHandler(new(mocks.LifecycleMock), nil, nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleSenior)

	req := httptest.NewRequest(http.MethodPost, "/chats/abc/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelChatNotPending(t *testing.T) {
	lifecycle := new(mocks.LifecycleMock)
	handler := NewChatHandler(lifecycle, nil, nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	lifecycle.On("Cancel", mock.Anything, 5, 1).Return(nil, service.ErrInvalidState).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	lifecycle.AssertExpectations(t)
}

func TestCloseChatNotFound(t *testing.T) {
	lifecycle := new(mocks.LifecycleMock)
	handler := NewChatHandler(lifecycle, nil, nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleAdmin)

	lifecycle.On("Close", mock.Anything, 99).Return(nil, service.ErrNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/99/close", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	lifecycle.AssertExpectations(t)
}

func TestListMessagesNotParticipant(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(nil, new(mocks.MessagingMock), chats, new(mocks.DirectoryMock), nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	chats.On("GetChat", mock.Anything, 5).
		Return(models.Chat{ID: 5, User1ID: 3, User2ID: 4, Status: models.ChatActive}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chats.AssertExpectations(t)
}

func TestListMessagesSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messaging := new(mocks.MessagingMock)
	dir := new(mocks.DirectoryMock)
	handler := NewChatHandler(nil, messaging, chats, dir, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	chats.On("GetChat", mock.Anything, 5).
		Return(models.Chat{ID: 5, User1ID: 1, User2ID: 2, Status: models.ChatActive}, nil).Once()
	messaging.On("List", mock.Anything, 5).
		Return([]models.Message{{ID: 7, ChatID: 5, SenderID: 2, Content: "hi", SeenBy: []models.Receipt{{MessageID: 7, UserID: 2}}}}, nil).Once()
	dir.On("BulkUsers", mock.Anything, []int{1, 2}).
		Return([]directory.User{{ID: 1, Name: "me"}, {ID: 2, Name: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []struct {
			ID         int    `json:"id"`
			SenderName string `json:"sender_name"`
			SeenBy     []struct {
				UserID int    `json:"user_id"`
				Name   string `json:"name"`
			} `json:"seen_by"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "bob", resp.Data[0].SenderName)
	require.Len(t, resp.Data[0].SeenBy, 1)
	assert.Equal(t, "bob", resp.Data[0].SeenBy[0].Name)

	chats.AssertExpectations(t)
	messaging.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestSendMessageSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messaging := new(mocks.MessagingMock)
	handler := NewChatHandler(nil, messaging, chats, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	chats.On("GetChat", mock.Anything, 5).
		Return(models.Chat{ID: 5, User1ID: 1, User2ID: 2, Status: models.ChatActive}, nil).Once()
	messaging.On("Send", mock.Anything, 5, 1, "hi", models.Attachments(nil)).
		Return(models.Message{ID: 7, ChatID: 5, SenderID: 1, Content: "hi"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chats.AssertExpectations(t)
	messaging.AssertExpectations(t)
}

func TestSendMessageEmptyPayload(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messaging := new(mocks.MessagingMock)
	handler := NewChatHandler(nil, messaging, chats, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	chats.On("GetChat", mock.Anything, 5).
		Return(models.Chat{ID: 5, User1ID: 1, User2ID: 2, Status: models.ChatActive}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messaging.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageChatNotActive(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messaging := new(mocks.MessagingMock)
	handler := NewChatHandler(nil, messaging, chats, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	chats.On("GetChat", mock.Anything, 5).
		Return(models.Chat{ID: 5, User1ID: 1, User2ID: 2, Status: models.ChatPending}, nil).Once()
	messaging.On("Send", mock.Anything, 5, 1, "hi", models.Attachments(nil)).
		Return(nil, service.ErrInvalidState).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messaging.AssertExpectations(t)
}

func TestMarkSeenSuccess(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messaging := new(mocks.MessagingMock)
	handler := NewChatHandler(nil, messaging, chats, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	chats.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messaging.On("MarkSeen", mock.Anything, 5, 1).Return(int64(2), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/seen", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chats.AssertExpectations(t)
	messaging.AssertExpectations(t)
}

func TestMarkSeenNonParticipantNoop(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messaging := new(mocks.MessagingMock)
	handler := NewChatHandler(nil, messaging, chats, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	chats.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/seen", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messaging.AssertNotCalled(t, "MarkSeen", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateMessageForbidden(t *testing.T) {
	messaging := new(mocks.MessagingMock)
	handler := NewChatHandler(nil, messaging, nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	messaging.On("Update", mock.Anything, 5, 7, 1, directory.RoleStudent, "edited").
		Return(nil, service.ErrForbidden).Once()

	req := httptest.NewRequest(http.MethodPut, "/chats/5/messages/7", bytes.NewBufferString(`{"content":"edited"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messaging.AssertExpectations(t)
}

func TestDeleteMessageSuccess(t *testing.T) {
	messaging := new(mocks.MessagingMock)
	handler := NewChatHandler(nil, messaging, nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleAdmin)

	messaging.On("Delete", mock.Anything, 5, 7, 1, directory.RoleAdmin).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messaging.AssertExpectations(t)
}

func TestDeleteMessageInvalidMessageID(t *testing.T) {
	handler := NewChatHandler(nil, new(mocks.MessagingMock), nil, nil, nil)
	router := setupChatRouter(handler, directory.RoleStudent)

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
