package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/PixlGalaxy/EagleDocs/internal/dto"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	"github.com/PixlGalaxy/EagleDocs/internal/service"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/response"
)

type chatService interface {
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)
	CreateChat(ctx context.Context, userID string, req dto.CreateChatRequest) (*models.Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (*models.ChatWithMessages, error)
	ExportChat(ctx context.Context, userID, chatID, format string) (*dto.ChatExport, error)
	SendMessage(ctx context.Context, userID, chatID string, req dto.ChatTurnRequest) (*dto.ChatTurnResponse, error)
	StreamMessage(ctx context.Context, userID, chatID string, req dto.ChatTurnRequest, sink service.StreamSink) error
}

// ChatHandler exposes chat endpoints.
type ChatHandler struct {
	service chatService
}

// NewChatHandler constructs the handler.
func NewChatHandler(service chatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// List godoc
// @Summary List my chats
// @Tags Chats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /chats [get]
func (h *ChatHandler) List(c *gin.Context) {
	claims, ok := h.caller(c)
	if !ok {
		return
	}
	chats, err := h.service.ListChats(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chats, nil)
}

// Create godoc
// @Summary Create chat
// @Tags Chats
// @Accept json
// @Produce json
// @Param payload body dto.CreateChatRequest false "Chat title"
// @Success 201 {object} response.Envelope
// @Router /chats [post]
func (h *ChatHandler) Create(c *gin.Context) {
	claims, ok := h.caller(c)
	if !ok {
		return
	}
	var req dto.CreateChatRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid chat payload"))
		return
	}
	chat, err := h.service.CreateChat(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, chat)
}

// Get godoc
// @Summary Get chat with messages
// @Tags Chats
// @Produce json
// @Param chatId path string true "Chat ID"
// @Success 200 {object} response.Envelope
// @Router /chats/{chatId} [get]
func (h *ChatHandler) Get(c *gin.Context) {
	claims, ok := h.caller(c)
	if !ok {
		return
	}
	chat, err := h.service.GetChat(c.Request.Context(), claims.UserID, c.Param("chatId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chat, nil)
}

// Export godoc
// @Summary Export chat transcript
// @Tags Chats
// @Produce application/pdf
// @Produce text/csv
// @Param chatId path string true "Chat ID"
// @Param format query string false "pdf or csv"
// @Success 200 {file} file
// @Router /chats/{chatId}/export [get]
func (h *ChatHandler) Export(c *gin.Context) {
	claims, ok := h.caller(c)
	if !ok {
		return
	}
	out, err := h.service.ExportChat(c.Request.Context(), claims.UserID, c.Param("chatId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+out.FileName+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, out.ContentType, out.Data)
}

// SendMessage godoc
// @Summary Send a message and wait for the full answer
// @Tags Chats
// @Accept json
// @Produce json
// @Param chatId path string true "Chat ID"
// @Param payload body dto.ChatTurnRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /chats/{chatId}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	claims, ok := h.caller(c)
	if !ok {
		return
	}
	var req dto.ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid message payload"))
		return
	}
	result, err := h.service.SendMessage(c.Request.Context(), claims.UserID, c.Param("chatId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// StreamMessage godoc
// @Summary Send a message and stream the answer as server-sent events
// @Description Events: status {stage, message}, token {content}, then done {userMessage, aiMessage, sources} or error {message}.
// @Tags Chats
// @Accept json
// @Produce text/event-stream
// @Param chatId path string true "Chat ID"
// @Param payload body dto.ChatTurnRequest true "Message"
// @Success 200 {string} string "event stream"
// @Router /chats/{chatId}/messages/stream [post]
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	claims, ok := h.caller(c)
	if !ok {
		return
	}
	var req dto.ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid message payload"))
		return
	}
	sink := &sseSink{c: c}
	err := h.service.StreamMessage(c.Request.Context(), claims.UserID, c.Param("chatId"), req, sink)
	if err != nil && !sink.started {
		response.Error(c, err)
	}
}

func (h *ChatHandler) caller(c *gin.Context) (*models.JWTClaims, bool) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "chat service not configured"))
		return nil, false
	}
	return requireCaller(c)
}

// sseSink writes turn events to the response. The first event commits the
// 200 status and the event-stream headers.
type sseSink struct {
	c       *gin.Context
	started bool
}

func (s *sseSink) emit(event string, data interface{}) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}
	if err := sse.Encode(s.c.Writer, sse.Event{Event: event, Data: data}); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) Status(stage string) error {
	return s.emit("status", gin.H{"stage": stage, "message": service.StageMessage(stage)})
}

func (s *sseSink) Token(text string) error {
	return s.emit("token", gin.H{"content": text})
}

func (s *sseSink) Done(result *dto.ChatTurnResponse) error {
	return s.emit("done", result)
}

func (s *sseSink) Fail(message string) error {
	return s.emit("error", gin.H{"message": message})
}
