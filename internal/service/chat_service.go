package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PixlGalaxy/EagleDocs/internal/dto"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/export"
	"github.com/PixlGalaxy/EagleDocs/pkg/llm"
	"github.com/PixlGalaxy/EagleDocs/pkg/logger"
)

const (
	academicInstruction = "Answer as an academic assistant. Prioritize the course context when it is present " +
		"and keep tables and code blocks clearly formatted."
	noResponsePlaceholder = "(no response generated)"
	defaultChatTitle      = "New Chat"

	turnModeBlocking = "blocking"
	turnModeStream   = "stream"

	turnOutcomeOK           = "ok"
	turnOutcomeRejected     = "rejected"
	turnOutcomeFailed       = "generation_failed"
	turnOutcomeDisconnected = "disconnected"
)

// Stream stages reported through StreamSink.Status.
const (
	StageRetrieving = "retrieving"
	StageGenerating = "generating"
)

var stageMessages = map[string]string{
	StageRetrieving: "Collecting matches...",
	StageGenerating: "Generating answer...",
}

// StageMessage returns the progress line shown to the user for a stage.
func StageMessage(stage string) string {
	if msg, ok := stageMessages[stage]; ok {
		return msg
	}
	return "Working..."
}

type chatStore interface {
	Create(ctx context.Context, chat *models.Chat) error
	ListByUser(ctx context.Context, userID string) ([]models.Chat, error)
	GetForUser(ctx context.Context, chatID, userID string) (*models.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	BeginTurn(ctx context.Context, chatID, userID, content string) ([]models.Message, *models.Message, error)
	AppendMessage(ctx context.Context, chatID, sender, content string) (*models.Message, error)
}

type contextBuilder interface {
	BuildContext(ctx context.Context, selector, question string) (models.RetrievalContext, error)
}

type chatGenerator interface {
	Chat(ctx context.Context, explicit string, messages []llm.Message) (*llm.Completion, error)
	Stream(ctx context.Context, explicit string, messages []llm.Message) (llm.TokenStream, string, error)
}

type transcriptRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// StreamSink receives the events of a streaming turn. A write error means the
// client is gone; the turn stops pulling tokens and persists what it has.
type StreamSink interface {
	Status(stage string) error
	Token(text string) error
	Done(result *dto.ChatTurnResponse) error
	Fail(message string) error
}

// ChatConfig bounds chat input.
type ChatConfig struct {
	MaxContentChars int
	TitleMaxChars   int
}

// ChatService runs chat turns: validate, optionally retrieve course context, record the
// user's message under the chat row lock, generate, then record the answer.
type ChatService struct {
	chats     chatStore
	retriever contextBuilder
	generator chatGenerator
	pdf       transcriptRenderer
	csv       tableRenderer
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ChatConfig
}

// NewChatService constructs a ChatService.
func NewChatService(chats chatStore, retriever contextBuilder, generator chatGenerator, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg ChatConfig) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 4000
	}
	if cfg.TitleMaxChars <= 0 {
		cfg.TitleMaxChars = 255
	}
	return &ChatService{
		chats:     chats,
		retriever: retriever,
		generator: generator,
		pdf:       export.NewPDFExporter(),
		csv:       export.NewCSVExporter(),
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// ListChats returns the caller's chats, newest first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to load chats")
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	return chats, nil
}

// CreateChat starts an empty chat. Titles under three characters become "New Chat".
func (s *ChatService) CreateChat(ctx context.Context, userID string, req dto.CreateChatRequest) (*models.Chat, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chat payload")
	}
	chat := &models.Chat{UserID: userID, Title: s.normalizeTitle(req.Title)}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to create chat")
	}
	return chat, nil
}

// GetChat returns a chat the caller owns together with its messages.
func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (*models.ChatWithMessages, error) {
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	messages, err := s.chats.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to load chat")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return &models.ChatWithMessages{Chat: *chat, Messages: messages}, nil
}

// ExportChat renders the transcript as "pdf" or "csv".
func (s *ChatService) ExportChat(ctx context.Context, userID, chatID, format string) (*dto.ChatExport, error) {
	full, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Headers: []string{"timestamp", "sender", "content"},
		Notes: []string{
			"chat: " + full.Chat.Title,
			"started: " + full.Chat.CreatedAt.UTC().Format(time.RFC3339),
			fmt.Sprintf("messages: %d", len(full.Messages)),
		},
	}
	for _, m := range full.Messages {
		data.Rows = append(data.Rows, map[string]string{
			"timestamp": m.Timestamp.UTC().Format(time.RFC3339),
			"sender":    m.Sender,
			"content":   m.Content,
		})
	}

	base := "chat-" + full.Chat.ID
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "pdf":
		out, err := s.pdf.Render(data, full.Chat.Title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to render transcript")
		}
		return &dto.ChatExport{FileName: base + ".pdf", ContentType: "application/pdf", Data: out}, nil
	case "csv":
		out, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to render transcript")
		}
		return &dto.ChatExport{FileName: base + ".csv", ContentType: "text/csv", Data: out}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}
}

// turn carries the state a turn accumulates between stages.
type turn struct {
	chatID    string
	userID    string
	content   string
	selector  string
	model     string
	retrieved models.RetrievalContext
	history   []models.Message
	userMsg   *models.Message
}

// SendMessage runs a blocking turn. On generation failure the user's message stays
// recorded and no assistant message is written.
func (s *ChatService) SendMessage(ctx context.Context, userID, chatID string, req dto.ChatTurnRequest) (*dto.ChatTurnResponse, error) {
	t, err := s.validate(ctx, userID, chatID, req)
	if err != nil {
		s.metrics.RecordChatTurn(turnModeBlocking, turnOutcomeRejected)
		return nil, err
	}
	if err := s.retrieve(ctx, t); err != nil {
		s.metrics.RecordChatTurn(turnModeBlocking, turnOutcomeRejected)
		return nil, err
	}
	if err := s.begin(ctx, t); err != nil {
		s.metrics.RecordChatTurn(turnModeBlocking, turnOutcomeRejected)
		return nil, err
	}

	s.logger.Debug("chat turn generating", zap.String("chat_id", t.chatID), zap.String("mode", turnModeBlocking))
	completion, err := s.generator.Chat(ctx, t.model, buildPrompt(t))
	if err != nil {
		s.metrics.RecordChatTurn(turnModeBlocking, turnOutcomeFailed)
		return nil, s.generationError(ctx, t, err)
	}

	aiMsg, err := s.persistAnswer(ctx, t, completion.Content)
	if err != nil {
		s.metrics.RecordChatTurn(turnModeBlocking, turnOutcomeFailed)
		return nil, err
	}
	s.metrics.RecordChatTurn(turnModeBlocking, turnOutcomeOK)
	return s.result(t, aiMsg, completion.Model), nil
}

// StreamMessage runs a streaming turn. Validation errors are returned before the sink
// is touched. Later failures are reported to the sink as an error event and also
// returned. If the client disconnects, the partial answer (or a placeholder) is
// still recorded.
func (s *ChatService) StreamMessage(ctx context.Context, userID, chatID string, req dto.ChatTurnRequest, sink StreamSink) error {
	t, err := s.validate(ctx, userID, chatID, req)
	if err != nil {
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeRejected)
		return err
	}

	if t.selector != "" {
		if sink.Status(StageRetrieving) != nil {
			s.metrics.RecordChatTurn(turnModeStream, turnOutcomeDisconnected)
			return ctx.Err()
		}
		if err := s.retrieve(ctx, t); err != nil {
			s.metrics.RecordChatTurn(turnModeStream, turnOutcomeRejected)
			_ = sink.Fail(publicMessage(err))
			return err
		}
	}
	if err := s.begin(ctx, t); err != nil {
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeRejected)
		_ = sink.Fail(publicMessage(err))
		return err
	}
	if err := sink.Status(StageGenerating); err != nil {
		_, perr := s.persistAnswer(ctx, t, noResponsePlaceholder)
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeDisconnected)
		return perr
	}

	s.logger.Debug("chat turn generating", zap.String("chat_id", t.chatID), zap.String("mode", turnModeStream))
	stream, model, err := s.generator.Stream(ctx, t.model, buildPrompt(t))
	if err != nil {
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeFailed)
		genErr := s.generationError(ctx, t, err)
		_ = sink.Fail(publicMessage(genErr))
		return genErr
	}
	defer stream.Close()

	var (
		answer       strings.Builder
		streamErr    error
		disconnected bool
	)
	for {
		if ctx.Err() != nil {
			disconnected = true
			break
		}
		token, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				disconnected = true
			} else {
				streamErr = err
			}
			break
		}
		if token == "" {
			continue
		}
		answer.WriteString(token)
		if err := sink.Token(token); err != nil {
			disconnected = true
			break
		}
	}
	_ = stream.Close()

	text := answer.String()
	switch {
	case disconnected:
		if strings.TrimSpace(text) == "" {
			text = noResponsePlaceholder
		}
		s.logger.Info("chat stream ended by client", zap.String("chat_id", t.chatID), zap.Int("chars", utf8.RuneCountInString(text)))
		_, err := s.persistAnswer(ctx, t, text)
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeDisconnected)
		return err
	case streamErr != nil:
		if strings.TrimSpace(text) != "" {
			_, _ = s.persistAnswer(ctx, t, text)
		}
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeFailed)
		genErr := s.generationError(ctx, t, streamErr)
		_ = sink.Fail(publicMessage(genErr))
		return genErr
	case strings.TrimSpace(text) == "":
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeFailed)
		genErr := s.generationError(ctx, t, llm.ErrEmptyResponse)
		_ = sink.Fail(publicMessage(genErr))
		return genErr
	}

	aiMsg, err := s.persistAnswer(ctx, t, text)
	if err != nil {
		s.metrics.RecordChatTurn(turnModeStream, turnOutcomeFailed)
		_ = sink.Fail(publicMessage(err))
		return err
	}
	s.metrics.RecordChatTurn(turnModeStream, turnOutcomeOK)
	_ = sink.Done(s.result(t, aiMsg, model))
	return nil
}

func (s *ChatService) validate(ctx context.Context, userID, chatID string, req dto.ChatTurnRequest) (*turn, error) {
	if _, err := uuid.Parse(chatID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid chat id")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message content is required")
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentChars {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message is too long")
	}
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return &turn{
		chatID:   chatID,
		userID:   userID,
		content:  content,
		selector: strings.TrimSpace(req.CourseCode),
		model:    strings.TrimSpace(req.Model),
	}, nil
}

func (s *ChatService) retrieve(ctx context.Context, t *turn) error {
	if t.selector == "" || s.retriever == nil {
		return nil
	}
	s.logger.Debug("chat turn retrieving", zap.String("chat_id", t.chatID), zap.String("course", t.selector))
	retrieved, err := s.retriever.BuildContext(ctx, t.selector, t.content)
	if err != nil {
		return err
	}
	t.retrieved = retrieved
	return nil
}

func (s *ChatService) begin(ctx context.Context, t *turn) error {
	history, userMsg, err := s.chats.BeginTurn(ctx, t.chatID, t.userID, t.content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "chat not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to send message")
	}
	t.history = history
	t.userMsg = userMsg
	return nil
}

// persistAnswer writes the assistant message even if the request was cancelled.
func (s *ChatService) persistAnswer(ctx context.Context, t *turn, content string) (*models.Message, error) {
	msg, err := s.chats.AppendMessage(context.WithoutCancel(ctx), t.chatID, models.SenderAI, content)
	if err != nil {
		s.logger.Error("persist assistant message failed", zap.String("chat_id", t.chatID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to save response")
	}
	return msg, nil
}

func (s *ChatService) generationError(ctx context.Context, t *turn, err error) error {
	logger.WithRequest(ctx, s.logger).Error("generation failed", zap.String("chat_id", t.chatID), zap.String("model", t.model), zap.Error(err))
	if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrGenerationTimeout.Code, appErrors.ErrGenerationTimeout.Status, appErrors.ErrGenerationTimeout.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, appErrors.ErrGenerationFailed.Message)
}

func (s *ChatService) result(t *turn, aiMsg *models.Message, model string) *dto.ChatTurnResponse {
	sources := t.retrieved.Sources
	if sources == nil {
		sources = []models.Source{}
	}
	return &dto.ChatTurnResponse{
		UserMessage: *t.userMsg,
		AIMessage:   *aiMsg,
		Sources:     sources,
		Model:       model,
	}
}

func (s *ChatService) ownedChat(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	if _, err := uuid.Parse(chatID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid chat id")
	}
	chat, err := s.chats.GetForUser(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "chat not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unable to load chat")
	}
	return chat, nil
}

func (s *ChatService) normalizeTitle(raw string) string {
	title := strings.Join(strings.Fields(raw), " ")
	if utf8.RuneCountInString(title) < 3 {
		return defaultChatTitle
	}
	if r := []rune(title); len(r) > s.cfg.TitleMaxChars {
		title = string(r[:s.cfg.TitleMaxChars])
	}
	return title
}

// buildPrompt orders the model input: instruction and context (only when context was
// found), the prior conversation, then the new question.
func buildPrompt(t *turn) []llm.Message {
	messages := make([]llm.Message, 0, len(t.history)+3)
	if !t.retrieved.Empty() {
		messages = append(messages,
			llm.Message{Role: llm.RoleSystem, Content: academicInstruction},
			llm.Message{Role: llm.RoleSystem, Content: t.retrieved.Text},
		)
	}
	for _, m := range t.history {
		role := llm.RoleAssistant
		if m.Sender == models.SenderUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: t.content})
}

// publicMessage is the client-facing text of err; internal causes stay in the logs.
func publicMessage(err error) string {
	return appErrors.FromError(err).Message
}
