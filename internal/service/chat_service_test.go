package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PixlGalaxy/EagleDocs/internal/dto"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/llm"
)

type chatStoreStub struct {
	mu       sync.Mutex
	chats    map[string]*models.Chat
	messages map[string][]models.Message
	lockErr  error
}

func newChatStoreStub() *chatStoreStub {
	return &chatStoreStub{chats: map[string]*models.Chat{}, messages: map[string][]models.Message{}}
}

func (s *chatStoreStub) seed(userID string) string {
	id := uuid.NewString()
	s.chats[id] = &models.Chat{ID: id, UserID: userID, Title: "Exam prep", CreatedAt: time.Now()}
	return id
}

func (s *chatStoreStub) Create(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat.ID = uuid.NewString()
	chat.CreatedAt = time.Now()
	s.chats[chat.ID] = chat
	return nil
}

func (s *chatStoreStub) ListByUser(_ context.Context, userID string) ([]models.Chat, error) {
	var out []models.Chat
	for _, c := range s.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *chatStoreStub) GetForUser(_ context.Context, chatID, userID string) (*models.Chat, error) {
	c, ok := s.chats[chatID]
	if !ok || c.UserID != userID {
		return nil, sql.ErrNoRows
	}
	copy := *c
	return &copy, nil
}

func (s *chatStoreStub) ListMessages(_ context.Context, chatID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages[chatID]...), nil
}

func (s *chatStoreStub) BeginTurn(ctx context.Context, chatID, userID, content string) ([]models.Message, *models.Message, error) {
	if s.lockErr != nil {
		return nil, nil, s.lockErr
	}
	if _, err := s.GetForUser(ctx, chatID, userID); err != nil {
		return nil, nil, err
	}
	history, _ := s.ListMessages(ctx, chatID)
	msg, err := s.AppendMessage(ctx, chatID, models.SenderUser, content)
	return history, msg, err
}

func (s *chatStoreStub) AppendMessage(_ context.Context, chatID, sender, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.Message{ID: uuid.NewString(), ChatID: chatID, Sender: sender, Content: content, Timestamp: time.Now()}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return &msg, nil
}

func (s *chatStoreStub) senders(chatID string) []string {
	var out []string
	for _, m := range s.messages[chatID] {
		out = append(out, m.Sender)
	}
	return out
}

type retrieverStub struct {
	result models.RetrievalContext
	err    error
	calls  int
}

func (r *retrieverStub) BuildContext(_ context.Context, _, _ string) (models.RetrievalContext, error) {
	r.calls++
	return r.result, r.err
}

type generatorMock struct {
	mock.Mock
}

func (g *generatorMock) Chat(ctx context.Context, explicit string, messages []llm.Message) (*llm.Completion, error) {
	args := g.Called(ctx, explicit, messages)
	if c, ok := args.Get(0).(*llm.Completion); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (g *generatorMock) Stream(ctx context.Context, explicit string, messages []llm.Message) (llm.TokenStream, string, error) {
	args := g.Called(ctx, explicit, messages)
	if s, ok := args.Get(0).(llm.TokenStream); ok {
		return s, args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}

type sliceStream struct {
	tokens []string
	err    error
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.tokens) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type recordingSink struct {
	events   []string
	tokens   []string
	done     *dto.ChatTurnResponse
	failed   string
	failFrom int
}

var errClientGone = errors.New("client gone")

func (s *recordingSink) Status(stage string) error {
	s.events = append(s.events, "status:"+stage)
	return nil
}

func (s *recordingSink) Token(text string) error {
	if s.failFrom > 0 && len(s.tokens) >= s.failFrom {
		return errClientGone
	}
	s.events = append(s.events, "token")
	s.tokens = append(s.tokens, text)
	return nil
}

func (s *recordingSink) Done(result *dto.ChatTurnResponse) error {
	s.events = append(s.events, "done")
	s.done = result
	return nil
}

func (s *recordingSink) Fail(message string) error {
	s.events = append(s.events, "error")
	s.failed = message
	return nil
}

func newChatService(store *chatStoreStub, retriever contextBuilder, gen chatGenerator) *ChatService {
	return NewChatService(store, retriever, gen, nil, nil, nil, ChatConfig{})
}

func TestSendMessageWithoutCourseSkipsRetrieval(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	retriever := &retrieverStub{}
	gen := &generatorMock{}
	gen.On("Chat", mock.Anything, "", mock.MatchedBy(func(msgs []llm.Message) bool {
		return len(msgs) == 1 && msgs[0].Role == llm.RoleUser && msgs[0].Content == "What is Big O?"
	})).Return(&llm.Completion{Content: "Asymptotic bound.", Model: "gpt-oss:20b"}, nil)

	svc := newChatService(store, retriever, gen)
	res, err := svc.SendMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "  What is Big O?  "})
	require.NoError(t, err)

	assert.Equal(t, 0, retriever.calls)
	assert.Empty(t, res.Sources)
	assert.Equal(t, "What is Big O?", res.UserMessage.Content)
	assert.Equal(t, models.SenderAI, res.AIMessage.Sender)
	assert.Equal(t, []string{"user", "ai"}, store.senders(chatID))
	gen.AssertExpectations(t)
}

func TestSendMessageGroundsPromptInCourseContext(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	_, _ = store.AppendMessage(context.Background(), chatID, models.SenderUser, "hi")
	_, _ = store.AppendMessage(context.Background(), chatID, models.SenderAI, "hello")

	retriever := &retrieverStub{result: models.RetrievalContext{
		Text:    "Document: Syllabus.pdf (page 1)\nMidterm exam on March 3.",
		Sources: []models.Source{{DocumentID: "doc-1", DocumentName: "Syllabus.pdf", PageRange: models.PageRange{Start: 1, End: 1}}},
	}}
	gen := &generatorMock{}
	gen.On("Chat", mock.Anything, "", mock.MatchedBy(func(msgs []llm.Message) bool {
		return len(msgs) == 5 &&
			msgs[0].Role == llm.RoleSystem && msgs[0].Content == academicInstruction &&
			msgs[1].Role == llm.RoleSystem && msgs[1].Content == retriever.result.Text &&
			msgs[2].Role == llm.RoleUser && msgs[3].Role == llm.RoleAssistant &&
			msgs[4].Content == "When is the midterm?"
	})).Return(&llm.Completion{Content: "March 3."}, nil)

	svc := newChatService(store, retriever, gen)
	res, err := svc.SendMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "When is the midterm?", CourseCode: "COP3530"})
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "doc-1", res.Sources[0].DocumentID)
	gen.AssertExpectations(t)
}

func TestSendMessageUnknownCourseHasNoSideEffects(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	retriever := &retrieverStub{err: appErrors.Clone(appErrors.ErrNotFound, "course not found")}
	gen := &generatorMock{}

	svc := newChatService(store, retriever, gen)
	_, err := svc.SendMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "hi", CourseCode: "ARCHIVED101"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, store.messages[chatID])
	gen.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageValidation(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	svc := newChatService(store, nil, &generatorMock{})
	long := make([]rune, 4001)
	for i := range long {
		long[i] = 'a'
	}

	cases := []struct {
		name   string
		chatID string
		user   string
		body   string
		target *appErrors.Error
	}{
		{"bad chat id", "not-a-uuid", "user-1", "hi", appErrors.ErrValidation},
		{"empty content", chatID, "user-1", "   ", appErrors.ErrValidation},
		{"too long", chatID, "user-1", string(long), appErrors.ErrValidation},
		{"foreign chat", chatID, "user-2", "hi", appErrors.ErrNotFound},
		{"missing chat", uuid.NewString(), "user-1", "hi", appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SendMessage(context.Background(), tc.user, tc.chatID, dto.ChatTurnRequest{Content: tc.body})
			require.ErrorIs(t, err, tc.target)
		})
	}
	assert.Empty(t, store.messages[chatID])
}

func TestSendMessageGenerationFailureKeepsUserMessage(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	gen := &generatorMock{}
	gen.On("Chat", mock.Anything, "", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	svc := newChatService(store, nil, gen)
	_, err := svc.SendMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "hi"})
	require.ErrorIs(t, err, appErrors.ErrGenerationFailed)
	assert.Equal(t, []string{"user"}, store.senders(chatID))

	gen.On("Chat", mock.Anything, "", mock.Anything).Return(nil, llm.ErrTimeout).Once()
	_, err = svc.SendMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "again"})
	require.ErrorIs(t, err, appErrors.ErrGenerationTimeout)
}

func TestStreamMessageEmitsOrderedEvents(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	retriever := &retrieverStub{result: models.RetrievalContext{Text: "ctx", Sources: []models.Source{{DocumentID: "doc-1"}}}}
	stream := &sliceStream{tokens: []string{"Mid", "term ", "is ", "Friday."}}
	gen := &generatorMock{}
	gen.On("Stream", mock.Anything, "", mock.Anything).Return(stream, "gpt-oss:20b", nil)

	sink := &recordingSink{}
	svc := newChatService(store, retriever, gen)
	err := svc.StreamMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "When?", CourseCode: "COP3530"}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"status:retrieving", "status:generating", "token", "token", "token", "token", "done"}, sink.events)
	require.NotNil(t, sink.done)
	assert.Equal(t, "Midterm is Friday.", sink.done.AIMessage.Content)
	assert.Equal(t, "gpt-oss:20b", sink.done.Model)
	assert.Len(t, sink.done.Sources, 1)
	assert.True(t, stream.closed)
}

func TestStageMessage(t *testing.T) {
	assert.Equal(t, "Collecting matches...", StageMessage(StageRetrieving))
	assert.Equal(t, "Generating answer...", StageMessage(StageGenerating))
	assert.Equal(t, "Working...", StageMessage("unknown"))
}

func TestStreamMessageClientDisconnectPersistsPartialAnswer(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	stream := &sliceStream{tokens: []string{"One ", "two ", "three ", "four ", "five"}}
	gen := &generatorMock{}
	gen.On("Stream", mock.Anything, "", mock.Anything).Return(stream, "m", nil)

	sink := &recordingSink{failFrom: 3}
	svc := newChatService(store, nil, gen)
	err := svc.StreamMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "count"}, sink)
	require.NoError(t, err)

	msgs := store.messages[chatID]
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "One two three ")
	assert.Nil(t, sink.done)
	assert.True(t, stream.closed)
}

func TestStreamMessageCancelledBeforeTokensStoresPlaceholder(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	ctx, cancel := context.WithCancel(context.Background())
	stream := &sliceStream{tokens: []string{"never"}}
	gen := &generatorMock{}
	gen.On("Stream", mock.Anything, "", mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(stream, "m", nil)

	svc := newChatService(store, nil, gen)
	require.NoError(t, svc.StreamMessage(ctx, "user-1", chatID, dto.ChatTurnRequest{Content: "hi"}, &recordingSink{}))

	msgs := store.messages[chatID]
	require.Len(t, msgs, 2)
	assert.Equal(t, noResponsePlaceholder, msgs[1].Content)
}

func TestStreamMessageBackendErrorMidStream(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	stream := &sliceStream{tokens: []string{"partial"}, err: errors.New("connection reset")}
	gen := &generatorMock{}
	gen.On("Stream", mock.Anything, "", mock.Anything).Return(stream, "m", nil)

	sink := &recordingSink{}
	svc := newChatService(store, nil, gen)
	err := svc.StreamMessage(context.Background(), "user-1", chatID, dto.ChatTurnRequest{Content: "hi"}, sink)
	require.ErrorIs(t, err, appErrors.ErrGenerationFailed)

	assert.Equal(t, "error", sink.events[len(sink.events)-1])
	assert.Equal(t, appErrors.ErrGenerationFailed.Message, sink.failed)
	assert.Equal(t, []string{"user", "ai"}, store.senders(chatID))
	assert.Equal(t, "partial", store.messages[chatID][1].Content)
}

func TestStreamMessageValidationTouchesNoSink(t *testing.T) {
	store := newChatStoreStub()
	sink := &recordingSink{}
	svc := newChatService(store, nil, &generatorMock{})

	err := svc.StreamMessage(context.Background(), "user-1", "bad-id", dto.ChatTurnRequest{Content: "hi"}, sink)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, sink.events)
}

func TestCreateChatNormalizesTitle(t *testing.T) {
	store := newChatStoreStub()
	svc := newChatService(store, nil, &generatorMock{})

	chat, err := svc.CreateChat(context.Background(), "user-1", dto.CreateChatRequest{Title: " a "})
	require.NoError(t, err)
	assert.Equal(t, defaultChatTitle, chat.Title)

	chat, err = svc.CreateChat(context.Background(), "user-1", dto.CreateChatRequest{Title: "  Data   structures  review "})
	require.NoError(t, err)
	assert.Equal(t, "Data structures review", chat.Title)
}

func TestExportChatFormats(t *testing.T) {
	store := newChatStoreStub()
	chatID := store.seed("user-1")
	_, _ = store.AppendMessage(context.Background(), chatID, models.SenderUser, "hi")
	_, _ = store.AppendMessage(context.Background(), chatID, models.SenderAI, "hello")
	svc := newChatService(store, nil, &generatorMock{})

	csvOut, err := svc.ExportChat(context.Background(), "user-1", chatID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csvOut.ContentType)
	assert.Contains(t, string(csvOut.Data), "timestamp,sender,content")
	assert.True(t, strings.HasPrefix(string(csvOut.Data), "# chat: "), string(csvOut.Data))
	assert.Contains(t, string(csvOut.Data), "# messages: 2\n")

	pdfOut, err := svc.ExportChat(context.Background(), "user-1", chatID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "chat-"+chatID+".pdf", pdfOut.FileName)

	_, err = svc.ExportChat(context.Background(), "user-1", chatID, "docx")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
