package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colloquy-ai/colloquy/pkg/crypto"
	"github.com/colloquy-ai/colloquy/pkg/llm"
	"github.com/colloquy-ai/colloquy/pkg/models"
)

// fakeBackend is an in-memory Backend with the same side effects the service
// layer has: decrementing to zero pauses the project, upserting a summary
// resets the agent counter.
type fakeBackend struct {
	mu sync.Mutex

	context    *models.ProjectContext
	contextErr error

	paused      bool
	budget      int
	tokenActive bool

	// flagsHook runs before each ProjectFlags read, under the lock.
	flagsHook func(b *fakeBackend, call int)
	flagCalls int

	messages  []models.Message
	nextID    int64
	counts    map[int64]int
	summaries map[int64][2]string
	logs      []models.Log
	pauses    []string

	markSentErr error
}

func newFakeBackend(pc *models.ProjectContext, budget int) *fakeBackend {
	return &fakeBackend{
		context:     pc,
		budget:      budget,
		tokenActive: pc.TokenActive,
		nextID:      1000,
		counts:      make(map[int64]int),
		summaries:   make(map[int64][2]string),
	}
}

func (b *fakeBackend) seed(m models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, m)
}

func (b *fakeBackend) GetContext(_ context.Context, _ int64) (*models.ProjectContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.contextErr != nil {
		return nil, b.contextErr
	}
	pc := *b.context
	pc.Project.Paused = b.paused
	return &pc, nil
}

func (b *fakeBackend) ProjectFlags(_ context.Context, _ int64) (*models.ProjectFlags, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flagCalls++
	if b.flagsHook != nil {
		b.flagsHook(b, b.flagCalls)
	}
	return &models.ProjectFlags{Paused: b.paused, Budget: b.budget, TokenActive: b.tokenActive}, nil
}

func (b *fakeBackend) PendingQueue(_ context.Context, _ int64) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Message
	for _, m := range b.messages {
		if m.Status == models.MessageStatusPending {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) RecentAgentMessages(_ context.Context, _ int64, agentID int64, limit int) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Message
	for i := len(b.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := b.messages[i]
		if m.Status != models.MessageStatusSent {
			continue
		}
		if m.Type != models.MessageTypeUser && m.Type != models.MessageTypeAssistant {
			continue
		}
		if m.SenderID == agentID || m.ReceiverID == agentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) CreateAgentMessage(_ context.Context, req models.CreateAgentMessageRequest) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	m := models.Message{
		ID:             b.nextID,
		ConversationID: req.ConversationID,
		ProjectID:      req.ProjectID,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		Type:           req.Type,
		Status:         req.Status,
		CreatedAt:      time.Now(),
	}
	b.messages = append(b.messages, m)
	return &m, nil
}

func (b *fakeBackend) UpdateMessageStatus(_ context.Context, messageID int64, status string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == models.MessageStatusSent && b.markSentErr != nil {
		return b.markSentErr
	}
	for i := range b.messages {
		if b.messages[i].ID == messageID {
			b.messages[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("message %d not found", messageID)
}

func (b *fakeBackend) DecrementBudget(_ context.Context, projectID int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.budget > 0 {
		b.budget--
	}
	if b.budget <= 0 && !b.paused {
		b.paused = true
		b.logs = append(b.logs, models.Log{
			ProjectID: projectID, Level: models.LogLevelWarn,
			Code: ptr("message-limit"), Message: "message limit reached",
		})
	}
	return b.budget, nil
}

func (b *fakeBackend) IncrementAgentCount(_ context.Context, _ int64, agentID int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[agentID]++
	return b.counts[agentID], nil
}

func (b *fakeBackend) UpsertSummary(_ context.Context, _ int64, agentID int64, summary, snapshot string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaries[agentID] = [2]string{summary, snapshot}
	b.counts[agentID] = 0
	return nil
}

func (b *fakeBackend) CreateLog(_ context.Context, projectID int64, level, code, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, models.Log{ProjectID: projectID, Level: level, Code: &code, Message: message})
	return nil
}

func (b *fakeBackend) Pause(_ context.Context, projectID int64, code, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.paused {
		return nil
	}
	b.paused = true
	b.pauses = append(b.pauses, code)
	b.logs = append(b.logs, models.Log{ProjectID: projectID, Level: models.LogLevelWarn, Code: &code, Message: message})
	return nil
}

func (b *fakeBackend) status(messageID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.messages {
		if m.ID == messageID {
			return m.Status
		}
	}
	return ""
}

func (b *fakeBackend) hasLog(level, code string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.logs {
		if l.Level == level && l.Code != nil && *l.Code == code {
			return true
		}
	}
	return false
}

func (b *fakeBackend) replies() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Message
	for _, m := range b.messages {
		if m.Type == models.MessageTypeAssistant {
			out = append(out, m)
		}
	}
	return out
}

func ptr(s string) *string { return &s }

// fakeChat replays scripted results in order and records every request.
type fakeChat struct {
	mu       sync.Mutex
	script   []chatResult
	requests []llm.Request
	keys     []string
}

type chatResult struct {
	content string
	err     error
}

func (c *fakeChat) Chat(_ context.Context, apiKey string, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	c.keys = append(c.keys, apiKey)
	if len(c.script) == 0 {
		return nil, fmt.Errorf("unscripted LLM call %d", len(c.requests))
	}
	next := c.script[0]
	c.script = c.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &llm.Response{Content: next.content}, nil
}

func (c *fakeChat) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *fakeChat) request(i int) llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i]
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	return Config{
		DefaultModel:     "gpt-4o",
		MaxRetries:       3,
		HistoryWindow:    14,
		MinHistoryWindow: 5,
		SummaryThreshold: 10,
		SummaryWindow:    20,
		MaxMessageLength: 2000,
		MaxRunIterations: 100,
	}
}

// testProjectContext builds the S1 fixture: agents A(1) and B(2) who may
// address each other, System channels, one A<->B conversation.
func testProjectContext(t *testing.T) *models.ProjectContext {
	t.Helper()
	sealer, err := crypto.NewSealer(testKey)
	require.NoError(t, err)
	sealed, err := sealer.Seal("sk-x")
	require.NoError(t, err)

	system := &models.Agent{ID: 0, Name: "System", Role: "system"}
	alice := &models.Agent{ID: 1, Name: "Alice", Role: "planner", Description: "You plan the work."}
	bob := &models.Agent{ID: 2, Name: "Bob", Role: "builder", Description: "You build the plan."}

	return &models.ProjectContext{
		Project: models.Project{
			ID: 100, UserID: 10, Title: "kickoff", SystemPrompt: "Collaborate on the task.",
			MessageLimit: 5,
		},
		Members: []models.ProjectMember{
			{ProjectID: 100, AgentID: 0, Role: "system", CanMessage: []int64{1, 2}, Agent: system},
			{ProjectID: 100, AgentID: 1, CanMessage: []int64{2}, Agent: alice},
			{ProjectID: 100, AgentID: 2, CanMessage: []int64{1}, Agent: bob},
		},
		Conversations: []models.Conversation{
			{ID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1},
			{ID: 12, ProjectID: 100, SenderID: 0, ReceiverID: 2},
			{ID: 13, ProjectID: 100, SenderID: 1, ReceiverID: 2},
		},
		EncryptedAPIKey: sealed,
		TokenActive:     true,
	}
}

func newTestRunner(backend Backend, chat ChatClient, cfg Config) *Runner {
	sealer, _ := crypto.NewSealer(testKey)
	return NewRunner(backend, chat, sealer, cfg)
}

func TestRunner_EndToEndTurn(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 5)
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{script: []chatResult{
		{content: `{"recipient_id": 2, "body": "hello B"}`},
		{content: `{"recipient_id": 0, "body": "all done"}`},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	// Alice answered the trigger, Bob answered Alice, Bob's reply to System
	// was delivered without another turn.
	require.Equal(t, 2, chat.calls())
	assert.Equal(t, "sk-x", chat.keys[0])

	assert.Equal(t, models.MessageStatusSent, backend.status(1))

	replies := backend.replies()
	require.Len(t, replies, 2)
	assert.Equal(t, int64(1), replies[0].SenderID)
	assert.Equal(t, int64(2), replies[0].ReceiverID)
	assert.Equal(t, int64(13), replies[0].ConversationID)
	assert.Equal(t, "hello B", replies[0].Content)
	assert.Equal(t, models.MessageStatusSent, backend.status(replies[0].ID))

	assert.Equal(t, int64(2), replies[1].SenderID)
	assert.Equal(t, int64(0), replies[1].ReceiverID)
	assert.Equal(t, int64(12), replies[1].ConversationID)
	assert.Equal(t, models.MessageStatusSent, backend.status(replies[1].ID))

	assert.Equal(t, 3, backend.budget)
	assert.Equal(t, 1, backend.counts[1])
	assert.Equal(t, 1, backend.counts[2])
	assert.False(t, backend.paused)

	// Structured output was requested for the turn calls.
	assert.NotNil(t, chat.request(0).ResponseFormat)
	assert.InDelta(t, 0.7, chat.request(0).Temperature, 0.001)
}

func TestRunner_RetriesThenFails(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 5)
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{script: []chatResult{
		{content: `not json at all`},
		{content: `still not json`},
		{content: `{"broken":`},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	require.Equal(t, 3, chat.calls())
	assert.Equal(t, models.MessageStatusFailed, backend.status(1))
	assert.True(t, backend.hasLog(models.LogLevelError, "format-invalid"))
	assert.Empty(t, backend.replies())
	assert.Equal(t, 5, backend.budget)
	assert.False(t, backend.paused)

	// Each retry carried one more correction notice than the last.
	first := chat.request(0)
	second := chat.request(1)
	third := chat.request(2)
	assert.Len(t, second.Messages, len(first.Messages)+1)
	assert.Len(t, third.Messages, len(first.Messages)+2)
	assert.Contains(t, second.Messages[len(second.Messages)-1].Content, "not valid JSON")
}

func TestRunner_DisallowedRecipientCorrected(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 5)
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{script: []chatResult{
		{content: `{"recipient_id": 9, "body": "hi"}`},
		{content: `{"recipient_id": 0, "body": "hi"}`},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	require.Equal(t, 2, chat.calls())
	second := chat.request(1)
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, "system", last.Role)
	assert.Contains(t, last.Content, "[SYSTEM CORRECTION]")
	assert.Contains(t, last.Content, "0, 2")

	replies := backend.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, int64(0), replies[0].ReceiverID)
}

func TestRunner_BudgetExhaustion(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 1)
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{script: []chatResult{
		{content: `{"recipient_id": 2, "body": "hello B"}`},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	require.Equal(t, 1, chat.calls())
	assert.Equal(t, 0, backend.budget)
	assert.True(t, backend.paused)
	assert.True(t, backend.hasLog(models.LogLevelWarn, "message-limit"))

	// The reply was inserted but never processed: the run stopped.
	replies := backend.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, models.MessageStatusPending, backend.status(replies[0].ID))
}

func TestRunner_TokenDeactivatedMidRun(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 5)
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})
	backend.flagsHook = func(b *fakeBackend, call int) {
		if call == 2 {
			b.tokenActive = false
		}
	}

	chat := &fakeChat{script: []chatResult{
		{content: `{"recipient_id": 2, "body": "hello B"}`},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	require.Equal(t, 1, chat.calls())
	assert.True(t, backend.paused)
	assert.Contains(t, backend.pauses, "token-inactive")
}

func TestRunner_TokenMissing(t *testing.T) {
	pc := testProjectContext(t)
	pc.EncryptedAPIKey = ""
	backend := newFakeBackend(pc, 5)

	chat := &fakeChat{}
	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	assert.Zero(t, chat.calls())
	assert.False(t, backend.paused)
	assert.True(t, backend.hasLog(models.LogLevelWarn, "token-missing"))
}

func TestRunner_DecryptFailurePauses(t *testing.T) {
	pc := testProjectContext(t)
	pc.EncryptedAPIKey = "deadbeef:feedface"
	backend := newFakeBackend(pc, 5)

	chat := &fakeChat{}
	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	assert.Zero(t, chat.calls())
	assert.True(t, backend.paused)
	assert.Contains(t, backend.pauses, "decrypt-failed")
	assert.True(t, backend.hasLog(models.LogLevelError, "decrypt-failed"))
}

func TestRunner_PausedProjectNoops(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 5)
	backend.paused = true
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{}
	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	assert.Zero(t, chat.calls())
	assert.Equal(t, models.MessageStatusPending, backend.status(1))
}

func TestRunner_AgentNotFound(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 5)
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 9,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{}
	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	assert.Zero(t, chat.calls())
	assert.Equal(t, models.MessageStatusFailed, backend.status(1))
	assert.True(t, backend.hasLog(models.LogLevelError, "agent-not-found"))
}

func TestRunner_IterationCap(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 100)
	for i := int64(1); i <= 5; i++ {
		backend.seed(models.Message{
			ID: i, ConversationID: 11, ProjectID: 100, SenderID: 1, ReceiverID: 0,
			Content: "to the human", Type: models.MessageTypeAssistant, Status: models.MessageStatusPending,
		})
	}

	cfg := testConfig()
	cfg.MaxRunIterations = 2

	chat := &fakeChat{}
	runner := newTestRunner(backend, chat, cfg)
	runner.Run(context.Background(), 100)

	// One System delivery per iteration, then the cap.
	assert.Equal(t, models.MessageStatusSent, backend.status(1))
	assert.Equal(t, models.MessageStatusSent, backend.status(2))
	assert.Equal(t, models.MessageStatusPending, backend.status(3))
	assert.True(t, backend.hasLog(models.LogLevelWarn, "max-iterations"))
}

func TestRunner_SummarizesAtThreshold(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 50)
	backend.counts[1] = 9
	pc.Summaries = []models.AgentSummary{{ProjectID: 100, AgentID: 1, MessageCount: 9}}

	for i := int64(1); i <= 6; i++ {
		backend.seed(models.Message{
			ID: i, ConversationID: 13, ProjectID: 100, SenderID: 1, ReceiverID: 2,
			Content: fmt.Sprintf("note %d", i), Type: models.MessageTypeAssistant,
			Status: models.MessageStatusSent,
		})
	}
	backend.seed(models.Message{
		ID: 50, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "continue", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{script: []chatResult{
		{content: `{"recipient_id": 0, "body": "status update"}`},
		{content: `Alice sent six notes to Bob.`},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	require.Equal(t, 2, chat.calls())

	sum := chat.request(1)
	assert.Nil(t, sum.ResponseFormat)
	assert.InDelta(t, 0.3, sum.Temperature, 0.001)
	assert.Equal(t, 512, sum.MaxTokens)
	require.Len(t, sum.Messages, 2)
	assert.Contains(t, sum.Messages[0].Content, "AI summarizer")
	assert.Contains(t, sum.Messages[1].Content, "[Alice to Bob]: note 1")

	stored := backend.summaries[1]
	assert.Equal(t, "Alice sent six notes to Bob.", stored[0])
	assert.Contains(t, stored[1], "note 6")
	assert.Zero(t, backend.counts[1])
}

func TestRunner_SummaryFailureDoesNotAbort(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 50)
	backend.counts[1] = 9
	pc.Summaries = []models.AgentSummary{{ProjectID: 100, AgentID: 1, MessageCount: 9}}

	backend.seed(models.Message{
		ID: 1, ConversationID: 13, ProjectID: 100, SenderID: 2, ReceiverID: 1,
		Content: "ping", Type: models.MessageTypeAssistant, Status: models.MessageStatusSent,
	})
	backend.seed(models.Message{
		ID: 50, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "continue", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{script: []chatResult{
		{content: `{"recipient_id": 0, "body": "status update"}`},
		{err: fmt.Errorf("upstream exploded")},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	replies := backend.replies()
	require.NotEmpty(t, replies)
	assert.True(t, backend.hasLog(models.LogLevelWarn, "summary-failure"))
	assert.False(t, backend.paused)
}

func TestRunner_TransportErrorsCountAsAttempts(t *testing.T) {
	pc := testProjectContext(t)
	backend := newFakeBackend(pc, 5)
	backend.seed(models.Message{
		ID: 1, ConversationID: 11, ProjectID: 100, SenderID: 0, ReceiverID: 1,
		Content: "kickoff", Type: models.MessageTypeUser, Status: models.MessageStatusPending,
	})

	chat := &fakeChat{script: []chatResult{
		{err: fmt.Errorf("connection reset")},
		{err: fmt.Errorf("connection reset")},
		{content: `{"recipient_id": 2, "body": "made it"}`},
	}}

	runner := newTestRunner(backend, chat, testConfig())
	runner.Run(context.Background(), 100)

	assert.GreaterOrEqual(t, chat.calls(), 3)
	assert.Equal(t, models.MessageStatusSent, backend.status(1))
	require.NotEmpty(t, backend.replies())
}
