package services

import (
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/colloquy-ai/colloquy/pkg/crypto"
	"github.com/colloquy-ai/colloquy/pkg/events"
	"github.com/colloquy-ai/colloquy/pkg/models"
	"github.com/colloquy-ai/colloquy/test/util"
)

var testEncryptKey = []byte("0123456789abcdef0123456789abcdef")

// recordingPublisher captures hub publishes for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	ProjectID int64
	Event     events.Event
}

func (p *recordingPublisher) Publish(projectID int64, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{ProjectID: projectID, Event: ev})
}

func (p *recordingPublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	pool *pgxpool.Pool
	pub  *recordingPublisher

	users         *UserService
	tokens        *TokenService
	agents        *AgentService
	projects      *ProjectService
	conversations *ConversationService
	messages      *MessageService
	summaries     *SummaryService
	logs          *LogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pool := util.SetupTestDatabase(t)

	sealer, err := crypto.NewSealer(testEncryptKey)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	return &testEnv{
		pool:          pool,
		pub:           pub,
		users:         NewUserService(pool),
		tokens:        NewTokenService(pool, sealer),
		agents:        NewAgentService(pool),
		projects:      NewProjectService(pool, pub),
		conversations: NewConversationService(pool),
		messages:      NewMessageService(pool, pub, 2000),
		summaries:     NewSummaryService(pool),
		logs:          NewLogService(pool),
	}
}

func (e *testEnv) createUser(t *testing.T, email string) *models.User {
	t.Helper()
	user, err := e.users.Register(t.Context(), models.RegisterRequest{
		Email:    email,
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createToken(t *testing.T, userID int64, name, secret string) *models.Token {
	t.Helper()
	token, err := e.tokens.CreateToken(t.Context(), userID, models.CreateTokenRequest{
		Name:   name,
		APIKey: secret,
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) createAgent(t *testing.T, userID int64, name string) *models.Agent {
	t.Helper()
	agent, err := e.agents.CreateAgent(t.Context(), userID, models.CreateAgentRequest{
		Name:        name,
		Role:        "assistant",
		Description: "You are " + name + ".",
		Model:       "gpt-4o",
	})
	require.NoError(t, err)
	return agent
}

// createProjectPair creates a project with two member agents that may
// address each other, bound to a fresh active token.
func (e *testEnv) createProjectPair(t *testing.T, userID int64, title string) (*models.Project, *models.Agent, *models.Agent) {
	t.Helper()
	a := e.createAgent(t, userID, title+"-alice")
	b := e.createAgent(t, userID, title+"-bob")
	token := e.createToken(t, userID, title+"-token", "sk-"+title)

	project, err := e.projects.CreateProject(t.Context(), userID, models.CreateProjectRequest{
		Title:        title,
		SystemPrompt: "Collaborate.",
		TokenID:      token.ID,
		Agents: []models.ProjectAgentSpec{
			{AgentID: a.ID},
			{AgentID: b.ID},
		},
	})
	require.NoError(t, err)
	return project, a, b
}

// conversationBetween resolves the conversation id of an unordered pair.
func (e *testEnv) conversationBetween(t *testing.T, projectID, x, y int64) int64 {
	t.Helper()
	if x > y {
		x, y = y, x
	}
	var id int64
	err := e.pool.QueryRow(t.Context(),
		`SELECT id FROM conversations WHERE project_id = $1 AND sender_id = $2 AND receiver_id = $3`,
		projectID, x, y,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func (e *testEnv) countRows(t *testing.T, table string, projectID int64) int {
	t.Helper()
	var n int
	err := e.pool.QueryRow(t.Context(),
		`SELECT count(*) FROM `+table+` WHERE project_id = $1`, projectID,
	).Scan(&n)
	require.NoError(t, err)
	return n
}
