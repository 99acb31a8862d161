// Package models defines the entities shared between the API surface, the
// service layer, and the turn worker, plus the canonical wire decoders for
// request payloads.
package models

import "time"

// Message type values.
const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
	MessageTypeSystem    = "system"
	MessageTypeError     = "error"
)

// Message status values.
const (
	MessageStatusPending = "pending"
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
)

// Log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// SystemAgentID is the id of the singleton System agent. User-originated
// messages are attributed to it; it may address every project member.
const SystemAgentID int64 = 0

// User is a registered account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Token is an LLM API token. The secret never leaves the service layer in
// plaintext; wire responses omit it entirely.
type Token struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	InUse     bool      `json:"inUse"`
	CreatedAt time.Time `json:"createdAt"`
}

// Agent is a conversation participant definition.
type Agent struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"userId,omitempty"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Description string    `json:"description"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Project is a user-owned multi-agent conversation space.
type Project struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	SystemPrompt   string    `json:"systemPrompt"`
	Paused         bool      `json:"paused"`
	MessageLimit   int       `json:"messageLimit"`
	TokenID        *int64    `json:"tokenId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// ProjectMember is an agent's membership in a project, with per-project
// overrides. CanMessage is the set of agent ids this member may address.
type ProjectMember struct {
	ProjectID  int64   `json:"projectId"`
	AgentID    int64   `json:"agentId"`
	Role       string  `json:"role"`
	Prompt     string  `json:"prompt"`
	CanMessage []int64 `json:"canMessageIds"`

	// Agent is the embedded agent definition, populated on detailed reads.
	Agent *Agent `json:"agent,omitempty"`
}

// Conversation is the pairwise channel between two project members.
// SenderID <= ReceiverID always holds.
type Conversation struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"projectId"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Message is one entry in a conversation. Append-only; only Status changes.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	ProjectID      int64     `json:"projectId"`
	SenderID       int64     `json:"senderId"`
	ReceiverID     int64     `json:"receiverId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AgentSummary is the long-term memory row for one (project, agent) pair.
type AgentSummary struct {
	ProjectID    int64     `json:"projectId"`
	AgentID      int64     `json:"agentId"`
	Summary      string    `json:"summary"`
	Snapshot     *string   `json:"snapshot,omitempty"`
	MessageCount int       `json:"messageCount"`
	SummaryCount int       `json:"summaryCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Log is a persisted, user-visible project log row.
type Log struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Level     string    `json:"level"`
	Code      *string   `json:"code,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProjectFlags is the cheap per-iteration worker check.
type ProjectFlags struct {
	Paused      bool `json:"paused"`
	Budget      int  `json:"budget"`
	TokenActive bool `json:"tokenActive"`
}

// ProjectContext is the read-consistent snapshot the worker fetches once per
// run: project config, members with overrides, conversations, latest summary
// per agent, and the encrypted bound token secret.
type ProjectContext struct {
	Project       Project         `json:"project"`
	Members       []ProjectMember `json:"members"`
	Conversations []Conversation  `json:"conversations"`
	Summaries     []AgentSummary  `json:"summaries"`

	// EncryptedAPIKey is the bound token's sealed secret; empty when no
	// token is bound. TokenActive reflects the token's active flag.
	EncryptedAPIKey string `json:"encryptedApiKey,omitempty"`
	TokenActive     bool   `json:"tokenActive"`
}

// ProjectDetail is the detailed read returned by GET /projects/:id.
type ProjectDetail struct {
	Project
	Members       []ProjectMember `json:"members"`
	Conversations []Conversation  `json:"conversations"`
}
