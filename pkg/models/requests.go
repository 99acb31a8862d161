package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request payloads accept both camelCase and snake_case keys: the historical
// clients of this API drifted between the two, so the boundary normalizes to
// one canonical in-memory form and rejects payloads that miss required
// fields. Responses are always emitted in camelCase.

// rawFields is a decoded JSON object used by the alias-tolerant decoders.
type rawFields map[string]json.RawMessage

func decodeFields(data []byte) (rawFields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f rawFields
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return f, nil
}

// str returns the first present alias decoded as a string.
func (f rawFields) str(aliases ...string) (string, bool, error) {
	for _, k := range aliases {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", true, fmt.Errorf("field %q: expected string", k)
		}
		return s, true, nil
	}
	return "", false, nil
}

// i64 returns the first present alias decoded as an integer.
func (f rawFields) i64(aliases ...string) (int64, bool, error) {
	for _, k := range aliases {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, true, fmt.Errorf("field %q: expected integer", k)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// boolean returns the first present alias decoded as a bool.
func (f rawFields) boolean(aliases ...string) (bool, bool, error) {
	for _, k := range aliases {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return false, true, fmt.Errorf("field %q: expected boolean", k)
		}
		return b, true, nil
	}
	return false, false, nil
}

// idList returns the first present alias decoded as a list of agent ids.
func (f rawFields) idList(aliases ...string) ([]int64, bool, error) {
	for _, k := range aliases {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var ids []int64
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, true, fmt.Errorf("field %q: expected array of integers", k)
		}
		return ids, true, nil
	}
	return nil, false, nil
}

// raw returns the first present alias undecoded.
func (f rawFields) raw(aliases ...string) (json.RawMessage, bool) {
	for _, k := range aliases {
		if r, ok := f[k]; ok {
			return r, true
		}
	}
	return nil, false
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

func (r *RegisterRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if r.Username, _, err = f.str("username", "userName", "name"); err != nil {
		return err
	}
	if r.Email, _, err = f.str("email"); err != nil {
		return err
	}
	if r.Password, _, err = f.str("password"); err != nil {
		return err
	}
	return nil
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Email    string
	Password string
}

func (r *LoginRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if r.Email, _, err = f.str("email"); err != nil {
		return err
	}
	if r.Password, _, err = f.str("password"); err != nil {
		return err
	}
	return nil
}

// CreateAgentRequest is the payload for POST /agents.
type CreateAgentRequest struct {
	Name        string
	Role        string
	Description string
	Model       string
}

func (r *CreateAgentRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if r.Name, _, err = f.str("name"); err != nil {
		return err
	}
	if r.Role, _, err = f.str("role"); err != nil {
		return err
	}
	if r.Description, _, err = f.str("description", "prompt"); err != nil {
		return err
	}
	if r.Model, _, err = f.str("model"); err != nil {
		return err
	}
	return nil
}

// CreateTokenRequest is the payload for POST /tokens. APIKey is the plaintext
// secret; it is sealed before it reaches storage.
type CreateTokenRequest struct {
	Name   string
	APIKey string
}

func (r *CreateTokenRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if r.Name, _, err = f.str("name", "label"); err != nil {
		return err
	}
	if r.APIKey, _, err = f.str("apiKey", "api_key", "key"); err != nil {
		return err
	}
	return nil
}

// ProjectAgentSpec is one agent entry inside CreateProjectRequest. It either
// references an existing agent by id or inlines a new agent definition.
type ProjectAgentSpec struct {
	AgentID     int64 // 0 when inlining a new agent
	Name        string
	Role        string
	Description string
	Model       string
	Prompt      string
	CanMessage  []int64
	HasCanList  bool // distinguishes an explicit empty list from "address everyone"
}

func (r *ProjectAgentSpec) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if r.AgentID, _, err = f.i64("agentId", "agent_id", "id"); err != nil {
		return err
	}
	if r.Name, _, err = f.str("name"); err != nil {
		return err
	}
	if r.Role, _, err = f.str("role"); err != nil {
		return err
	}
	if r.Description, _, err = f.str("description"); err != nil {
		return err
	}
	if r.Model, _, err = f.str("model"); err != nil {
		return err
	}
	if r.Prompt, _, err = f.str("prompt"); err != nil {
		return err
	}
	var present bool
	if r.CanMessage, present, err = f.idList("canMessageIds", "can_message_ids", "canMessage"); err != nil {
		return err
	}
	r.HasCanList = present
	return nil
}

// CreateProjectRequest is the payload for POST /projects.
type CreateProjectRequest struct {
	Title        string
	Description  string
	SystemPrompt string
	TokenID      int64 // 0 = no token bound
	MessageLimit int
	HasLimit     bool
	Agents       []ProjectAgentSpec
}

func (r *CreateProjectRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if r.Title, _, err = f.str("title"); err != nil {
		return err
	}
	if r.Description, _, err = f.str("description"); err != nil {
		return err
	}
	if r.SystemPrompt, _, err = f.str("systemPrompt", "system_prompt"); err != nil {
		return err
	}
	if r.TokenID, _, err = f.i64("tokenId", "token_id"); err != nil {
		return err
	}
	limit, present, err := f.i64("messageLimit", "message_limit", "limit")
	if err != nil {
		return err
	}
	r.MessageLimit = int(limit)
	r.HasLimit = present
	if raw, ok := f.raw("agents"); ok {
		if err := json.Unmarshal(raw, &r.Agents); err != nil {
			return fmt.Errorf("field \"agents\": %w", err)
		}
	}
	return nil
}

// SendMessageRequest is the payload for POST /messages/:conversationId.
type SendMessageRequest struct {
	Content string
	Type    string
}

func (r *SendMessageRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	if r.Content, _, err = f.str("content", "body"); err != nil {
		return err
	}
	if r.Type, _, err = f.str("type"); err != nil {
		return err
	}
	return nil
}

// CreateConversationRequest is the payload for POST /conversations/:projectId.
// Title is accepted and discarded: conversation titles are derived
// presentation data, not model state.
type CreateConversationRequest struct {
	ReceiverID int64
}

func (r *CreateConversationRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var present bool
	if r.ReceiverID, present, err = f.i64("receiverId", "receiver_id"); err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("field \"receiverId\" is required")
	}
	return nil
}

// SetTokenRequest is the payload for PATCH /settings/project/:id/token.
type SetTokenRequest struct {
	TokenID int64
}

func (r *SetTokenRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var present bool
	if r.TokenID, present, err = f.i64("tokenId", "token_id"); err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("field \"tokenId\" is required")
	}
	return nil
}

// SetPausedRequest is the payload for the pause/status endpoints.
type SetPausedRequest struct {
	Paused bool
}

func (r *SetPausedRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var present bool
	if r.Paused, present, err = f.boolean("paused"); err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("field \"paused\" is required")
	}
	return nil
}

// SetLimitRequest is the payload for PATCH /settings/project/:id/limit.
type SetLimitRequest struct {
	Limit int
}

func (r *SetLimitRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	n, present, err := f.i64("limit", "messageLimit", "message_limit")
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("field \"limit\" is required")
	}
	r.Limit = int(n)
	return nil
}

// CreateAgentMessageRequest is the internal-surface payload for inserting a
// worker-produced assistant message.
type CreateAgentMessageRequest struct {
	ProjectID      int64  `json:"projectId"`
	ConversationID int64  `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	ReceiverID     int64  `json:"receiverId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	Status         string `json:"status"`
}

// UpdateMessageStatusRequest is the internal-surface payload for status
// transitions.
type UpdateMessageStatusRequest struct {
	Status string `json:"status"`
}

// CreateLogRequest is the internal-surface payload for appending a log row.
type CreateLogRequest struct {
	ProjectID int64  `json:"projectId"`
	Level     string `json:"level"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// UpsertSummaryRequest is the internal-surface payload for replacing an
// agent's memory summary.
type UpsertSummaryRequest struct {
	ProjectID int64  `json:"projectId"`
	AgentID   int64  `json:"agentId"`
	Summary   string `json:"summary"`
	Snapshot  string `json:"snapshot"`
}

// NudgeRequest asks the worker to process a project.
type NudgeRequest struct {
	ProjectID int64 `json:"projectId"`
}

func (r *NudgeRequest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var present bool
	if r.ProjectID, present, err = f.i64("projectId", "project_id"); err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("field \"projectId\" is required")
	}
	return nil
}
