package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProjectRequest_Decode(t *testing.T) {
	t.Run("camelCase", func(t *testing.T) {
		var req CreateProjectRequest
		err := json.Unmarshal([]byte(`{
			"title": "Research",
			"systemPrompt": "Collaborate.",
			"tokenId": 3,
			"messageLimit": 25,
			"agents": [{"agentId": 1}, {"name": "Scout", "canMessageIds": [1]}]
		}`), &req)
		require.NoError(t, err)
		assert.Equal(t, "Research", req.Title)
		assert.Equal(t, "Collaborate.", req.SystemPrompt)
		assert.Equal(t, int64(3), req.TokenID)
		assert.Equal(t, 25, req.MessageLimit)
		assert.True(t, req.HasLimit)
		require.Len(t, req.Agents, 2)
		assert.Equal(t, int64(1), req.Agents[0].AgentID)
		assert.False(t, req.Agents[0].HasCanList)
		assert.Equal(t, "Scout", req.Agents[1].Name)
		assert.True(t, req.Agents[1].HasCanList)
		assert.Equal(t, []int64{1}, req.Agents[1].CanMessage)
	})

	t.Run("snake_case", func(t *testing.T) {
		var req CreateProjectRequest
		err := json.Unmarshal([]byte(`{
			"title": "Research",
			"system_prompt": "Collaborate.",
			"token_id": 3,
			"message_limit": 25,
			"agents": [{"agent_id": 1, "can_message_ids": []}]
		}`), &req)
		require.NoError(t, err)
		assert.Equal(t, "Collaborate.", req.SystemPrompt)
		assert.Equal(t, int64(3), req.TokenID)
		assert.True(t, req.HasLimit)
		require.Len(t, req.Agents, 1)
		assert.True(t, req.Agents[0].HasCanList, "explicit empty list is preserved")
		assert.Empty(t, req.Agents[0].CanMessage)
	})

	t.Run("absent limit", func(t *testing.T) {
		var req CreateProjectRequest
		err := json.Unmarshal([]byte(`{"title": "x", "agents": []}`), &req)
		require.NoError(t, err)
		assert.False(t, req.HasLimit)
	})

	t.Run("wrong field type", func(t *testing.T) {
		var req CreateProjectRequest
		err := json.Unmarshal([]byte(`{"title": 7}`), &req)
		assert.Error(t, err)
	})
}

func TestRegisterRequest_Decode(t *testing.T) {
	var req RegisterRequest
	err := json.Unmarshal([]byte(`{"name": "dana", "email": "d@example.com", "password": "pw"}`), &req)
	require.NoError(t, err)
	assert.Equal(t, "dana", req.Username, "name is an accepted alias")
	assert.Equal(t, "d@example.com", req.Email)
}

func TestCreateTokenRequest_Decode(t *testing.T) {
	for _, payload := range []string{
		`{"name": "openai", "apiKey": "sk-1"}`,
		`{"name": "openai", "api_key": "sk-1"}`,
		`{"label": "openai", "key": "sk-1"}`,
	} {
		var req CreateTokenRequest
		require.NoError(t, json.Unmarshal([]byte(payload), &req), payload)
		assert.Equal(t, "openai", req.Name)
		assert.Equal(t, "sk-1", req.APIKey)
	}
}

func TestSendMessageRequest_Decode(t *testing.T) {
	var req SendMessageRequest
	require.NoError(t, json.Unmarshal([]byte(`{"body": "hello"}`), &req))
	assert.Equal(t, "hello", req.Content, "body is an accepted alias")
}

func TestRequiredFields(t *testing.T) {
	t.Run("nudge", func(t *testing.T) {
		var req NudgeRequest
		assert.Error(t, json.Unmarshal([]byte(`{}`), &req))
		require.NoError(t, json.Unmarshal([]byte(`{"project_id": 9}`), &req))
		assert.Equal(t, int64(9), req.ProjectID)
	})

	t.Run("paused", func(t *testing.T) {
		var req SetPausedRequest
		assert.Error(t, json.Unmarshal([]byte(`{}`), &req))
		require.NoError(t, json.Unmarshal([]byte(`{"paused": false}`), &req))
		assert.False(t, req.Paused)
	})

	t.Run("limit", func(t *testing.T) {
		var req SetLimitRequest
		assert.Error(t, json.Unmarshal([]byte(`{}`), &req))
		require.NoError(t, json.Unmarshal([]byte(`{"messageLimit": 12}`), &req))
		assert.Equal(t, 12, req.Limit)
	})

	t.Run("receiver", func(t *testing.T) {
		var req CreateConversationRequest
		assert.Error(t, json.Unmarshal([]byte(`{"title": "chat"}`), &req))
		require.NoError(t, json.Unmarshal([]byte(`{"receiverId": 2}`), &req))
		assert.Equal(t, int64(2), req.ReceiverID)
	})

	t.Run("token", func(t *testing.T) {
		var req SetTokenRequest
		assert.Error(t, json.Unmarshal([]byte(`{}`), &req))
		require.NoError(t, json.Unmarshal([]byte(`{"token_id": 0}`), &req))
		assert.Zero(t, req.TokenID, "zero unbinds and still counts as present")
	})
}

func TestDecode_RejectsNonObject(t *testing.T) {
	var req NudgeRequest
	assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &req))
	assert.Error(t, json.Unmarshal([]byte(`"nudge"`), &req))
}
