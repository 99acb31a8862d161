package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

func TestCreateConversation(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "channels@example.com")
	project, a, _ := env.createProjectPair(t, user.ID, "channels")

	t.Run("existing channel returned unchanged", func(t *testing.T) {
		existing := env.conversationBetween(t, project.ID, models.SystemAgentID, a.ID)

		conv, err := env.conversations.CreateConversation(t.Context(), user.ID, project.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, existing, conv.ID)
		assert.Equal(t, models.SystemAgentID, conv.SenderID)
		assert.Equal(t, a.ID, conv.ReceiverID)
	})

	t.Run("receiver must be a member", func(t *testing.T) {
		outsider := env.createAgent(t, user.ID, "outsider")
		_, err := env.conversations.CreateConversation(t.Context(), user.ID, project.ID, outsider.ID)
		assert.True(t, IsValidationError(err))
	})

	t.Run("system receiver rejected", func(t *testing.T) {
		_, err := env.conversations.CreateConversation(t.Context(), user.ID, project.ID, models.SystemAgentID)
		assert.True(t, IsValidationError(err))
	})

	t.Run("foreign project invisible", func(t *testing.T) {
		stranger := env.createUser(t, "stranger5@example.com")
		_, err := env.conversations.CreateConversation(t.Context(), stranger.ID, project.ID, a.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListConversations(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "listconv@example.com")
	project, _, _ := env.createProjectPair(t, user.ID, "listconv")

	conversations, err := env.conversations.ListConversations(t.Context(), user.ID, project.ID)
	require.NoError(t, err)
	assert.Len(t, conversations, 3)

	_, err = env.conversations.ListConversations(t.Context(), user.ID, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetConversation(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "getconv@example.com")
	project, a, b := env.createProjectPair(t, user.ID, "getconv")
	id := env.conversationBetween(t, project.ID, a.ID, b.ID)

	conv, err := env.conversations.GetConversation(t.Context(), user.ID, id)
	require.NoError(t, err)
	assert.Equal(t, project.ID, conv.ProjectID)

	stranger := env.createUser(t, "stranger6@example.com")
	_, err = env.conversations.GetConversation(t.Context(), stranger.ID, id)
	assert.ErrorIs(t, err, ErrNotFound)
}
