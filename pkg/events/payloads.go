// Package events is the in-process live-update hub. The API server publishes
// an event after each committed write; WebSocket clients join per-project
// streams and receive the events in publish order.
package events

import "github.com/colloquy-ai/colloquy/pkg/models"

// Event type values sent to clients.
const (
	EventTypeNewMessage     = "new_message"
	EventTypeMessageUpdated = "message_updated"
	EventTypeProjectUpdated = "project_updated"
)

// Event is one frame on the wire: a type tag plus the full payload.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewMessageEvent announces a freshly inserted message.
func NewMessageEvent(msg *models.Message) Event {
	return Event{Type: EventTypeNewMessage, Payload: msg}
}

// MessageUpdatedPayload carries a message status transition.
type MessageUpdatedPayload struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	ConversationID int64  `json:"conversationId"`
}

// MessageUpdatedEvent announces a message status transition.
func MessageUpdatedEvent(msg *models.Message) Event {
	return Event{Type: EventTypeMessageUpdated, Payload: MessageUpdatedPayload{
		ID:             msg.ID,
		Status:         msg.Status,
		ConversationID: msg.ConversationID,
	}}
}

// ProjectUpdatedPayload carries the project fields clients render live.
type ProjectUpdatedPayload struct {
	ProjectID    int64 `json:"projectId"`
	Paused       bool  `json:"paused"`
	MessageLimit int   `json:"messageLimit"`
}

// ProjectUpdatedEvent announces a change to a project's paused flag or
// remaining budget.
func ProjectUpdatedEvent(projectID int64, paused bool, messageLimit int) Event {
	return Event{Type: EventTypeProjectUpdated, Payload: ProjectUpdatedPayload{
		ProjectID:    projectID,
		Paused:       paused,
		MessageLimit: messageLimit,
	}}
}
