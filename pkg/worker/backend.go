// Package worker implements the turn engine: the dispatcher that serializes
// runs per project, the run loop that drains pending messages, and the
// LLM-facing prompt/reply machinery.
package worker

import (
	"context"

	"github.com/colloquy-ai/colloquy/pkg/models"
	"github.com/colloquy-ai/colloquy/pkg/services"
)

// Backend is the store surface a run needs. It mirrors the internal API
// operations, so a run behaves identically whether it talks to the services
// in process or to a remote API.
type Backend interface {
	GetContext(ctx context.Context, projectID int64) (*models.ProjectContext, error)
	ProjectFlags(ctx context.Context, projectID int64) (*models.ProjectFlags, error)
	PendingQueue(ctx context.Context, projectID int64) ([]models.Message, error)
	RecentAgentMessages(ctx context.Context, projectID, agentID int64, limit int) ([]models.Message, error)
	CreateAgentMessage(ctx context.Context, req models.CreateAgentMessageRequest) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID int64, status string) error
	DecrementBudget(ctx context.Context, projectID int64) (int, error)
	IncrementAgentCount(ctx context.Context, projectID, agentID int64) (int, error)
	UpsertSummary(ctx context.Context, projectID, agentID int64, summary, snapshot string) error
	CreateLog(ctx context.Context, projectID int64, level, code, message string) error
	Pause(ctx context.Context, projectID int64, code, message string) error
}

// ServiceBackend implements Backend directly over the service layer. Used
// when worker and API share a process.
type ServiceBackend struct {
	Projects  *services.ProjectService
	Messages  *services.MessageService
	Summaries *services.SummaryService
	Logs      *services.LogService
}

func (b *ServiceBackend) GetContext(ctx context.Context, projectID int64) (*models.ProjectContext, error) {
	return b.Projects.GetContext(ctx, projectID)
}

func (b *ServiceBackend) ProjectFlags(ctx context.Context, projectID int64) (*models.ProjectFlags, error) {
	return b.Projects.GetFlags(ctx, projectID)
}

func (b *ServiceBackend) PendingQueue(ctx context.Context, projectID int64) ([]models.Message, error) {
	return b.Messages.PendingQueue(ctx, projectID)
}

func (b *ServiceBackend) RecentAgentMessages(ctx context.Context, projectID, agentID int64, limit int) ([]models.Message, error) {
	return b.Messages.RecentAgentMessages(ctx, projectID, agentID, limit)
}

func (b *ServiceBackend) CreateAgentMessage(ctx context.Context, req models.CreateAgentMessageRequest) (*models.Message, error) {
	return b.Messages.CreateAgentMessage(ctx, req)
}

func (b *ServiceBackend) UpdateMessageStatus(ctx context.Context, messageID int64, status string) error {
	_, err := b.Messages.UpdateMessageStatus(ctx, messageID, status)
	return err
}

func (b *ServiceBackend) DecrementBudget(ctx context.Context, projectID int64) (int, error) {
	return b.Projects.DecrementBudget(ctx, projectID)
}

func (b *ServiceBackend) IncrementAgentCount(ctx context.Context, projectID, agentID int64) (int, error) {
	return b.Summaries.IncrementAgentCount(ctx, projectID, agentID)
}

func (b *ServiceBackend) UpsertSummary(ctx context.Context, projectID, agentID int64, summary, snapshot string) error {
	_, err := b.Summaries.UpsertSummary(ctx, projectID, agentID, summary, snapshot)
	return err
}

func (b *ServiceBackend) CreateLog(ctx context.Context, projectID int64, level, code, message string) error {
	_, err := b.Logs.Append(ctx, projectID, level, code, message)
	return err
}

func (b *ServiceBackend) Pause(ctx context.Context, projectID int64, code, message string) error {
	return b.Projects.Pause(ctx, projectID, code, message)
}
