package worker

import (
	"fmt"
	"strings"

	"github.com/colloquy-ai/colloquy/pkg/llm"
	"github.com/colloquy-ai/colloquy/pkg/models"
)

// formatRules is appended to every agent system prompt. The reply contract
// names the recipient by id, enforced again by the response schema.
const formatRules = `Respond using this strict JSON format:
{
  "recipient_id": <numeric id of the agent you are addressing>,
  "body": "<message content>"
}
Rules:
- Return a single raw JSON object
- No markdown, comments, or extra formatting
- recipient_id must be one of the participant ids listed above`

const agentRoleTag = "[AGENT ROLE]"

// projectContextIndex is the per-run lookup structure built once from the
// context snapshot.
type projectContextIndex struct {
	project       models.Project
	members       map[int64]models.ProjectMember
	names         map[int64]string
	summaries     map[int64]models.AgentSummary
	conversations map[[2]int64]int64
}

func buildIndex(pc *models.ProjectContext) *projectContextIndex {
	idx := &projectContextIndex{
		project:       pc.Project,
		members:       make(map[int64]models.ProjectMember, len(pc.Members)),
		names:         make(map[int64]string, len(pc.Members)),
		summaries:     make(map[int64]models.AgentSummary, len(pc.Summaries)),
		conversations: make(map[[2]int64]int64, len(pc.Conversations)),
	}
	for _, m := range pc.Members {
		idx.members[m.AgentID] = m
		if m.Agent != nil {
			idx.names[m.AgentID] = m.Agent.Name
		}
	}
	if _, ok := idx.names[models.SystemAgentID]; !ok {
		idx.names[models.SystemAgentID] = "System"
	}
	for _, s := range pc.Summaries {
		idx.summaries[s.AgentID] = s
	}
	for _, c := range pc.Conversations {
		pair := [2]int64{c.SenderID, c.ReceiverID}
		idx.conversations[pair] = c.ID
	}
	return idx
}

func (idx *projectContextIndex) name(agentID int64) string {
	if n, ok := idx.names[agentID]; ok {
		return n
	}
	return fmt.Sprintf("Agent-%d", agentID)
}

// conversationFor returns the conversation id of the unordered pair, or 0.
func (idx *projectContextIndex) conversationFor(a, b int64) int64 {
	if a > b {
		a, b = b, a
	}
	return idx.conversations[[2]int64{a, b}]
}

// allowedRecipients returns the set of agent ids the member may address.
// The System agent is always addressable.
func (idx *projectContextIndex) allowedRecipients(agentID int64) map[int64]bool {
	allowed := map[int64]bool{models.SystemAgentID: true}
	if m, ok := idx.members[agentID]; ok {
		for _, id := range m.CanMessage {
			allowed[id] = true
		}
	}
	return allowed
}

// historyWindow computes K, the number of recent messages included in the
// prompt, from the responding agent's messages-since-last-summary count.
func historyWindow(messageCount, window, minWindow int) int {
	k := messageCount
	if k < minWindow {
		k = minWindow
	}
	if k > window {
		k = window
	}
	return k
}

// tagged renders a message content with its addressing prefix, so the model
// can follow who said what to whom.
func (idx *projectContextIndex) tagged(m *models.Message) string {
	return fmt.Sprintf("[FROM: %s TO: %s] %s",
		idx.name(m.SenderID), idx.name(m.ReceiverID), strings.TrimSpace(m.Content))
}

// buildTurnPrompt assembles the ordered prompt for one turn: the combined
// system block, the responding agent's summary (if any), the short-term
// history window (oldest first, roles from R's perspective), and the trigger.
func buildTurnPrompt(idx *projectContextIndex, responder models.ProjectMember, history []models.Message, trigger *models.Message) []llm.Message {
	var roster strings.Builder
	roster.WriteString("Participants:\n")
	for id, name := range idx.names {
		if id == responder.AgentID {
			continue
		}
		fmt.Fprintf(&roster, "- %s (id %d)\n", name, id)
	}

	agentPrompt := responder.Prompt
	if agentPrompt == "" && responder.Agent != nil {
		agentPrompt = responder.Agent.Description
	}

	system := fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s\n%s",
		strings.TrimSpace(idx.project.SystemPrompt),
		strings.TrimSpace(roster.String()),
		formatRules,
		agentRoleTag,
		strings.TrimSpace(agentPrompt))

	messages := []llm.Message{{Role: "system", Content: system}}

	if sum, ok := idx.summaries[responder.AgentID]; ok && sum.Summary != "" {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "Here is a summary of the conversation so far:\n" + strings.TrimSpace(sum.Summary),
		})
	}

	// History arrives newest first; the prompt wants oldest first. Roles
	// are from the responder's perspective: own past messages are
	// assistant turns, everything received is a user turn.
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		role := "user"
		if m.SenderID == responder.AgentID {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: idx.tagged(&m)})
	}

	messages = append(messages, llm.Message{Role: "user", Content: idx.tagged(trigger)})
	return messages
}
