package worker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Reply is the validated structured output of one LLM turn.
type Reply struct {
	RecipientID int64  `json:"recipient_id"`
	Body        string `json:"body"`
	Thinking    string `json:"thinking,omitempty"`
}

// replyError is a validation failure carrying the correction notice to
// inject before the next attempt.
type replyError struct {
	reason string
	notice string
}

func (e *replyError) Error() string { return e.reason }

// breachNotice is injected when the reply is not parseable JSON at all.
const breachNotice = `Your previous message was not valid JSON and did not match the required format.

Please reply using exactly this structure (as a real JSON object):

{
  "recipient_id": <numeric agent id>,
  "body": "Your message content"
}

- Do not include Markdown or code blocks
- Only return one JSON object, nothing else`

// parseReply validates one raw LLM reply against the schema, the
// responder's allowed recipients, and the length bound.
func parseReply(raw string, allowed map[int64]bool, maxLength int) (*Reply, *replyError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &replyError{reason: "empty reply", notice: breachNotice}
	}

	var reply Reply
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reply); err != nil {
		return nil, &replyError{reason: fmt.Sprintf("invalid JSON: %v", err), notice: breachNotice}
	}

	reply.Body = strings.TrimSpace(reply.Body)
	if reply.Body == "" {
		return nil, &replyError{
			reason: "empty body",
			notice: "[SYSTEM CORRECTION]: The 'body' field of your reply was empty. Resubmit with a non-empty message body.",
		}
	}
	if len(reply.Body) > maxLength {
		return nil, &replyError{
			reason: fmt.Sprintf("body exceeds %d characters", maxLength),
			notice: fmt.Sprintf("[SYSTEM CORRECTION]: Your message body was too long. Resubmit with a body of at most %d characters.", maxLength),
		}
	}
	if !allowed[reply.RecipientID] {
		return nil, &replyError{
			reason: fmt.Sprintf("recipient %d not addressable", reply.RecipientID),
			notice: fmt.Sprintf(
				"[SYSTEM CORRECTION]: You addressed an agent you are not permitted to message (id %d). Choose a recipient_id from: %s.",
				reply.RecipientID, formatIDSet(allowed)),
		}
	}
	return &reply, nil
}

func formatIDSet(ids map[int64]bool) string {
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	parts := make([]string, len(list))
	for i, id := range list {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
