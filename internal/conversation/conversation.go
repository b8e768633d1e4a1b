// Package conversation maintains the per-run Turn history the Planner
// projects into an LLM request, preserving the tool_call_id pairing
// invariant across turns and bounding history by evicting whole turns.
package conversation

import (
	"time"

	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// DefaultMaxHistoryTurns bounds how many turns are retained before the
// oldest are evicted.
const DefaultMaxHistoryTurns = 50

// Manager owns one Conversation per trace id and enforces the
// tool_call_id pairing invariant on every read.
type Manager struct {
	maxHistoryTurns int
	conversations   map[string]*contracts.Conversation
	evictedTurns    map[string]int
}

// NewManager builds a Manager. A maxHistoryTurns <= 0 falls back to
// DefaultMaxHistoryTurns.
func NewManager(maxHistoryTurns int) *Manager {
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = DefaultMaxHistoryTurns
	}
	return &Manager{
		maxHistoryTurns: maxHistoryTurns,
		conversations:   make(map[string]*contracts.Conversation),
		evictedTurns:    make(map[string]int),
	}
}

func (m *Manager) conversationFor(traceID string) *contracts.Conversation {
	c, ok := m.conversations[traceID]
	if !ok {
		c = &contracts.Conversation{TraceID: traceID}
		m.conversations[traceID] = c
	}
	return c
}

// StartTurn appends a new turn seeded with the inbound user/system
// message, evicting the oldest turn if the bound is now exceeded.
func (m *Manager) StartTurn(traceID string, index int, inbound contracts.Message) {
	c := m.conversationFor(traceID)
	c.Turns = append(c.Turns, contracts.Turn{
		Index:           index,
		UserOrSystemMsg: &inbound,
		StartedAt:       inbound.CreatedAt,
	})
	m.evictOldest(traceID)
}

// AddAssistantMessage records the assistant's reply (including any tool
// calls it issued) for the current (last) turn.
func (m *Manager) AddAssistantMessage(traceID string, msg contracts.Message) {
	c := m.conversationFor(traceID)
	if len(c.Turns) == 0 {
		return
	}
	turn := &c.Turns[len(c.Turns)-1]
	turn.AssistantMessage = &msg
}

// AddToolMessage appends a tool-role message to the current turn. Only
// results whose ToolCallID matches one of the turn's assistant tool_calls
// are kept — this is the same defensive filter the pairing invariant
// needs on write, not just on flatten.
func (m *Manager) AddToolMessage(traceID string, msg contracts.Message) {
	c := m.conversationFor(traceID)
	if len(c.Turns) == 0 {
		return
	}
	turn := &c.Turns[len(c.Turns)-1]
	if turn.AssistantMessage == nil || !hasToolCallID(turn.AssistantMessage.ToolCalls, msg.ToolCallID) {
		return
	}
	turn.ToolMessages = append(turn.ToolMessages, msg)
}

// EndTurn stamps the current turn's end time.
func (m *Manager) EndTurn(traceID string, endedAt time.Time) {
	c := m.conversationFor(traceID)
	if len(c.Turns) == 0 {
		return
	}
	c.Turns[len(c.Turns)-1].EndedAt = endedAt
}

func (m *Manager) evictOldest(traceID string) {
	c := m.conversationFor(traceID)
	for len(c.Turns) > m.maxHistoryTurns {
		c.Turns = c.Turns[1:]
		m.evictedTurns[traceID]++
	}
}

func hasToolCallID(calls []contracts.ToolCall, id string) bool {
	for _, c := range calls {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Snapshot returns the Conversation accumulated for traceID, as recorded
// so far — empty (zero Turns) if traceID has no history. Intended for
// callers (the Harness, tests, trace export) that need the raw Turn
// structure rather than the flattened provider request Flatten produces.
func (m *Manager) Snapshot(traceID string) contracts.Conversation {
	c, ok := m.conversations[traceID]
	if !ok {
		return contracts.Conversation{TraceID: traceID}
	}
	return *c
}

// Flatten renders the conversation as a provider.CompletionMessage
// sequence suitable for an LLM request: a flat, chronological list in
// which every Tool-role message is immediately preceded by the
// Assistant-role message whose tool_calls contain its tool_call_id.
func (m *Manager) Flatten(traceID string) []provider.CompletionMessage {
	c, ok := m.conversations[traceID]
	if !ok {
		return nil
	}

	var out []provider.CompletionMessage
	for _, turn := range c.Turns {
		if turn.UserOrSystemMsg != nil {
			out = append(out, toCompletionMessage(*turn.UserOrSystemMsg))
		}
		if turn.AssistantMessage == nil {
			continue
		}
		assistantMsg := toCompletionMessage(*turn.AssistantMessage)
		for _, call := range turn.AssistantMessage.ToolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, provider.RequestedCall{
				ID:   call.ID,
				Name: call.ToolName,
				Args: string(call.Args),
			})
		}
		out = append(out, assistantMsg)
		for _, toolMsg := range turn.ToolMessages {
			out = append(out, toCompletionMessage(toolMsg))
		}
	}
	return out
}

func toCompletionMessage(msg contracts.Message) provider.CompletionMessage {
	return provider.CompletionMessage{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
}

// Statistics summarizes a conversation's size for observability and tests.
type Statistics struct {
	TurnCount        int
	ToolMessageCount int
	EvictedTurns     int
}

// GetStatistics reports Statistics for traceID.
func (m *Manager) GetStatistics(traceID string) Statistics {
	c, ok := m.conversations[traceID]
	if !ok {
		return Statistics{}
	}
	stats := Statistics{TurnCount: len(c.Turns), EvictedTurns: m.evictedTurns[traceID]}
	for _, turn := range c.Turns {
		stats.ToolMessageCount += len(turn.ToolMessages)
	}
	return stats
}
