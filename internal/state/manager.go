package state

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// DefaultDigestCapacity is the default maximum number of working-memory
// digest entries before FIFO eviction kicks in.
const DefaultDigestCapacity = 128

// Manager is the single writer for AgentState. It keeps one Digest per
// trace id so repeated updates don't need to re-parse the serialized
// WorkingMemory map on every call, and hands back a fresh contracts.AgentState
// value on every update — callers never mutate a returned state in place.
type Manager struct {
	digestCapacity int
	digests        map[string]*Digest
	store          Store
}

// NewManager creates a Manager with the given digest capacity, checkpointing
// to an in-memory Store. A capacity <= 0 falls back to DefaultDigestCapacity.
func NewManager(digestCapacity int) *Manager {
	return NewManagerWithStore(digestCapacity, NewMemoryStore())
}

// NewManagerWithStore creates a Manager that checkpoints to store instead of
// the default in-memory one, e.g. to survive a process restart.
func NewManagerWithStore(digestCapacity int, store Store) *Manager {
	if digestCapacity <= 0 {
		digestCapacity = DefaultDigestCapacity
	}
	return &Manager{
		digestCapacity: digestCapacity,
		digests:        make(map[string]*Digest),
		store:          store,
	}
}

// Save checkpoints state under its TraceID, so a crashed or restarted run
// can later be resumed with Load.
func (m *Manager) Save(ctx context.Context, s contracts.AgentState) error {
	return m.store.Save(ctx, s.TraceID, s)
}

// Load returns the checkpointed state for traceID, if any.
func (m *Manager) Load(ctx context.Context, traceID string) (contracts.AgentState, bool, error) {
	return m.store.Load(ctx, traceID)
}

// Clear discards the checkpoint for traceID. Called once a run reaches a
// terminal state, so completed runs don't accumulate in the store.
func (m *Manager) Clear(ctx context.Context, traceID string) error {
	return m.store.Delete(ctx, traceID)
}

func (m *Manager) digestFor(traceID string) *Digest {
	d, ok := m.digests[traceID]
	if !ok {
		d = NewDigest(m.digestCapacity)
		m.digests[traceID] = d
	}
	return d
}

// CreateInitial builds the starting AgentState for a new run.
func (m *Manager) CreateInitial(traceID string, goal contracts.AgentGoal) contracts.AgentState {
	m.digests[traceID] = NewDigest(m.digestCapacity)
	return contracts.AgentState{
		TraceID:       traceID,
		Goal:          goal,
		TurnIndex:     0,
		WorkingMemory: map[string]string{},
		RetryAttempts: map[string]int{},
	}
}

// Update applies one turn's decision (and, if a tool was called, the
// resulting observation) to state, returning a new AgentState. Every
// update increments TurnIndex by exactly 1, per the state update rules.
func (m *Manager) Update(state contracts.AgentState, decision contracts.Decision, observation *contracts.Observation) contracts.AgentState {
	digest := m.digestFor(state.TraceID)

	next := state
	next.LastDecision = &decision
	next.Notes = append([]string(nil), state.Notes...)

	switch decision.Kind {
	case contracts.DecisionCallTool:
		if observation != nil {
			next.LastObservation = observation
			for k, v := range observation.KeyFacts {
				digest.Set("fact_"+k, v)
			}
		}

	case contracts.DecisionReplan:
		next.Subgoals = append([]string(nil), decision.Subgoals...)
		digest.Set("replan", fmt.Sprintf("%s: %v", time.Now().UTC().Format(time.RFC3339), decision.Subgoals))

	case contracts.DecisionAskUser, contracts.DecisionStop:
		// no mutation beyond the turn index advance below.

	default:
		panic("unhandled Kind")
	}

	next.WorkingMemory = digest.Map()
	next.TurnIndex = state.TurnIndex + 1
	return next
}

// RecordRetryAttempt bumps the retry counter for a tool call lineage,
// returning the updated AgentState. Lineage id is typically the
// original (non-retried) ToolCall.ID.
func (m *Manager) RecordRetryAttempt(state contracts.AgentState, lineageID string) contracts.AgentState {
	next := state
	next.RetryAttempts = make(map[string]int, len(state.RetryAttempts)+1)
	for k, v := range state.RetryAttempts {
		next.RetryAttempts[k] = v
	}
	next.RetryAttempts[lineageID]++
	next.ToolCallsIssued = state.ToolCallsIssued + 1
	return next
}

// DigestEvicted reports how many digest entries have been dropped for
// traceID since CreateInitial, for observability/testing.
func (m *Manager) DigestEvicted(traceID string) int {
	d, ok := m.digests[traceID]
	if !ok {
		return 0
	}
	return d.Evicted()
}
