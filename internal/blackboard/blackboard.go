// Package blackboard implements the batch-scoped coordination log shared by
// the pipeline phases. Entries are append-only: nothing is ever removed or
// reordered during a run.
package blackboard

import (
	"sync"

	"promo-server/internal/models"
)

// Blackboard accumulates the decision trail of one production run. Appends
// are atomic per call; concurrent scene tasks may interleave entries in any
// order, but each entry is fully written before a later phase reads it.
type Blackboard struct {
	mu         sync.Mutex
	inferences []string
	decisions  []string
	agentComms map[string]string
}

// New creates an empty blackboard for a fresh run.
func New() *Blackboard {
	return &Blackboard{
		agentComms: make(map[string]string),
	}
}

// AddInference appends an inference entry.
func (b *Blackboard) AddInference(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inferences = append(b.inferences, entry)
}

// AddDecision appends a decision entry.
func (b *Blackboard) AddDecision(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.decisions = append(b.decisions, entry)
}

// SetAgentMessage records a key/value agent communication. An existing key is
// overwritten; the map never shrinks.
func (b *Blackboard) SetAgentMessage(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agentComms[key] = value
}

// Inferences returns a copy of the inference log in append order.
func (b *Blackboard) Inferences() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.inferences))
	copy(out, b.inferences)
	return out
}

// Decisions returns a copy of the decision log in append order.
func (b *Blackboard) Decisions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.decisions))
	copy(out, b.decisions)
	return out
}

// AgentMessages returns a copy of the agent communication map.
func (b *Blackboard) AgentMessages() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.agentComms))
	for k, v := range b.agentComms {
		out[k] = v
	}
	return out
}

// Snapshot returns the read-only form persisted with the batch.
func (b *Blackboard) Snapshot() models.BlackboardSnapshot {
	return models.BlackboardSnapshot{
		Inferences:    b.Inferences(),
		Decisions:     b.Decisions(),
		AgentMessages: b.AgentMessages(),
	}
}
