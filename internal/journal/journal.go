// Package journal keeps a record of every receipt the engine obtained and how it ended.
package journal

import (
	"sync"
	"time"
)

// Entry is one network-visible step of a command.
type Entry struct {
	RunID   string    `json:"run_id"`
	Time    time.Time `json:"time"`
	Command string    `json:"command"`
	Step    string    `json:"step"`
	Receipt string    `json:"receipt,omitempty"`
	State   string    `json:"state"`
	Detail  string    `json:"detail,omitempty"`
	Tx      string    `json:"tx,omitempty"`
}

// Recorder accepts entries.
type Recorder interface {
	Record(Entry)
}

// Memory stores entries in memory for quick inspection.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty journal optionally pre-sizing storage.
func NewMemory(capacity int) *Memory {
	if capacity < 0 {
		capacity = 0
	}
	return &Memory{entries: make([]Entry, 0, capacity)}
}

// Record appends an entry.
func (m *Memory) Record(e Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

// Snapshot returns a copy of the recorded entries.
func (m *Memory) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
