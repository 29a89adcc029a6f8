// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fiscal

import "sync"

const (
	// DefaultMaxHistory is the number of recent messages replayed per request.
	DefaultMaxHistory = 20

	// HistoryCap bounds the stored history of one unit, system message included.
	HistoryCap = 30
)

// baseSystemPrompt opens every unit's conversation.
const baseSystemPrompt = "你是财政数据分析专家，负责从政府预决算公开文件中准确提取数据。"

// Conversation keeps one message history per administrative unit so that
// successive years of the same unit are extracted with the earlier
// answers in context. Histories never cross units.
type Conversation struct {
	mu         sync.Mutex
	maxHistory int
	histories  map[string][]Message
}

// NewConversation returns an empty conversation store. A maxHistory of 0
// selects DefaultMaxHistory.
func NewConversation(maxHistory int) *Conversation {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Conversation{
		maxHistory: maxHistory,
		histories:  make(map[string][]Message),
	}
}

// Messages returns a copy of unit's history: the system message followed
// by at most maxHistory recent messages.
func (c *Conversation) Messages(unit string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history(unit)
	if len(h) > c.maxHistory+1 {
		h = append([]Message{h[0]}, h[len(h)-c.maxHistory:]...)
		c.histories[unit] = h
	}
	return append([]Message(nil), h...)
}

// Append adds msgs to unit's history. Past HistoryCap the oldest
// non-system messages are dropped.
func (c *Conversation) Append(unit string, msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := append(c.history(unit), msgs...)
	if len(h) > HistoryCap {
		h = append([]Message{h[0]}, h[len(h)-(HistoryCap-1):]...)
	}
	c.histories[unit] = h
}

// Len returns the stored history length of unit, system message included.
func (c *Conversation) Len(unit string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.histories[unit])
}

// history must be called with mu held.
func (c *Conversation) history(unit string) []Message {
	h, ok := c.histories[unit]
	if !ok {
		h = []Message{{Role: RoleSystem, Content: baseSystemPrompt}}
		c.histories[unit] = h
	}
	return h
}
