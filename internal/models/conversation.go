package models

import (
	"sort"
	"time"
)

const maxPreferenceValues = 10

// Turn is one user message and the reply sent back.
type Turn struct {
	UserMessage string    `json:"userMessage"`
	Reply       string    `json:"reply"`
	Intent      string    `json:"intent"`
	Entities    Entities  `json:"entities"`
	Language    string    `json:"language,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Preferences accumulate what the user asked for across turns.
type Preferences struct {
	Flowers   []string     `json:"flowers,omitempty"`
	Colors    []string     `json:"colors,omitempty"`
	Occasions []string     `json:"occasions,omitempty"`
	Styles    []string     `json:"styles,omitempty"`
	Budget    *BudgetRange `json:"budget,omitempty"`
	Recipient string       `json:"recipient,omitempty"`
}

// ConversationContext is the per-user session state.
type ConversationContext struct {
	UserID         string      `json:"userId"`
	MessageHistory []Turn      `json:"messageHistory"`
	Preferences    Preferences `json:"preferences"`
	Language       string      `json:"language,omitempty"`
	LastUpdated    time.Time   `json:"lastUpdated"`
}

// NewConversationContext returns an empty context for userID.
func NewConversationContext(userID string) *ConversationContext {
	return &ConversationContext{UserID: userID, MessageHistory: []Turn{}}
}

// LastTurn returns the most recent turn, or nil.
func (c *ConversationContext) LastTurn() *Turn {
	if c == nil || len(c.MessageHistory) == 0 {
		return nil
	}
	return &c.MessageHistory[len(c.MessageHistory)-1]
}

// Recent returns up to n most recent turns, oldest first.
func (c *ConversationContext) Recent(n int) []Turn {
	if c == nil || n <= 0 {
		return nil
	}
	if len(c.MessageHistory) <= n {
		return c.MessageHistory
	}
	return c.MessageHistory[len(c.MessageHistory)-n:]
}

// AppendTurn records turn, keeps history ordered by timestamp, trims it to
// the last window entries and folds the turn's entities into preferences.
func (c *ConversationContext) AppendTurn(turn Turn, window int) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	c.MessageHistory = append(c.MessageHistory, turn)
	sort.SliceStable(c.MessageHistory, func(i, j int) bool {
		return c.MessageHistory[i].Timestamp.Before(c.MessageHistory[j].Timestamp)
	})
	if window > 0 && len(c.MessageHistory) > window {
		trimmed := make([]Turn, window)
		copy(trimmed, c.MessageHistory[len(c.MessageHistory)-window:])
		c.MessageHistory = trimmed
	}

	c.Preferences.Merge(turn.Entities)
	if turn.Timestamp.After(c.LastUpdated) {
		c.LastUpdated = turn.Timestamp
		if turn.Language != "" {
			c.Language = turn.Language
		}
	}
}

// Merge folds entities into the preferences. The latest budget and
// recipient win; lists are de-duplicated unions, newest last.
func (p *Preferences) Merge(e Entities) {
	p.Flowers = mergeValues(p.Flowers, e.Flowers)
	p.Colors = mergeValues(p.Colors, e.Colors)
	p.Occasions = mergeValues(p.Occasions, e.Occasions)
	p.Styles = mergeValues(p.Styles, e.Styles)
	if e.Budget != nil {
		p.Budget = e.Budget.Normalized()
	}
	if e.Recipient != "" {
		p.Recipient = e.Recipient
	}
}

// AsEntities projects preferences back onto an Entities value.
func (p Preferences) AsEntities() Entities {
	return Entities{
		Flowers:   p.Flowers,
		Colors:    p.Colors,
		Occasions: p.Occasions,
		Styles:    p.Styles,
		Budget:    p.Budget,
		Recipient: p.Recipient,
	}
}

func mergeValues(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	out := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	// incoming values move to the back so recency is preserved
	inNew := make(map[string]bool, len(incoming))
	for _, v := range incoming {
		inNew[v] = true
	}
	for _, v := range existing {
		if !inNew[v] && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range incoming {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	if len(out) > maxPreferenceValues {
		out = out[len(out)-maxPreferenceValues:]
	}
	return out
}
