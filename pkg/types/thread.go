package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	summaryLength = 50
	emptySummary  = "Empty conversation"
)

// Message is one entry of a chat thread.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the role and content of the message.
func (m Message) Validate() error {
	if !m.Role.IsValid() {
		return fmt.Errorf("%w: unknown message role %q", ErrInvalid, m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: message content is required", ErrInvalid)
	}
	if !InTimeRange(m.Timestamp) {
		return fmt.Errorf("%w: message timestamp is out of range", ErrInvalid)
	}
	return nil
}

// ChatThread is an append-only conversation session. UpdatedAt always equals
// the timestamp of the most recently appended message (or CreatedAt while the
// thread is empty).
type ChatThread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the thread invariants.
func (t *ChatThread) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: thread is nil", ErrInvalid)
	}
	if t.ID == "" {
		return fmt.Errorf("%w: thread ID is required", ErrInvalid)
	}
	if t.CreatedAt.IsZero() || t.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: thread timestamps are required", ErrInvalid)
	}
	if !InTimeRange(t.CreatedAt) || !InTimeRange(t.UpdatedAt) {
		return fmt.Errorf("%w: thread timestamps are out of range", ErrInvalid)
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		return fmt.Errorf("%w: thread updated_at precedes created_at", ErrInvalid)
	}
	for i, m := range t.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if i > 0 && m.Timestamp.Before(t.Messages[i-1].Timestamp) {
			return fmt.Errorf("%w: message %d is older than its predecessor", ErrInvalid, i)
		}
	}
	return nil
}

// Summary returns a short preview of the conversation taken from its first
// message.
func (t *ChatThread) Summary() string {
	if len(t.Messages) == 0 {
		return emptySummary
	}
	content := []rune(t.Messages[0].Content)
	if len(content) > summaryLength {
		content = content[:summaryLength]
	}
	return string(content) + "..."
}

// HasTag reports whether the thread carries tag.
func (t *ChatThread) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of t.
func (t *ChatThread) Clone() *ChatThread {
	if t == nil {
		return nil
	}
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	c.Messages = append([]Message(nil), t.Messages...)
	return &c
}

// NormalizeTags turns a tag list into a set: trimmed, empty entries dropped,
// duplicates removed, sorted.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
