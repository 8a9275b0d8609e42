package types

import (
	"fmt"
	"strings"
	"time"
)

// Memory is a sentence remembered on behalf of the user together with the
// embedding used to retrieve it. A memory never changes after creation; it
// can only be deleted.
type Memory struct {
	ID        string    `json:"id"`
	Sentence  string    `json:"sentence"`
	Embedding []float64 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the memory can be persisted. A memory without an
// embedding is never valid.
func (m *Memory) Validate() error {
	switch {
	case m == nil:
		return fmt.Errorf("%w: memory is nil", ErrInvalid)
	case m.ID == "":
		return fmt.Errorf("%w: memory ID is required", ErrInvalid)
	case strings.TrimSpace(m.Sentence) == "":
		return fmt.Errorf("%w: memory sentence is required", ErrInvalid)
	case len(m.Embedding) == 0:
		return fmt.Errorf("%w: memory embedding is required", ErrInvalid)
	case m.CreatedAt.IsZero():
		return fmt.Errorf("%w: memory created_at is required", ErrInvalid)
	case !InTimeRange(m.CreatedAt):
		return fmt.Errorf("%w: memory created_at is out of range", ErrInvalid)
	}
	return nil
}

// Clone returns a deep copy of m.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	c.Embedding = append([]float64(nil), m.Embedding...)
	return &c
}
