// Package types defines the records owned by the alphalite core: memories,
// chat threads with their messages, and reminders, plus the alert request
// handed to a notifier when a reminder is armed.
package types

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ErrInvalid is returned by Validate when a record violates its invariants.
var ErrInvalid = errors.New("invalid record")

// Record timestamps must fit in int64 Unix nanoseconds, roughly the years
// 1678 to 2262, which is how the embedded store keeps them.
var (
	MinTime = time.Unix(0, math.MinInt64).UTC()
	MaxTime = time.Unix(0, math.MaxInt64).UTC()
)

// InTimeRange reports whether t lies within [MinTime, MaxTime].
func InTimeRange(t time.Time) bool {
	return !t.Before(MinTime) && !t.After(MaxTime)
}

// Kind names a record collection. Kinds occupy disjoint key spaces.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindThread   Kind = "thread"
	KindReminder Kind = "reminder"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRoles lists every accepted Role.
var ValidRoles = []Role{RoleSystem, RoleUser, RoleAssistant}

// IsValid reports whether r is one of ValidRoles.
func (r Role) IsValid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRole converts user input (case-insensitive, surrounding space ignored)
// into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}
