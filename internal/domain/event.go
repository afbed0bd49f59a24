package domain

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of accepted event kinds.
type EventType string

const (
	EventTypeArticleView EventType = "article_view"
	EventTypeInteraction EventType = "interaction"
)

// KnownEventTypes enumerates the accepted kinds; keep in sync with the
// constants above.
var KnownEventTypes = []EventType{EventTypeArticleView, EventTypeInteraction}

func (t EventType) Valid() bool {
	for _, k := range KnownEventTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Identity is the optional contact payload a visitor may volunteer.
// Consumed only to derive a domain classification; never persisted or
// logged in raw form.
type Identity struct {
	Email string `json:"email"`
}

// RawEvent is the wire shape of one inbound event before validation.
// Unknown extra keys are ignored for forward compatibility, so decoding
// into it must not disallow unknown fields.
type RawEvent struct {
	Type       string          `json:"type"`
	Slug       string          `json:"slug"`
	SessionID  string          `json:"sessionId"`
	OccurredAt json.RawMessage `json:"occurredAt"`
	Identity   *Identity       `json:"identity,omitempty"`
}

// Event is the canonical validated record. Instances are produced by
// ValidateEvent and never mutated afterwards.
type Event struct {
	Type       EventType
	Slug       string
	SessionID  string
	OccurredAt time.Time
	Identity   *Identity
}

// Validation constraints (keep in sync with migrations/0001_init.sql)
const (
	MaxSlugLen       = 128
	MaxSessionIDLen  = 128
	MaxEmailLen      = 254
	DefaultClockSkew = 5 * time.Minute
)
