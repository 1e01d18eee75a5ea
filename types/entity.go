package types

import "time"

// Entity is the base type for all ledger entities with timestamps.
// Embed this in domain types to get automatic timestamp handling.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EntityAt creates an Entity with both timestamps set to the given instant.
// Useful when the engine is driven by an injected clock.
func EntityAt(t time.Time) Entity {
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// TouchAt updates the UpdatedAt timestamp to the given instant.
func (e *Entity) TouchAt(t time.Time) {
	e.UpdatedAt = t
}
