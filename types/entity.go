package types

import "time"

// Entity carries the creation and modification timestamps shared by all
// persisted Tally records.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity stamps both timestamps with now (UTC).
func NewEntity() Entity {
	return NewEntityAt(time.Now())
}

// NewEntityAt stamps both timestamps with t (UTC).
func NewEntityAt(t time.Time) Entity {
	t = t.UTC()
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// Touch updates UpdatedAt to now.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// TouchAt updates UpdatedAt to t.
func (e *Entity) TouchAt(t time.Time) {
	e.UpdatedAt = t.UTC()
}
