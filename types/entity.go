package types

import "time"

// Entity carries the creation timestamp shared by journal records.
// Journal records are append-only, so there is no update timestamp.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
}

// NewEntity creates a new Entity stamped with the current UTC time.
func NewEntity() Entity {
	return Entity{CreatedAt: time.Now().UTC()}
}

// Age returns how long ago the entity was created.
func (e Entity) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// IsNew returns true if the entity was created within the last minute.
func (e Entity) IsNew() bool {
	return e.Age() < time.Minute
}
