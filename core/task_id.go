package core

import (
	"github.com/google/uuid"
)

// TaskID is a unique identifier for tasks, using UUID for guaranteed uniqueness.
type TaskID uuid.UUID

// String returns the string representation of the TaskID.
func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// GenerateTaskID creates a new unique TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

// IsZero returns true if the TaskID is the zero UUID.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}
