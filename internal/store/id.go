package store

import "github.com/google/uuid"

// newID generates a globally unique entity identifier.
//
// Every ID is a plain UUIDv4 string so projects, tasks, subtasks, and
// sessions share one format.
func newID() string {
	return uuid.NewString()
}
