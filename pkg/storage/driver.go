// Package storage defines the chat transcript store written by the relay's
// worker pool and read back by the chat-logs route.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Entry is a single line of the chat transcript.
type Entry struct {
	// ID uniquely identifies the entry. NewEntry assigns a UUID.
	ID string `json:"id"`

	// RequestID ties the user and assistant entries of one exchange together.
	RequestID string `json:"request_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Role is one of RoleUser, RoleAssistant or RoleSystem.
	Role string `json:"role"`

	// Source names who produced the message: "user" or the upstream
	// endpoint that answered.
	Source string `json:"source"`

	Message string `json:"message"`
}

// NewEntry returns an Entry stamped with a fresh ID and the current UTC time.
func NewEntry(requestID, role, source, message string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Role:      role,
		Source:    source,
		Message:   message,
	}
}

// Driver defines the interface for persisting and reading transcript entries.
type Driver interface {
	// Put appends entries to the transcript in the given order.
	Put(ctx context.Context, entries ...*Entry) error

	// Get returns the entry with the given ID or a NotFoundError.
	Get(ctx context.Context, id string) (*Entry, error)

	// List returns the most recent limit entries, oldest first.
	// A limit of zero or less returns every entry.
	List(ctx context.Context, limit int) ([]*Entry, error)

	// DeleteBefore removes entries with a timestamp before cutoff and
	// reports how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close closes the store and releases any resources.
	Close() error
}
