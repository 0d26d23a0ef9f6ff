package core

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a new unique identifier for events and action calls.
func NewID() string { return uuid.NewString() }

// NewTurnID generates a lexically sortable identifier for a conversation turn,
// so transcripts order naturally by ID.
func NewTurnID() string { return ulid.Make().String() }
