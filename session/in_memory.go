package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/supportmesh/core"
)

// ErrTurnNotFound is returned for operations on an unknown turn id.
var ErrTurnNotFound = errors.New("turn not found")

// TurnRecord is the transcript entry of one turn.
type TurnRecord struct {
	TurnID    string
	Input     string
	IssueType *core.IssueType
	Handler   string
	FinalText string
	Err       string
	Events    []core.Event
	Snapshot  core.SupportFields
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the turn ended without a final message.
func (r TurnRecord) Failed() bool { return r.Err != "" }

// Clone returns a deep copy of r.
func (r TurnRecord) Clone() TurnRecord {
	c := r
	if r.IssueType != nil {
		c.IssueType = r.IssueType.Ptr()
	}
	c.Events = make([]core.Event, len(r.Events))
	copy(c.Events, r.Events)
	c.Snapshot = core.NewSupportContext(r.Snapshot).Snapshot()
	return c
}

// Store records the turns of a conversation.
type Store interface {
	// Begin opens a record for a new turn.
	Begin(turnID, input string, startedAt time.Time) error
	// AppendEvent adds an emitted event to an open record.
	AppendEvent(turnID string, ev core.Event) error
	// Finish closes a record with the terminal outcome.
	Finish(turnID string, fn func(r *TurnRecord)) error
	// Get returns a copy of one record.
	Get(turnID string) (TurnRecord, error)
	// List returns copies of every record in start order.
	List() []TurnRecord
}

// InMemoryStore is a volatile Store backed by a process local slice. It is
// safe for concurrent access.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns []*TurnRecord
	index map[string]int
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory transcript.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{index: make(map[string]int)}
}

// Begin opens a record. Reusing a turn id is an error.
func (s *InMemoryStore) Begin(turnID, input string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[turnID]; ok {
		return fmt.Errorf("turn %s already recorded", turnID)
	}

	s.index[turnID] = len(s.turns)
	s.turns = append(s.turns, &TurnRecord{TurnID: turnID, Input: input, StartedAt: startedAt})

	return nil
}

// AppendEvent adds ev to the record of turnID. Classification and handoff
// events also update the routing summary of the record.
func (s *InMemoryStore) AppendEvent(turnID string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(turnID)
	if err != nil {
		return err
	}

	rec.Events = append(rec.Events, ev)

	switch ev.Type {
	case core.EventClassificationSet:
		if ev.IssueType != nil {
			rec.IssueType = ev.IssueType.Ptr()
		}
	case core.EventHandoffCompleted:
		rec.Handler = ev.Target
	case core.EventFinalMessage:
		rec.FinalText = ev.Text
	}

	return nil
}

// Finish applies fn to the record of turnID while holding the write lock.
func (s *InMemoryStore) Finish(turnID string, fn func(r *TurnRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(turnID)
	if err != nil {
		return err
	}

	fn(rec)

	return nil
}

// Get returns a copy of the record of turnID.
func (s *InMemoryStore) Get(turnID string) (TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookupLocked(turnID)
	if err != nil {
		return TurnRecord{}, err
	}

	return rec.Clone(), nil
}

// List returns copies of all records in start order.
func (s *InMemoryStore) List() []TurnRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TurnRecord, 0, len(s.turns))
	for _, rec := range s.turns {
		out = append(out, rec.Clone())
	}

	return out
}

// lookupLocked requires the caller to hold the lock.
func (s *InMemoryStore) lookupLocked(turnID string) (*TurnRecord, error) {
	i, ok := s.index[turnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
	}
	return s.turns[i], nil
}
