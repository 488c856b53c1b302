package conversation

import (
	"sync"

	"github.com/google/uuid"

	"study-tutor/internal/domain"
)

// Outcome tracks whether a student turn received an answer. It is metadata kept
// beside the turn; the turn itself is never changed.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeTentative  Outcome = "tentative"
	OutcomeAnswered   Outcome = "answered"
	OutcomeUnanswered Outcome = "unanswered"
)

// Entry is a stored turn together with its outcome.
type Entry struct {
	Turn    domain.Turn
	Outcome Outcome
}

// Listener is notified with a fresh snapshot after every append or outcome change.
type Listener func(turns []domain.Turn)

// Store is the ordered, append-only conversation transcript for one session.
type Store struct {
	mu        sync.RWMutex
	entries   []Entry
	index     map[string]int
	listeners []Listener
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Append adds turn to the end of the transcript and returns its ID. A missing or
// already used ID is replaced with a fresh one. Student turns start out tentative
// until MarkOutcome resolves them.
func (s *Store) Append(turn domain.Turn) string {
	turn = copyTurn(turn)

	outcome := OutcomeNone
	if turn.Role == domain.RoleStudent {
		outcome = OutcomeTentative
	}

	s.mu.Lock()
	if _, taken := s.index[turn.ID]; taken || turn.ID == "" {
		turn.ID = newID()
	}
	s.index[turn.ID] = len(s.entries)
	s.entries = append(s.entries, Entry{Turn: turn, Outcome: outcome})
	s.mu.Unlock()

	s.notify()
	return turn.ID
}

// MarkOutcome records whether the student turn with the given id was answered.
// It reports false for unknown ids and for turns that are not tentative.
func (s *Store) MarkOutcome(id string, outcome Outcome) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok || s.entries[i].Outcome != OutcomeTentative {
		s.mu.Unlock()
		return false
	}
	s.entries[i].Outcome = outcome
	s.mu.Unlock()

	s.notify()
	return true
}

// Outcome returns the recorded outcome of the turn with the given id.
func (s *Store) Outcome(id string) (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return OutcomeNone, false
	}
	return s.entries[i].Outcome, true
}

// SerializeForContext projects the stored turns to role/content pairs in order.
func (s *Store) SerializeForContext() []domain.HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HistoryItem, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, domain.HistoryItem{Role: e.Turn.Role, Content: e.Turn.Content})
	}
	return out
}

// Turns returns a copy of the transcript.
func (s *Store) Turns() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnsLocked()
}

// Entries returns a copy of the transcript with outcomes.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = Entry{Turn: copyTurn(e.Turn), Outcome: e.Outcome}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers a listener. Listeners run synchronously on the goroutine that
// changed the store and must not call back into Append.
func (s *Store) Subscribe(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	var turns []domain.Turn
	if len(listeners) > 0 {
		turns = s.turnsLocked()
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(turns)
	}
}

func (s *Store) turnsLocked() []domain.Turn {
	out := make([]domain.Turn, len(s.entries))
	for i, e := range s.entries {
		out[i] = copyTurn(e.Turn)
	}
	return out
}

// copyTurn detaches t from the caller's sources. An empty non-nil slice stays
// non-nil.
func copyTurn(t domain.Turn) domain.Turn {
	if t.Sources != nil {
		t.Sources = append(make([]domain.Source, 0, len(t.Sources)), t.Sources...)
	}
	return t
}

var newID = func() string {
	return uuid.NewString()
}
