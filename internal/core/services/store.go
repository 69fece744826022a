package services

import (
	"log/slog"
	"slices"
	"sync"

	"intake-chat/internal/core/domain"
)

// State is an immutable copy of the Session Store contents
type State struct {
	Snapshot         *domain.Snapshot
	Agent            *domain.Agent
	Loading          bool
	Error            string
	FailedMessageIDs []int64
	// Version increases by one per mutation; observers drop older states
	Version uint64
}

// HasSession reports whether a session snapshot is loaded
func (s State) HasSession() bool {
	return s.Snapshot != nil
}

// SessionClosed reports the session latch
func (s State) SessionClosed() bool {
	return s.Snapshot != nil && s.Snapshot.Session.SessionClosed
}

// StateReader is the read-only view handed to observers
type StateReader interface {
	State() State
	Subscribe(fn func(State)) (unsubscribe func())
}

// SessionStore owns the session/customer/agent/message/collected-data state
// of one page visit. Only the Controller holds a *SessionStore
type SessionStore struct {
	mu          sync.RWMutex
	snapshot    *domain.Snapshot
	agent       *domain.Agent
	loading     bool
	errMsg      string
	failed      []int64
	version     uint64
	subscribers map[int]func(State)
	nextSubID   int
	logger      *slog.Logger
}

var _ StateReader = (*SessionStore)(nil)

// NewSessionStore creates an empty store
func NewSessionStore(logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		subscribers: make(map[int]func(State)),
		logger:      logger,
	}
}

// State returns a deep copy of the current contents
func (s *SessionStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *SessionStore) stateLocked() State {
	st := State{
		Snapshot:         s.snapshot.Clone(),
		Loading:          s.loading,
		Error:            s.errMsg,
		FailedMessageIDs: append([]int64(nil), s.failed...),
		Version:          s.version,
	}
	if s.agent != nil {
		agent := *s.agent
		st.Agent = &agent
	}
	return st
}

// Subscribe registers fn to be called after every mutation
func (s *SessionStore) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// mutate applies fn under the write lock and notifies subscribers afterwards
// Notifications from concurrent mutations may interleave, State.Version orders them
func (s *SessionStore) mutate(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.version++
	st := s.stateLocked()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	subs := make([]func(State), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, s.subscribers[id])
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(st)
	}
	return nil
}

// SetSession replaces the whole snapshot and resets status flags
func (s *SessionStore) SetSession(snapshot *domain.Snapshot) {
	_ = s.mutate(func() error {
		s.snapshot = snapshot.Clone()
		if s.snapshot != nil && s.snapshot.Messages == nil {
			s.snapshot.Messages = []domain.Message{}
		}
		s.failed = nil
		s.loading = false
		s.errMsg = ""
		return nil
	})
}

// SetLoading toggles the loading flag
func (s *SessionStore) SetLoading(loading bool) {
	_ = s.mutate(func() error {
		s.loading = loading
		return nil
	})
}

// SetError stores a user-facing error; empty clears it. Always clears loading
func (s *SessionStore) SetError(msg string) {
	_ = s.mutate(func() error {
		s.errMsg = msg
		s.loading = false
		return nil
	})
}

// SetAgent stores the agent projection
func (s *SessionStore) SetAgent(agent *domain.Agent) {
	_ = s.mutate(func() error {
		if agent == nil {
			s.agent = nil
			return nil
		}
		a := *agent
		a.DataSchemas = append([]domain.DataSchema(nil), agent.DataSchemas...)
		s.agent = &a
		return nil
	})
}

// AddMessage appends to the current session
// Returns domain.ErrNoSession when no snapshot is loaded
func (s *SessionStore) AddMessage(msg domain.Message) error {
	return s.mutate(func() error {
		if s.snapshot == nil {
			return domain.ErrNoSession
		}
		s.snapshot.Messages = append(s.snapshot.Messages, msg)
		return nil
	})
}

// AppendCollectedData always appends, duplicates by field are kept
func (s *SessionStore) AppendCollectedData(item domain.CollectedData) error {
	return s.mutate(func() error {
		if s.snapshot == nil {
			return domain.ErrNoSession
		}
		s.snapshot.CollectedData = append(s.snapshot.CollectedData, item)
		return nil
	})
}

// UpdateCollectedData replaces the entry with the same FieldID or appends
func (s *SessionStore) UpdateCollectedData(item domain.CollectedData) error {
	return s.mutate(func() error {
		if s.snapshot == nil {
			return domain.ErrNoSession
		}
		for i := range s.snapshot.CollectedData {
			if s.snapshot.CollectedData[i].FieldID == item.FieldID {
				s.snapshot.CollectedData[i] = item
				return nil
			}
		}
		s.snapshot.CollectedData = append(s.snapshot.CollectedData, item)
		return nil
	})
}

// UpdateSessionClosed sets the one-way closed latch
// No-op without a session; false never reopens a closed session
func (s *SessionStore) UpdateSessionClosed(closed bool) {
	_ = s.mutate(func() error {
		if s.snapshot == nil {
			return nil
		}
		if s.snapshot.Session.SessionClosed && !closed {
			s.logger.Warn("Ignoring attempt to reopen closed session",
				"session_id", s.snapshot.Session.ID,
			)
			return nil
		}
		s.snapshot.Session.SessionClosed = closed
		return nil
	})
}

// MarkSendFailed flags an optimistic message whose delivery failed
func (s *SessionStore) MarkSendFailed(messageID int64) {
	_ = s.mutate(func() error {
		for _, id := range s.failed {
			if id == messageID {
				return nil
			}
		}
		s.failed = append(s.failed, messageID)
		return nil
	})
}

// ClearSession resets everything to the initial state
func (s *SessionStore) ClearSession() {
	_ = s.mutate(func() error {
		s.snapshot = nil
		s.failed = nil
		s.loading = false
		s.errMsg = ""
		return nil
	})
}
