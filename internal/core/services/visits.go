package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"intake-chat/internal/core/ports"
)

// ErrVisitNotFound is returned for unknown or reaped visit ids
var ErrVisitNotFound = errors.New("visit not found")

// VisitEventType names what changed in a visit
type VisitEventType string

const (
	VisitEventState  VisitEventType = "state"
	VisitEventTyping VisitEventType = "typing"
	VisitEventClosed VisitEventType = "closed"
)

// VisitEvent is pushed to visit observers
type VisitEvent struct {
	Type   VisitEventType
	State  State
	Typing bool
}

// Visit is one page visit: a store, a controller and its typing indicator
type Visit struct {
	ID        string
	AgentID   int64
	CreatedAt time.Time

	controller *Controller
	store      *SessionStore
	lastSeen   atomic.Int64

	mu        sync.Mutex
	observers map[int]func(VisitEvent)
	nextObsID int
}

// Controller returns the visit's controller
func (v *Visit) Controller() *Controller {
	return v.controller
}

// State returns the current store contents
func (v *Visit) State() State {
	return v.store.State()
}

// LastSeen returns the last time the visit was touched
func (v *Visit) LastSeen() time.Time {
	return time.UnixMilli(v.lastSeen.Load())
}

func (v *Visit) touch(now time.Time) {
	v.lastSeen.Store(now.UnixMilli())
}

// Subscribe registers fn for state, typing and closed events
func (v *Visit) Subscribe(fn func(VisitEvent)) func() {
	v.mu.Lock()
	id := v.nextObsID
	v.nextObsID++
	v.observers[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.observers, id)
		v.mu.Unlock()
	}
}

func (v *Visit) emit(ev VisitEvent) {
	v.mu.Lock()
	obs := make([]func(VisitEvent), 0, len(v.observers))
	for _, fn := range v.observers {
		obs = append(obs, fn)
	}
	v.mu.Unlock()

	for _, fn := range obs {
		fn(ev)
	}
}

// VisitConfig configures visits opened by a VisitManager
type VisitConfig struct {
	IdleTTL             time.Duration
	WebhookTimeout      time.Duration
	CollectedDataPolicy CollectedDataPolicy
	Typing              TypingOptions
	Recorder            Recorder
	ExchangeLog         ports.ExchangeLogRepository
}

// VisitManager keeps the live visits of the server
type VisitManager struct {
	sessions ports.SessionGateway
	agents   ports.AgentGateway
	webhook  ports.WebhookGateway
	cfg      VisitConfig
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	visits map[string]*Visit
}

// NewVisitManager creates an empty registry
func NewVisitManager(
	sessions ports.SessionGateway,
	agents ports.AgentGateway,
	webhook ports.WebhookGateway,
	cfg VisitConfig,
	logger *slog.Logger,
) *VisitManager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Typing.Visible.Max == 0 && cfg.Typing.Hidden.Max == 0 {
		def := DefaultTypingOptions()
		cfg.Typing.Visible, cfg.Typing.Hidden = def.Visible, def.Hidden
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisitManager{
		sessions: sessions,
		agents:   agents,
		webhook:  webhook,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		visits:   make(map[string]*Visit),
	}
}

// Open starts a visit for an agent and loads the agent details
// An agent load failure is kept in the visit state, the visit is still returned
func (m *VisitManager) Open(ctx context.Context, agentID int64) (*Visit, error) {
	now := m.now()
	visit := &Visit{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		CreatedAt: now,
		observers: make(map[int]func(VisitEvent)),
	}
	visit.touch(now)

	logger := m.logger.With("component", "visit")
	visit.store = NewSessionStore(logger)

	typingOpts := m.cfg.Typing
	typingOpts.OnChange = func(v bool) {
		visit.emit(VisitEvent{Type: VisitEventTyping, Typing: v})
	}
	typing := NewTypingIndicator(typingOpts)

	visit.controller = NewController(visit.store, m.sessions, m.agents, m.webhook, typing, ControllerOptions{
		AgentID:             agentID,
		VisitID:             visit.ID,
		WebhookTimeout:      m.cfg.WebhookTimeout,
		CollectedDataPolicy: m.cfg.CollectedDataPolicy,
		Recorder:            m.cfg.Recorder,
		ExchangeLog:         m.cfg.ExchangeLog,
		Logger:              logger,
	})

	visit.store.Subscribe(func(st State) {
		visit.emit(VisitEvent{Type: VisitEventState, State: st})
	})

	m.mu.Lock()
	m.visits[visit.ID] = visit
	count := len(m.visits)
	m.mu.Unlock()
	m.cfg.Recorder.ActiveVisits(count)

	m.logger.Info("Visit opened", "visit_id", visit.ID, "agent_id", agentID)

	if err := visit.controller.LoadAgent(ctx); err != nil {
		return visit, err
	}
	return visit, nil
}

// Get returns a live visit and refreshes its idle timer
func (m *VisitManager) Get(id string) (*Visit, error) {
	m.mu.RLock()
	visit, ok := m.visits[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrVisitNotFound
	}
	visit.touch(m.now())
	return visit, nil
}

// Close ends a visit and stops its typing indicator
func (m *VisitManager) Close(id string) error {
	m.mu.Lock()
	visit, ok := m.visits[id]
	if ok {
		delete(m.visits, id)
	}
	count := len(m.visits)
	m.mu.Unlock()

	if !ok {
		return ErrVisitNotFound
	}
	visit.controller.Close()
	visit.emit(VisitEvent{Type: VisitEventClosed, State: visit.State()})
	m.cfg.Recorder.ActiveVisits(count)
	m.logger.Info("Visit closed", "visit_id", id)
	return nil
}

// Count returns the number of live visits
func (m *VisitManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.visits)
}

// Reap closes visits idle for longer than the TTL and returns how many were removed
// Visits with a send in flight are never reaped
func (m *VisitManager) Reap(now time.Time) int {
	m.mu.RLock()
	var stale []string
	for id, visit := range m.visits {
		if now.Sub(visit.LastSeen()) > m.cfg.IdleTTL && !visit.controller.Sending() {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if err := m.Close(id); err == nil {
			removed++
		}
	}
	return removed
}

// RunReaper purges idle visits every interval until ctx is done
func (m *VisitManager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("[REAPER] Service started", "interval", interval, "idle_ttl", m.cfg.IdleTTL)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("[REAPER] Service stopped")
			return
		case <-ticker.C:
			if removed := m.Reap(m.now()); removed > 0 {
				m.logger.Info("[REAPER] Purged idle visits", "removed", removed, "remaining", m.Count())
			}
		}
	}
}

// Shutdown closes every live visit
func (m *VisitManager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.visits))
	for id := range m.visits {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}
}
