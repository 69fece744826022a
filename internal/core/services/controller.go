// Package services contains core business logic
// Following Hexagonal Architecture: Services orchestrate domain logic using ports
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
)

// Phase is the lifecycle state of one chat visit
type Phase string

const (
	PhaseAwaitingLogin         Phase = "awaiting_login"
	PhaseSessionLoading        Phase = "session_loading"
	PhaseFirstMessageBootstrap Phase = "first_message_bootstrap"
	PhaseActive                Phase = "active"
	PhaseSessionClosed         Phase = "session_closed"
)

// ErrLoginNotAllowed is returned when Login is called after a session started
var ErrLoginNotAllowed = errors.New("login is only allowed before a session starts")

// CollectedDataPolicy selects how webhook answers land in the store
type CollectedDataPolicy string

const (
	// CollectedDataAppend keeps every answer the webhook reports
	CollectedDataAppend CollectedDataPolicy = "append"
	// CollectedDataUpsert keeps only the latest answer per field
	CollectedDataUpsert CollectedDataPolicy = "upsert"
)

// Recorder receives lifecycle outcomes for metrics
type Recorder interface {
	LoginFinished(outcome string)
	BootstrapFinished(outcome string)
	SendFinished(outcome string, latency time.Duration)
	ActiveVisits(n int)
}

type nopRecorder struct{}

func (nopRecorder) LoginFinished(string)               {}
func (nopRecorder) BootstrapFinished(string)           {}
func (nopRecorder) SendFinished(string, time.Duration) {}
func (nopRecorder) ActiveVisits(int)                   {}

// ControllerOptions configures a Controller
type ControllerOptions struct {
	AgentID             int64
	VisitID             string
	WebhookTimeout      time.Duration
	CollectedDataPolicy CollectedDataPolicy
	Recorder            Recorder
	ExchangeLog         ports.ExchangeLogRepository
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Controller drives login, session resumption, the first-message bootstrap,
// sends and the session-closed latch for one page visit
type Controller struct {
	store    *SessionStore
	sessions ports.SessionGateway
	agents   ports.AgentGateway
	webhook  ports.WebhookGateway
	typing   *TypingIndicator

	opts   ControllerOptions
	logger *slog.Logger

	mu           sync.Mutex
	phase        Phase
	bootstrapped bool
	inFlight     bool
	lastLocalID  int64
}

// NewController wires a controller to its store, gateways and typing indicator
func NewController(
	store *SessionStore,
	sessions ports.SessionGateway,
	agents ports.AgentGateway,
	webhook ports.WebhookGateway,
	typing *TypingIndicator,
	opts ControllerOptions,
) *Controller {
	if opts.WebhookTimeout <= 0 {
		opts.WebhookTimeout = 30 * time.Second
	}
	if opts.CollectedDataPolicy == "" {
		opts.CollectedDataPolicy = CollectedDataAppend
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if typing == nil {
		typing = NewTypingIndicator(DefaultTypingOptions())
	}

	return &Controller{
		store:    store,
		sessions: sessions,
		agents:   agents,
		webhook:  webhook,
		typing:   typing,
		opts:     opts,
		logger:   logger.With("visit_id", opts.VisitID, "agent_id", opts.AgentID),
		phase:    PhaseAwaitingLogin,
	}
}

// Store returns the read-only view of the session state
func (c *Controller) Store() StateReader {
	return c.store
}

// Typing returns the typing indicator driven by sends
func (c *Controller) Typing() *TypingIndicator {
	return c.typing
}

// Phase returns the current lifecycle phase
// A closed session latch always wins
func (c *Controller) Phase() Phase {
	if c.store.State().SessionClosed() {
		return PhaseSessionClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// Sending reports whether a webhook round trip is in flight
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// ShouldSubmit reports whether a key press submits the input (Enter without Shift)
func ShouldSubmit(key string, shift bool) bool {
	return key == "Enter" && !shift
}

// CanSend reports whether the send action is enabled for the given input
func (c *Controller) CanSend(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	st := c.store.State()
	if !st.HasSession() || st.SessionClosed() {
		return false
	}
	return !c.Sending()
}

// ============================================================================
// Page entry: agent details
// ============================================================================

// LoadAgent fetches the agent projection, independent of login
func (c *Controller) LoadAgent(ctx context.Context) error {
	agent, err := c.agents.GetAgent(ctx, c.opts.AgentID)
	if err != nil {
		c.logger.Error("Failed to load agent details", "error", err)
		c.store.SetError(domain.UserMessage(err, "Failed to load agent details."))
		return fmt.Errorf("load agent: %w", err)
	}

	c.store.SetAgent(agent)
	c.logger.Info("Agent details loaded", "agent_name", agent.Name)

	c.maybeBootstrap(ctx)
	return nil
}

// ============================================================================
// AwaitingLogin -> SessionLoading -> FirstMessageBootstrap
// ============================================================================

// Login validates the customer form and gets or creates the chat session
func (c *Controller) Login(ctx context.Context, name, email string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if err := ValidateCustomer(name, email); err != nil {
		c.store.SetError(err.Error())
		c.opts.Recorder.LoginFinished("invalid")
		return err
	}

	c.mu.Lock()
	if c.phase != PhaseAwaitingLogin {
		c.mu.Unlock()
		return ErrLoginNotAllowed
	}
	c.phase = PhaseSessionLoading
	c.mu.Unlock()

	c.store.SetError("")
	c.store.SetLoading(true)

	snapshot, err := c.sessions.GetOrCreateSession(ctx, domain.SessionRequest{
		AgentID:       c.opts.AgentID,
		CustomerName:  name,
		CustomerEmail: email,
	})
	if err != nil {
		c.logger.Error("Error creating chat session", "error", err)
		c.setPhase(PhaseAwaitingLogin)
		c.store.SetError(domain.SessionStartFailedMsg)
		c.opts.Recorder.LoginFinished("failed")
		return fmt.Errorf("get or create session: %w", err)
	}

	c.store.SetSession(snapshot)
	c.setPhase(PhaseFirstMessageBootstrap)
	c.opts.Recorder.LoginFinished("ok")

	c.logger.Info("Chat session ready",
		"session_id", snapshot.Session.ID,
		"customer_id", snapshot.Customer.ID,
		"is_new_session", snapshot.IsNewSession,
		"messages", len(snapshot.Messages),
	)

	c.maybeBootstrap(ctx)
	return nil
}

// maybeBootstrap sends the synthetic greeting once per visit when
// the agent is loaded and the session has no messages yet
func (c *Controller) maybeBootstrap(ctx context.Context) {
	st := c.store.State()
	if !st.HasSession() {
		return
	}

	c.mu.Lock()
	if len(st.Snapshot.Messages) > 0 {
		if c.phase == PhaseFirstMessageBootstrap {
			c.phase = PhaseActive
		}
		c.mu.Unlock()
		return
	}
	if st.Agent == nil || c.bootstrapped {
		c.mu.Unlock()
		return
	}
	c.bootstrapped = true
	c.mu.Unlock()

	c.bootstrap(ctx, st.Snapshot)
	c.setPhase(PhaseActive)
}

func (c *Controller) bootstrap(ctx context.Context, snapshot *domain.Snapshot) {
	greeting := fmt.Sprintf("Hello %s, how are you doing today?", snapshot.Customer.Name)

	record, err := c.agents.AppendFirstMessage(ctx, domain.FirstMessageRequest{
		Sender:    domain.RoleAssistant,
		Receiver:  domain.RoleUser,
		SessionID: snapshot.Session.ID,
		Content:   domain.Encode(domain.RoleAssistant, greeting),
	})
	if err != nil {
		// a missing greeting is not fatal
		c.logger.Warn("Failed to append first message", "error", err)
		c.opts.Recorder.BootstrapFinished("failed")
		return
	}

	msg := *record
	msg.Sender = domain.RoleAssistant
	msg.Receiver = domain.RoleUser
	if msg.SessionID == 0 {
		msg.SessionID = snapshot.Session.ID
	}
	if err := c.store.AddMessage(msg); err != nil {
		c.logger.Warn("Failed to store first message", "error", err)
		c.opts.Recorder.BootstrapFinished("failed")
		return
	}

	c.opts.Recorder.BootstrapFinished("ok")
	c.logger.Info("First message sent", "message_id", msg.ID)
}

// ============================================================================
// Active: send / receive
// ============================================================================

// Send appends the optimistic user message, performs the webhook round trip
// and applies the reply. Only one send may be in flight at a time
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyMessage
	}

	st := c.store.State()
	if !st.HasSession() {
		return domain.ErrNoSession
	}
	if st.SessionClosed() {
		return domain.ErrSessionClosed
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return domain.ErrSendInFlight
	}
	c.inFlight = true
	localID := c.nextLocalIDLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	userMsg := domain.Message{
		ID:        localID,
		Sender:    domain.RoleUser,
		Receiver:  domain.RoleAssistant,
		Content:   domain.Encode(domain.RoleUser, text),
		SessionID: st.Snapshot.Session.ID,
		CreatedAt: c.opts.Now(),
	}
	if err := c.store.AddMessage(userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	c.store.SetError("")

	c.typing.Start()
	defer c.typing.Stop()

	st = c.store.State()
	req := domain.WebhookRequest{
		Customer:      st.Snapshot.Customer,
		Session:       st.Snapshot.Session,
		Messages:      st.Snapshot.Messages,
		CollectedData: st.Snapshot.CollectedData,
		IsNewSession:  st.Snapshot.IsNewSession,
		UserMessage:   text,
		Agent:         st.Agent,
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.WebhookTimeout)
	defer cancel()

	started := c.opts.Now()
	reply, err := c.webhook.SendMessage(callCtx, req)
	latency := c.opts.Now().Sub(started)

	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var transportErr *domain.TransportError
		if !errors.As(err, &transportErr) {
			err = &domain.TransportError{Kind: domain.TransportTimeout, Err: err}
		}
	}
	c.recordExchange(req, reply, err, latency)

	if err != nil {
		c.logger.Error("Failed to send message to webhook",
			"error", err,
			"message_id", localID,
			"latency_ms", latency.Milliseconds(),
		)
		c.store.MarkSendFailed(localID)
		c.store.SetError(domain.UserMessage(err, domain.SendFailedMessage))
		c.opts.Recorder.SendFinished("failed", latency)
		return fmt.Errorf("send message: %w", err)
	}

	c.applyReply(reply, st.Snapshot.Session.ID)
	c.opts.Recorder.SendFinished("ok", latency)
	return nil
}

// applyReply reflects each present facet of the webhook reply in the store
func (c *Controller) applyReply(reply *domain.WebhookReply, sessionID int64) {
	if reply == nil {
		return
	}

	if reply.AIMessage != nil {
		msg := *reply.AIMessage
		msg.Sender = domain.RoleAssistant
		msg.Receiver = domain.RoleUser
		if msg.SessionID == 0 {
			msg.SessionID = sessionID
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = c.opts.Now()
		}
		if msg.ID == 0 {
			c.mu.Lock()
			msg.ID = c.nextLocalIDLocked()
			c.mu.Unlock()
		}
		if strings.HasPrefix(strings.TrimSpace(msg.Content), "{") {
			if _, ok := domain.DecodeReport(msg.Content); !ok {
				c.logger.Debug("Assistant content looks like JSON but is not an envelope",
					"message_id", msg.ID,
				)
			}
		}
		if err := c.store.AddMessage(msg); err != nil {
			c.logger.Warn("Failed to store assistant message", "error", err)
		}
	}

	if reply.CollectedData != nil {
		item := *reply.CollectedData
		if item.SessionID == 0 {
			item.SessionID = sessionID
		}
		var err error
		if c.opts.CollectedDataPolicy == CollectedDataUpsert {
			err = c.store.UpdateCollectedData(item)
		} else {
			err = c.store.AppendCollectedData(item)
		}
		if err != nil {
			c.logger.Warn("Failed to store collected data", "error", err, "field_id", item.FieldID)
		}
	}

	if reply.Session != nil && reply.Session.SessionClosed {
		c.store.UpdateSessionClosed(true)
		c.setPhase(PhaseSessionClosed)
		c.logger.Info("Session closed by backend", "session_id", sessionID)
	}
}

// nextLocalIDLocked returns a monotonic id for client-side messages
func (c *Controller) nextLocalIDLocked() int64 {
	id := c.opts.Now().UnixMilli()
	if id <= c.lastLocalID {
		id = c.lastLocalID + 1
	}
	c.lastLocalID = id
	return id
}

// recordExchange persists the audit trail without blocking the send
func (c *Controller) recordExchange(req domain.WebhookRequest, reply *domain.WebhookReply, sendErr error, latency time.Duration) {
	if c.opts.ExchangeLog == nil {
		return
	}

	entry := &domain.ExchangeLog{
		VisitID:     c.opts.VisitID,
		SessionID:   req.Session.ID,
		AgentID:     c.opts.AgentID,
		UserMessage: req.UserMessage,
		Status:      domain.ExchangeStatusDelivered,
		LatencyMS:   latency.Milliseconds(),
		CreatedAt:   c.opts.Now(),
	}
	if reply != nil {
		if data, err := json.Marshal(reply); err == nil {
			entry.ResponseJSON = data
		}
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Status = domain.ExchangeStatusFailed
		entry.ErrorLog = &msg
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("PANIC in exchange log save", "panic", r)
			}
		}()

		if err := c.opts.ExchangeLog.SaveExchange(context.Background(), entry); err != nil {
			c.logger.Error("Failed to save exchange log (async)", "error", err)
		}
	}()
}

// Close stops any running typing cycle
func (c *Controller) Close() {
	c.typing.Stop()
}
