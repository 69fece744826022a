package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intake-chat/internal/core/domain"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

const testAgentID int64 = 7

type controllerFixture struct {
	controller *Controller
	store      *SessionStore
	sessions   *MockSessionGateway
	agents     *MockAgentGateway
	webhook    *MockWebhookGateway
	typing     *TypingIndicator
}

// fastTyping keeps the indicator cycling quickly in tests
func fastTyping() *TypingIndicator {
	return NewTypingIndicator(TypingOptions{
		Visible: DurationRange{Min: time.Millisecond, Max: 3 * time.Millisecond},
		Hidden:  DurationRange{Min: time.Millisecond, Max: 3 * time.Millisecond},
	})
}

// createTestController creates a controller with mock gateways
func createTestController(opts ControllerOptions) controllerFixture {
	store := NewSessionStore(nil)
	sessions := new(MockSessionGateway)
	agents := new(MockAgentGateway)
	webhook := new(MockWebhookGateway)
	typing := fastTyping()

	if opts.AgentID == 0 {
		opts.AgentID = testAgentID
	}
	if opts.VisitID == "" {
		opts.VisitID = "visit-test"
	}

	return controllerFixture{
		controller: NewController(store, sessions, agents, webhook, typing, opts),
		store:      store,
		sessions:   sessions,
		agents:     agents,
		webhook:    webhook,
		typing:     typing,
	}
}

func testAgent() *domain.Agent {
	return &domain.Agent{ID: testAgentID, Name: "Intake Bot", WebhookURL: "https://hooks.example.com/agent"}
}

func newSnapshot(messages ...domain.Message) *domain.Snapshot {
	return &domain.Snapshot{
		Customer:     domain.Customer{ID: 3, Name: "Jane", Email: "jane@x.com", AgentID: testAgentID},
		Session:      domain.Session{ID: 42, AgentID: testAgentID, CustomerName: "Jane", CustomerEmail: "jane@x.com"},
		Messages:     messages,
		IsNewSession: len(messages) == 0,
	}
}

func greetingMessage() domain.Message {
	return domain.Message{
		ID:        100,
		Sender:    domain.RoleAssistant,
		Receiver:  domain.RoleUser,
		Content:   domain.Encode(domain.RoleAssistant, "Hello Jane, how are you doing today?"),
		SessionID: 42,
	}
}

// activeController returns a controller with a loaded agent and a resumed session
func activeController(t *testing.T, opts ControllerOptions) controllerFixture {
	t.Helper()
	f := createTestController(opts)
	ctx := context.Background()

	f.agents.On("GetAgent", ctx, testAgentID).Return(testAgent(), nil)
	f.sessions.On("GetOrCreateSession", ctx, mock.Anything).Return(newSnapshot(greetingMessage()), nil)

	require.NoError(t, f.controller.LoadAgent(ctx))
	require.NoError(t, f.controller.Login(ctx, "Jane", "jane@x.com"))
	require.Equal(t, PhaseActive, f.controller.Phase())
	return f
}

func assistantReply(text string) *domain.WebhookReply {
	return &domain.WebhookReply{
		AIMessage: &domain.Message{
			ID:      101,
			Sender:  domain.RoleAssistant,
			Content: `{"role":"assistant","content":"` + text + `"}`,
		},
	}
}

// ============================================================================
// Login and bootstrap
// ============================================================================

// TestLogin_NewSessionSendsGreeting tests the first-message bootstrap for a new session
func TestLogin_NewSessionSendsGreeting(t *testing.T) {
	f := createTestController(ControllerOptions{})
	ctx := context.Background()

	greeting := domain.Encode(domain.RoleAssistant, "Hello Jane, how are you doing today?")

	f.agents.On("GetAgent", ctx, testAgentID).Return(testAgent(), nil)
	f.sessions.On("GetOrCreateSession", ctx, domain.SessionRequest{
		AgentID:       testAgentID,
		CustomerName:  "Jane",
		CustomerEmail: "jane@x.com",
	}).Return(newSnapshot(), nil)
	f.agents.On("AppendFirstMessage", ctx, domain.FirstMessageRequest{
		Sender:    domain.RoleAssistant,
		Receiver:  domain.RoleUser,
		SessionID: 42,
		Content:   greeting,
	}).Return(&domain.Message{ID: 100, Sender: "ai", Receiver: "user", Content: greeting, SessionID: 42}, nil)

	require.NoError(t, f.controller.LoadAgent(ctx))
	require.NoError(t, f.controller.Login(ctx, "  Jane ", " jane@x.com "))

	st := f.store.State()
	require.Len(t, st.Snapshot.Messages, 1)
	assert.Equal(t, "Hello Jane, how are you doing today?", domain.Decode(st.Snapshot.Messages[0].Content))
	assert.Equal(t, domain.RoleAssistant, st.Snapshot.Messages[0].Sender)
	assert.Equal(t, PhaseActive, f.controller.Phase())
	assert.False(t, st.Loading)

	f.agents.AssertExpectations(t)
	f.sessions.AssertExpectations(t)
}

// TestLogin_BootstrapRunsOnce tests that the greeting is sent once per visit
func TestLogin_BootstrapRunsOnce(t *testing.T) {
	f := createTestController(ControllerOptions{})
	ctx := context.Background()

	// agent arrives after the session, then is reloaded
	f.sessions.On("GetOrCreateSession", ctx, mock.Anything).Return(newSnapshot(), nil)
	f.agents.On("GetAgent", ctx, testAgentID).Return(testAgent(), nil)
	f.agents.On("AppendFirstMessage", ctx, mock.Anything).
		Return(&domain.Message{ID: 100, Content: domain.Encode(domain.RoleAssistant, "hi")}, nil).Once()

	require.NoError(t, f.controller.Login(ctx, "Jane", "jane@x.com"))
	assert.Equal(t, PhaseFirstMessageBootstrap, f.controller.Phase())
	f.agents.AssertNotCalled(t, "AppendFirstMessage", mock.Anything, mock.Anything)

	require.NoError(t, f.controller.LoadAgent(ctx))
	require.NoError(t, f.controller.LoadAgent(ctx))

	f.agents.AssertNumberOfCalls(t, "AppendFirstMessage", 1)
	assert.Len(t, f.store.State().Snapshot.Messages, 1)
	assert.Equal(t, PhaseActive, f.controller.Phase())
}

// TestLogin_ResumedSessionSkipsBootstrap tests that existing history suppresses the greeting
func TestLogin_ResumedSessionSkipsBootstrap(t *testing.T) {
	f := activeController(t, ControllerOptions{})

	f.agents.AssertNotCalled(t, "AppendFirstMessage", mock.Anything, mock.Anything)
	assert.Len(t, f.store.State().Snapshot.Messages, 1)
}

// TestLogin_BootstrapFailureIsNotFatal tests that a failed greeting still activates the chat
func TestLogin_BootstrapFailureIsNotFatal(t *testing.T) {
	f := createTestController(ControllerOptions{})
	ctx := context.Background()

	f.agents.On("GetAgent", ctx, testAgentID).Return(testAgent(), nil)
	f.sessions.On("GetOrCreateSession", ctx, mock.Anything).Return(newSnapshot(), nil)
	f.agents.On("AppendFirstMessage", ctx, mock.Anything).Return(nil, errors.New("backend down"))

	require.NoError(t, f.controller.LoadAgent(ctx))
	require.NoError(t, f.controller.Login(ctx, "Jane", "jane@x.com"))

	assert.Empty(t, f.store.State().Snapshot.Messages)
	assert.Equal(t, PhaseActive, f.controller.Phase())
}

// TestLogin_Validation tests that invalid input never reaches the network
func TestLogin_Validation(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "", email: "jane@x.com", want: "Name is required"},
		{name: "Jane", email: "  ", want: "Email is required"},
		{name: "Jane", email: "jane@x", want: "Please enter a valid email address"},
		{name: "Jane", email: "ja ne@x.com", want: "Please enter a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.email, func(t *testing.T) {
			f := createTestController(ControllerOptions{})

			err := f.controller.Login(context.Background(), tt.name, tt.email)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Message)
			assert.Equal(t, tt.want, f.store.State().Error)
			assert.Equal(t, PhaseAwaitingLogin, f.controller.Phase())
			f.sessions.AssertNotCalled(t, "GetOrCreateSession", mock.Anything, mock.Anything)
		})
	}
}

// TestLogin_SessionFailureAllowsRetry tests the failure path back to AwaitingLogin
func TestLogin_SessionFailureAllowsRetry(t *testing.T) {
	f := createTestController(ControllerOptions{})
	ctx := context.Background()

	f.sessions.On("GetOrCreateSession", ctx, mock.Anything).
		Return(nil, &domain.TransportError{Kind: domain.TransportNetwork, Err: errors.New("refused")}).Once()
	f.sessions.On("GetOrCreateSession", ctx, mock.Anything).Return(newSnapshot(greetingMessage()), nil).Once()

	err := f.controller.Login(ctx, "Jane", "jane@x.com")
	require.Error(t, err)

	st := f.store.State()
	assert.Equal(t, domain.SessionStartFailedMsg, st.Error)
	assert.False(t, st.Loading)
	assert.False(t, st.HasSession())
	assert.Equal(t, PhaseAwaitingLogin, f.controller.Phase())

	require.NoError(t, f.controller.Login(ctx, "Jane", "jane@x.com"))
	assert.True(t, f.store.State().HasSession())
	assert.Empty(t, f.store.State().Error)
}

// TestLogin_NotAllowedAfterSession tests that a second login is rejected
func TestLogin_NotAllowedAfterSession(t *testing.T) {
	f := activeController(t, ControllerOptions{})

	err := f.controller.Login(context.Background(), "Jane", "jane@x.com")
	assert.ErrorIs(t, err, ErrLoginNotAllowed)
	f.sessions.AssertNumberOfCalls(t, "GetOrCreateSession", 1)
}

// TestLoadAgent_Failure tests that agent errors surface in the store
func TestLoadAgent_Failure(t *testing.T) {
	f := createTestController(ControllerOptions{})
	ctx := context.Background()

	f.agents.On("GetAgent", ctx, testAgentID).Return(nil, &domain.GatewayError{Status: 404, Message: "Agent not found"})

	err := f.controller.LoadAgent(ctx)
	require.Error(t, err)
	assert.Equal(t, "Agent not found", f.store.State().Error)
	assert.Nil(t, f.store.State().Agent)
}

// ============================================================================
// Send / receive
// ============================================================================

// TestSend_AppendsUserAndAssistantMessages tests a full round trip
func TestSend_AppendsUserAndAssistantMessages(t *testing.T) {
	f := activeController(t, ControllerOptions{})

	f.webhook.On("SendMessage", mock.Anything, mock.MatchedBy(func(req domain.WebhookRequest) bool {
		last := req.Messages[len(req.Messages)-1]
		return req.UserMessage == "I need help" &&
			len(req.Messages) == 2 &&
			last.Sender == domain.RoleUser &&
			domain.Decode(last.Content) == "I need help" &&
			req.Agent != nil && req.Agent.ID == testAgentID &&
			req.Session.ID == 42
	})).Return(assistantReply("Sure, tell me more."), nil)

	require.NoError(t, f.controller.Send(context.Background(), "I need help"))

	msgs := f.store.State().Snapshot.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.RoleUser, msgs[1].Sender)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Receiver)
	assert.Equal(t, `{"role":"User","content":"I need help"}`, msgs[1].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[2].Sender)
	assert.Equal(t, int64(101), msgs[2].ID)
	assert.Equal(t, int64(42), msgs[2].SessionID)
	assert.Equal(t, "Sure, tell me more.", domain.Decode(msgs[2].Content))

	assert.False(t, f.typing.Running())
	assert.False(t, f.typing.Visible())
	assert.False(t, f.controller.Sending())
	f.webhook.AssertExpectations(t)
}

// TestSend_RejectsBlankInput tests the empty-message gate
func TestSend_RejectsBlankInput(t *testing.T) {
	f := activeController(t, ControllerOptions{})

	assert.ErrorIs(t, f.controller.Send(context.Background(), "   \n"), domain.ErrEmptyMessage)
	assert.False(t, f.controller.CanSend("  "))
	assert.True(t, f.controller.CanSend("hi"))
	f.webhook.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

// TestSend_RequiresSession tests sends before login
func TestSend_RequiresSession(t *testing.T) {
	f := createTestController(ControllerOptions{})

	assert.ErrorIs(t, f.controller.Send(context.Background(), "hello"), domain.ErrNoSession)
	assert.False(t, f.controller.CanSend("hello"))
}

// TestSend_SessionClosedBlocksFurtherSends tests the one-way closed latch
func TestSend_SessionClosedBlocksFurtherSends(t *testing.T) {
	f := activeController(t, ControllerOptions{})
	ctx := context.Background()

	reply := assistantReply("Thanks, we are done.")
	reply.Session = &domain.SessionUpdate{ID: 42, SessionClosed: true}
	f.webhook.On("SendMessage", mock.Anything, mock.Anything).Return(reply, nil).Once()

	require.NoError(t, f.controller.Send(ctx, "bye"))
	assert.Equal(t, PhaseSessionClosed, f.controller.Phase())
	assert.True(t, f.store.State().SessionClosed())

	err := f.controller.Send(ctx, "one more thing")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.False(t, f.controller.CanSend("one more thing"))

	f.webhook.AssertNumberOfCalls(t, "SendMessage", 1)
	assert.Len(t, f.store.State().Snapshot.Messages, 3)
}

// TestSend_SessionUpdateFalseKeepsOpen tests that an open update is a no-op
func TestSend_SessionUpdateFalseKeepsOpen(t *testing.T) {
	f := activeController(t, ControllerOptions{})

	reply := assistantReply("ok")
	reply.Session = &domain.SessionUpdate{ID: 42, SessionClosed: false}
	f.webhook.On("SendMessage", mock.Anything, mock.Anything).Return(reply, nil)

	require.NoError(t, f.controller.Send(context.Background(), "hello"))
	assert.Equal(t, PhaseActive, f.controller.Phase())
	assert.True(t, f.controller.CanSend("again"))
}

// TestSend_InFlightGuard tests that a second send is rejected while one is pending
func TestSend_InFlightGuard(t *testing.T) {
	f := activeController(t, ControllerOptions{})
	ctx := context.Background()

	release := make(chan struct{})
	f.webhook.On("SendMessage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-release
	}).Return(assistantReply("done"), nil).Once()

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = f.controller.Send(ctx, "first")
	}()

	require.Eventually(t, f.controller.Sending, time.Second, time.Millisecond)
	assert.Eventually(t, f.typing.Running, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.controller.Send(ctx, "second"), domain.ErrSendInFlight)
	assert.False(t, f.controller.CanSend("second"))

	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	f.webhook.AssertNumberOfCalls(t, "SendMessage", 1)
	assert.False(t, f.typing.Running())
	assert.Len(t, f.store.State().Snapshot.Messages, 3)
}

// TestSend_FailureMarksMessage tests that failed sends are flagged and typing stops
func TestSend_FailureMarksMessage(t *testing.T) {
	f := activeController(t, ControllerOptions{})

	f.webhook.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, &domain.TransportError{Kind: domain.TransportNetwork, Err: errors.New("connection refused")})

	err := f.controller.Send(context.Background(), "hello?")
	require.Error(t, err)

	st := f.store.State()
	require.Len(t, st.Snapshot.Messages, 2)
	userMsg := st.Snapshot.Messages[1]
	assert.Equal(t, []int64{userMsg.ID}, st.FailedMessageIDs)
	assert.Equal(t, domain.Encode(domain.RoleUser, "hello?"), userMsg.Content)
	assert.Equal(t, domain.NetworkErrorMessage, st.Error)

	assert.False(t, f.typing.Running())
	assert.False(t, f.typing.Visible())
	assert.True(t, f.controller.CanSend("retry"))
}

// TestSend_WebhookTimeout tests that a hung webhook is abandoned after the timeout
func TestSend_WebhookTimeout(t *testing.T) {
	f := activeController(t, ControllerOptions{WebhookTimeout: 20 * time.Millisecond})

	f.webhook.On("SendMessage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		<-ctx.Done()
	}).Return(nil, context.DeadlineExceeded)

	started := time.Now()
	err := f.controller.Send(context.Background(), "anyone there?")
	require.Error(t, err)
	assert.Less(t, time.Since(started), time.Second)

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, domain.TransportTimeout, transportErr.Kind)
	assert.Equal(t, domain.TimeoutErrorMessage, f.store.State().Error)
	assert.False(t, f.controller.Sending())
	assert.False(t, f.typing.Running())
}

// TestSend_ReplyWithoutFacets tests that an empty reply only keeps the user message
func TestSend_ReplyWithoutFacets(t *testing.T) {
	f := activeController(t, ControllerOptions{})

	f.webhook.On("SendMessage", mock.Anything, mock.Anything).Return(&domain.WebhookReply{}, nil)

	require.NoError(t, f.controller.Send(context.Background(), "hello"))
	st := f.store.State()
	assert.Len(t, st.Snapshot.Messages, 2)
	assert.Empty(t, st.Snapshot.CollectedData)
	assert.Empty(t, st.FailedMessageIDs)
}

// TestSend_LocalIDsAreMonotonic tests client ids never collide within a visit
func TestSend_LocalIDsAreMonotonic(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	f := activeController(t, ControllerOptions{Now: func() time.Time { return frozen }})

	f.webhook.On("SendMessage", mock.Anything, mock.Anything).Return(&domain.WebhookReply{}, nil)

	ctx := context.Background()
	require.NoError(t, f.controller.Send(ctx, "one"))
	require.NoError(t, f.controller.Send(ctx, "two"))

	msgs := f.store.State().Snapshot.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, frozen.UnixMilli(), msgs[1].ID)
	assert.Equal(t, frozen.UnixMilli()+1, msgs[2].ID)
}

// TestSend_CollectedDataPolicies tests append and upsert handling of answers
func TestSend_CollectedDataPolicies(t *testing.T) {
	answers := []string{"red", "blue"}

	tests := []struct {
		policy CollectedDataPolicy
		want   []string
	}{
		{policy: CollectedDataAppend, want: []string{"red", "blue"}},
		{policy: CollectedDataUpsert, want: []string{"blue"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := activeController(t, ControllerOptions{CollectedDataPolicy: tt.policy})

			for i, answer := range answers {
				f.webhook.On("SendMessage", mock.Anything, mock.Anything).Return(&domain.WebhookReply{
					CollectedData: &domain.CollectedData{ID: int64(i + 1), FieldID: 5, Answer: answer},
				}, nil).Once()
			}

			ctx := context.Background()
			require.NoError(t, f.controller.Send(ctx, "my favourite colour is red"))
			require.NoError(t, f.controller.Send(ctx, "actually blue"))

			var got []string
			for _, item := range f.store.State().Snapshot.CollectedData {
				assert.Equal(t, int64(42), item.SessionID)
				got = append(got, item.Answer)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSend_RecordsExchange tests the async audit log of a webhook round trip
func TestSend_RecordsExchange(t *testing.T) {
	exchangeRepo := new(MockExchangeLogRepository)
	saved := make(chan *domain.ExchangeLog, 1)
	exchangeRepo.On("SaveExchange", mock.Anything, mock.AnythingOfType("*domain.ExchangeLog")).
		Run(func(args mock.Arguments) {
			saved <- args.Get(1).(*domain.ExchangeLog)
		}).Return(nil)

	f := activeController(t, ControllerOptions{ExchangeLog: exchangeRepo, VisitID: "visit-audit"})
	f.webhook.On("SendMessage", mock.Anything, mock.Anything).Return(assistantReply("noted"), nil)

	require.NoError(t, f.controller.Send(context.Background(), "please log this"))

	select {
	case entry := <-saved:
		assert.Equal(t, "visit-audit", entry.VisitID)
		assert.Equal(t, int64(42), entry.SessionID)
		assert.Equal(t, testAgentID, entry.AgentID)
		assert.Equal(t, "please log this", entry.UserMessage)
		assert.Equal(t, domain.ExchangeStatusDelivered, entry.Status)
		assert.Nil(t, entry.ErrorLog)
		assert.NotEmpty(t, entry.ResponseJSON)
	case <-time.After(time.Second):
		t.Fatal("exchange log was not saved")
	}
}

// TestShouldSubmit tests the Enter / Shift+Enter rule
func TestShouldSubmit(t *testing.T) {
	assert.True(t, ShouldSubmit("Enter", false))
	assert.False(t, ShouldSubmit("Enter", true))
	assert.False(t, ShouldSubmit("a", false))
}
