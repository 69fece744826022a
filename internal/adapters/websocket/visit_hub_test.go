package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/services"
)

// MockBackend implements the chat gateways
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetOrCreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Snapshot, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

func (m *MockBackend) GetAgent(ctx context.Context, agentID int64) (*domain.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

func (m *MockBackend) AppendFirstMessage(ctx context.Context, req domain.FirstMessageRequest) (*domain.Message, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockBackend) SendMessage(ctx context.Context, req domain.WebhookRequest) (*domain.WebhookReply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookReply), args.Error(1)
}

func openVisit(t *testing.T) (*services.Visit, *MockBackend) {
	t.Helper()
	backend := new(MockBackend)
	backend.On("GetAgent", mock.Anything, int64(7)).Return(&domain.Agent{ID: 7, Name: "Intake Bot"}, nil)

	manager := services.NewVisitManager(backend, backend, backend, services.VisitConfig{}, nil)
	visit, err := manager.Open(context.Background(), 7)
	require.NoError(t, err)
	return visit, backend
}

func dial(t *testing.T, hub *VisitHub, visit *services.Visit) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeVisit(w, r, visit)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

// TestVisitHub_SendsCurrentViewOnConnect tests the initial frame
func TestVisitHub_SendsCurrentViewOnConnect(t *testing.T) {
	visit, _ := openVisit(t)
	hub := NewVisitHub(nil, nil)

	conn := dial(t, hub, visit)
	frame := readFrame(t, conn)

	assert.Equal(t, services.VisitEventState, frame.Type)
	assert.Equal(t, visit.ID, frame.VisitID)
	require.NotNil(t, frame.View)
	assert.Equal(t, "Intake Bot", frame.View.AgentName)
	assert.Equal(t, services.PhaseAwaitingLogin, frame.View.Phase)
	assert.Equal(t, 1, hub.ClientCount())
}

// TestVisitHub_PushesStateChanges tests that store mutations reach the widget
func TestVisitHub_PushesStateChanges(t *testing.T) {
	visit, backend := openVisit(t)
	hub := NewVisitHub(nil, nil)
	conn := dial(t, hub, visit)
	readFrame(t, conn)

	greeting := domain.Message{ID: 1, Sender: domain.RoleAssistant, Content: domain.Encode(domain.RoleAssistant, "Hi Jane")}
	backend.On("GetOrCreateSession", mock.Anything, mock.Anything).Return(&domain.Snapshot{
		Customer: domain.Customer{ID: 3, Name: "Jane", Email: "jane@x.com"},
		Session:  domain.Session{ID: 42},
		Messages: []domain.Message{greeting},
	}, nil)

	require.NoError(t, visit.Controller().Login(context.Background(), "Jane", "jane@x.com"))

	var last Frame
	for i := 0; i < 10; i++ {
		last = readFrame(t, conn)
		if last.View != nil && len(last.View.Messages) > 0 {
			break
		}
	}
	require.NotNil(t, last.View)
	assert.Equal(t, "Chat with Jane", last.View.Title)
	require.Len(t, last.View.Messages, 1)
	assert.Equal(t, "Hi Jane", last.View.Messages[0].Text)
}

// TestVisitHub_CloseDisconnects tests hub shutdown
func TestVisitHub_CloseDisconnects(t *testing.T) {
	visit, _ := openVisit(t)
	hub := NewVisitHub(nil, nil)
	conn := dial(t, hub, visit)
	readFrame(t, conn)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

// TestOriginChecker tests the origin allow list
func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://widget.example.com"})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Origin", "https://widget.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	assert.True(t, originChecker(nil)(r))
}

// TestVisitHub_VisitCloseDisconnects tests that closing the visit sends a closed frame and hangs up
func TestVisitHub_VisitCloseDisconnects(t *testing.T) {
	backend := new(MockBackend)
	backend.On("GetAgent", mock.Anything, int64(7)).Return(&domain.Agent{ID: 7, Name: "Intake Bot"}, nil)
	manager := services.NewVisitManager(backend, backend, backend, services.VisitConfig{}, nil)
	visit, err := manager.Open(context.Background(), 7)
	require.NoError(t, err)

	hub := NewVisitHub(nil, nil)
	conn := dial(t, hub, visit)
	readFrame(t, conn)

	require.NoError(t, manager.Close(visit.ID))

	var last Frame
	for i := 0; i < 10; i++ {
		last = readFrame(t, conn)
		if last.Type == services.VisitEventClosed {
			break
		}
	}
	assert.Equal(t, services.VisitEventClosed, last.Type)
	assert.Equal(t, visit.ID, last.VisitID)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "unexpected error: %v", err)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// TestClient_DropsStaleViews tests that a view older than the last queued one is not sent
func TestClient_DropsStaleViews(t *testing.T) {
	hub := NewVisitHub(nil, nil)
	client := &Client{hub: hub, visitID: "v1", send: make(chan []byte, 8)}

	frame := func(version uint64) Frame {
		return Frame{Type: services.VisitEventState, VisitID: "v1", View: &services.View{Version: version}}
	}
	typing := true

	client.push(frame(3))
	client.push(frame(2))
	client.push(Frame{Type: services.VisitEventTyping, VisitID: "v1", Typing: &typing})
	client.push(frame(3))
	client.push(frame(4))

	var versions []uint64
	var types []services.VisitEventType
	for len(client.send) > 0 {
		var f Frame
		require.NoError(t, json.Unmarshal(<-client.send, &f))
		types = append(types, f.Type)
		if f.View != nil {
			versions = append(versions, f.View.Version)
		}
	}
	assert.Equal(t, []uint64{3, 3, 4}, versions)
	assert.Len(t, types, 4)
}
