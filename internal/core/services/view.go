package services

import (
	"slices"
	"time"

	"intake-chat/internal/core/domain"
)

const (
	defaultChatTitle    = "AI Chat Assistant"
	firstSessionWelcome = "Welcome! This is your first chat session."
)

// MessageView is a message as rendered: decoded text and the chat-side sender
type MessageView struct {
	ID        int64       `json:"id"`
	Sender    domain.Role `json:"sender"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
	Failed    bool        `json:"failed,omitempty"`
}

// View is the display projection of one visit
type View struct {
	Phase            Phase                  `json:"phase"`
	Title            string                 `json:"title"`
	Welcome          string                 `json:"welcome,omitempty"`
	AgentName        string                 `json:"agent_name,omitempty"`
	SessionID        int64                  `json:"session_id,omitempty"`
	Messages         []MessageView          `json:"messages"`
	CollectedData    []domain.CollectedData `json:"collected_data"`
	Typing           bool                   `json:"typing"`
	Sending          bool                   `json:"sending"`
	InputEnabled     bool                   `json:"input_enabled"`
	Loading          bool                   `json:"loading"`
	Notice           string                 `json:"notice,omitempty"`
	Error            string                 `json:"error,omitempty"`
	FailedMessageIDs []int64                `json:"failed_message_ids"`
	Version          uint64                 `json:"version"`
}

// BuildView renders a state snapshot. Content is decoded here and nowhere else
func BuildView(st State, phase Phase, typing, sending bool) View {
	v := View{
		Phase:            phase,
		Title:            defaultChatTitle,
		Messages:         []MessageView{},
		CollectedData:    []domain.CollectedData{},
		Typing:           typing,
		Sending:          sending,
		Loading:          st.Loading,
		Error:            st.Error,
		FailedMessageIDs: append([]int64{}, st.FailedMessageIDs...),
		Version:          st.Version,
	}
	if st.Agent != nil {
		v.AgentName = st.Agent.Name
	}

	snap := st.Snapshot
	if snap == nil {
		return v
	}

	if snap.Customer.Name != "" {
		v.Title = "Chat with " + snap.Customer.Name
	}
	if snap.IsNewSession {
		v.Welcome = firstSessionWelcome
	}
	v.SessionID = snap.Session.ID
	v.CollectedData = append(v.CollectedData, snap.CollectedData...)

	for _, msg := range snap.Messages {
		v.Messages = append(v.Messages, MessageView{
			ID:        msg.ID,
			Sender:    domain.NormalizeRole(string(msg.Sender)),
			Text:      domain.Decode(msg.Content),
			CreatedAt: msg.CreatedAt,
			Failed:    slices.Contains(st.FailedMessageIDs, msg.ID),
		})
	}

	if snap.Session.SessionClosed {
		v.Notice = domain.SessionEndedNotice
	}
	v.InputEnabled = !snap.Session.SessionClosed && !sending
	return v
}

// View renders the controller's current state
func (c *Controller) View() View {
	return BuildView(c.store.State(), c.Phase(), c.typing.Visible(), c.Sending())
}
