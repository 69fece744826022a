package domain

import (
	"encoding/json"
	"strings"
)

// Role is the chat-side sender/receiver vocabulary
type Role string

// Chat-side roles, as stored and rendered
const (
	RoleAssistant Role = "ai"
	RoleUser      Role = "user"
)

// Webhook wire spellings of the two roles
const (
	WireRoleAssistant = "assistant"
	WireRoleUser      = "user"
)

// Envelope spellings used inside JSON-wrapped content
const (
	EnvelopeRoleAssistant = "Assistant"
	EnvelopeRoleUser      = "User"
)

// NormalizeRole maps any known spelling onto the chat vocabulary
// Unknown values are treated as the user side
func NormalizeRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ai", "assistant", "bot", "agent":
		return RoleAssistant
	default:
		return RoleUser
	}
}

// Wire returns the webhook spelling of the role
func (r Role) Wire() string {
	if r == RoleAssistant {
		return WireRoleAssistant
	}
	return WireRoleUser
}

// Envelope returns the spelling used in {role, content} envelopes
func (r Role) Envelope() string {
	if r == RoleAssistant {
		return EnvelopeRoleAssistant
	}
	return EnvelopeRoleUser
}

// IsAssistant reports whether the role is the assistant side
func (r Role) IsAssistant() bool {
	return NormalizeRole(string(r)) == RoleAssistant
}

// contentEnvelope is the JSON form of wrapped message content
type contentEnvelope struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// Encode wraps text into a {role, content} JSON envelope
func Encode(role Role, text string) string {
	data, err := json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: role.Envelope(), Content: text})
	if err != nil {
		// strings always marshal; keep the text rather than lose it
		return text
	}
	return string(data)
}

// Decode returns the display text of a wire value
// Malformed envelopes fall back to the input string
func Decode(wire string) string {
	text, _ := DecodeReport(wire)
	return text
}

// DecodeReport is Decode plus whether an envelope was recognized
func DecodeReport(wire string) (string, bool) {
	if !strings.HasPrefix(strings.TrimLeft(wire, " \t\r\n"), "{") {
		return wire, false
	}

	var env contentEnvelope
	if err := json.Unmarshal([]byte(wire), &env); err != nil {
		return wire, false
	}
	if env.Content == nil {
		return wire, false
	}
	return *env.Content, true
}
