package services

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"intake-chat/internal/core/domain"
)

// emailPattern accepts the usual local@domain.tld shape
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 8

// ValidateEmail checks presence and shape of an email address
func ValidateEmail(email string) *domain.ValidationError {
	if strings.TrimSpace(email) == "" {
		return domain.NewValidationError("email", "Email is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return domain.NewValidationError("email", "Please enter a valid email address")
	}
	return nil
}

// ValidateCustomer checks the chat login form
func ValidateCustomer(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewValidationError("name", "Name is required")
	}
	if verr := ValidateEmail(email); verr != nil {
		return verr
	}
	return nil
}

// SignupInput is the dashboard signup form
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	AcceptedTerms   bool
}

// ValidateSignup checks the signup form before any network call
func ValidateSignup(in SignupInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.NewValidationError("name", "Name is required")
	}
	if verr := ValidateEmail(in.Email); verr != nil {
		return verr
	}
	if len(in.Password) < minPasswordLength {
		return domain.NewValidationError("password", "Password must be at least 8 characters")
	}
	if in.Password != in.ConfirmPassword {
		return domain.NewValidationError("confirm_password", "Passwords do not match")
	}
	if !in.AcceptedTerms {
		return domain.NewValidationError("terms", "You must accept the terms and conditions")
	}
	return nil
}

// ValidateLogin checks the dashboard login form
func ValidateLogin(email, password string) error {
	if verr := ValidateEmail(email); verr != nil {
		return verr
	}
	if password == "" {
		return domain.NewValidationError("password", "Password is required")
	}
	return nil
}

const (
	maxAgentDataFields   = 20
	defaultAgentType     = "question-answers"
	defaultFieldDataType = "string"
)

// NormalizeAgentInput trims the form and fills field keys (q1, q2, ...) and defaults
func NormalizeAgentInput(in domain.AgentInput) domain.AgentInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.SystemPrompt = strings.TrimSpace(in.SystemPrompt)
	in.UserInstructions = strings.TrimSpace(in.UserInstructions)
	in.WebhookURL = strings.TrimSpace(in.WebhookURL)
	in.Type = strings.TrimSpace(in.Type)

	if in.DataFields != nil {
		fields := make([]domain.DataFieldInput, len(in.DataFields))
		for i, f := range in.DataFields {
			f.Question = strings.TrimSpace(f.Question)
			if f.Key == "" {
				f.Key = fmt.Sprintf("q%d", i+1)
			}
			if f.DataType == "" {
				f.DataType = defaultFieldDataType
			}
			fields[i] = f
		}
		in.DataFields = fields
	}
	return in
}

// ValidateAgent checks the create form: every text field and at least one question
func ValidateAgent(in domain.AgentInput) error {
	switch {
	case in.Name == "":
		return domain.NewValidationError("name", "Agent name is required")
	case in.Description == "":
		return domain.NewValidationError("description", "Description is required")
	case in.SystemPrompt == "":
		return domain.NewValidationError("system_prompt", "System prompt is required")
	case in.UserInstructions == "":
		return domain.NewValidationError("user_instructions", "Instructions are required")
	case len(in.DataFields) == 0:
		return domain.NewValidationError("agent_data_fields", "Add at least one question")
	}
	if in.WebhookURL != "" {
		if verr := validateURL("webhook_url", in.WebhookURL, "Please enter a valid webhook URL"); verr != nil {
			return verr
		}
	}
	return validateDataFields(in.DataFields)
}

// ValidateAgentUpdate checks only what a partial update sets
func ValidateAgentUpdate(in domain.AgentInput) error {
	if in.WebhookURL != "" {
		if verr := validateURL("webhook_url", in.WebhookURL, "Please enter a valid webhook URL"); verr != nil {
			return verr
		}
	}
	if in.DataFields != nil {
		if len(in.DataFields) == 0 {
			return domain.NewValidationError("agent_data_fields", "Add at least one question")
		}
		return validateDataFields(in.DataFields)
	}
	return nil
}

// ValidateChatURL checks a public chat link
func ValidateChatURL(chatURL string) error {
	if strings.TrimSpace(chatURL) == "" {
		return domain.NewValidationError("chat_url", "Chat URL is required")
	}
	if verr := validateURL("chat_url", strings.TrimSpace(chatURL), "Please enter a valid chat URL"); verr != nil {
		return verr
	}
	return nil
}

func validateDataFields(fields []domain.DataFieldInput) error {
	if len(fields) > maxAgentDataFields {
		return domain.NewValidationError("agent_data_fields", fmt.Sprintf("An agent can have at most %d questions", maxAgentDataFields))
	}
	for _, f := range fields {
		if f.Question == "" {
			return domain.NewValidationError("agent_data_fields", "Every question needs text")
		}
	}
	return nil
}

// validateURL accepts absolute http and https URLs only
func validateURL(field, raw, message string) *domain.ValidationError {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.NewValidationError(field, message)
	}
	return nil
}
