package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"intake-chat/internal/adapters/gateway"
	"intake-chat/internal/adapters/repository"
	"intake-chat/internal/config"
	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/services"
)

// newChatCommand builds the terminal chat client
// It drives the same controller the server uses, one visit per process
func newChatCommand(cfg **config.Config) *cobra.Command {
	var agentID int64
	var name, email string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c := *cfg
			api := gateway.NewAPIClient(gateway.APIClientConfig{
				BaseURL:    c.Backend.BaseURL,
				Timeout:    c.Backend.Timeout,
				MaxRetries: c.Backend.MaxRetries,
			}, repository.NewMemoryTokenStore())
			webhook := gateway.NewWebhookClient(c.Webhook.URL, nil)

			term := &terminal{
				in:  bufio.NewScanner(cmd.InOrStdin()),
				out: cmd.OutOrStdout(),
			}

			typingOpts := services.DefaultTypingOptions()
			typingOpts.OnChange = term.onTyping

			controller := services.NewController(
				services.NewSessionStore(nil),
				api, api, webhook,
				services.NewTypingIndicator(typingOpts),
				services.ControllerOptions{
					AgentID:             agentID,
					VisitID:             "terminal",
					WebhookTimeout:      c.Webhook.Timeout,
					CollectedDataPolicy: services.CollectedDataPolicy(c.Chat.CollectedDataMode),
				},
			)
			defer controller.Close()

			return term.run(ctx, controller, name, email)
		},
	}

	cmd.Flags().Int64Var(&agentID, "agent", 0, "agent id to chat with")
	cmd.Flags().StringVar(&name, "name", "", "your name (prompted when empty)")
	cmd.Flags().StringVar(&email, "email", "", "your email (prompted when empty)")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

// terminal drives a controller from line input
// out is shared with the typing goroutine, every write goes through print
type terminal struct {
	in  *bufio.Scanner
	out io.Writer
	mu  sync.Mutex

	shown       int
	eof         bool
	typingShown atomic.Bool
}

func (t *terminal) run(ctx context.Context, controller *services.Controller, name, email string) error {
	if err := controller.LoadAgent(ctx); err != nil {
		return fmt.Errorf("%s: %w", controller.View().Error, err)
	}
	t.print("Connected to %s. Type /quit to leave.\n", controller.View().AgentName)

	for controller.Phase() == services.PhaseAwaitingLogin {
		if name == "" {
			name = t.prompt("Name: ")
		}
		if email == "" {
			email = t.prompt("Email: ")
		}
		if t.eof {
			return t.in.Err()
		}

		err := controller.Login(ctx, name, email)
		if err == nil {
			break
		}
		t.print("%s\n", controller.View().Error)
		if ctx.Err() != nil {
			return nil
		}

		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			switch validationErr.Field {
			case "name":
				name = ""
			case "email":
				email = ""
			}
			continue
		}

		// backend failures are retried only when the user asks
		if answer := strings.ToLower(t.prompt("Retry? [y/N] ")); answer != "y" && answer != "yes" {
			return fmt.Errorf("start chat session: %w", err)
		}
	}

	view := controller.View()
	t.print("%s\n", view.Title)
	if view.Welcome != "" {
		t.print("%s\n", view.Welcome)
	}
	t.render(view)

	for controller.Phase() != services.PhaseSessionClosed {
		t.print("> ")
		if !t.in.Scan() {
			return t.in.Err()
		}
		line := t.in.Text()
		if strings.TrimSpace(line) == "/quit" {
			return nil
		}
		if !controller.CanSend(line) {
			continue
		}

		t.typingShown.Store(false)
		err := controller.Send(ctx, line)
		view := controller.View()
		t.render(view)
		if err != nil {
			t.print("! %s\n", view.Error)
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	t.print("%s\n", domain.SessionEndedNotice)
	return nil
}

// render prints messages not printed yet; the user's own lines are skipped
func (t *terminal) render(view services.View) {
	for _, msg := range view.Messages[min(t.shown, len(view.Messages)):] {
		if msg.Sender.IsAssistant() {
			t.print("%s: %s\n", agentLabel(view), msg.Text)
		} else if msg.Failed {
			t.print("(not delivered) %s\n", msg.Text)
		}
	}
	t.shown = len(view.Messages)
}

// onTyping prints the indicator once per send
func (t *terminal) onTyping(visible bool) {
	if visible && t.typingShown.CompareAndSwap(false, true) {
		t.print("...\n")
	}
}

func (t *terminal) print(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) prompt(label string) string {
	t.print("%s", label)
	if !t.in.Scan() {
		t.eof = true
		return ""
	}
	return strings.TrimSpace(t.in.Text())
}

func agentLabel(view services.View) string {
	if view.AgentName != "" {
		return view.AgentName
	}
	return "Assistant"
}
