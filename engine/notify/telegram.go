// Package notify implements the optional Telegram notification
// supplemented in SPEC_FULL.md §9: on a workflow's first transition
// into a terminal status, a summary is pushed to a configured chat.
// Adapted from the teacher's plugin/chat_apps/channels/telegram
// channel, narrowed from a full bidirectional chat channel down to
// one outbound SendMessage call.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/taskmesh/store"
)

// Telegram pushes workflow-terminal notifications to a single chat.
// It implements engine/orchestrator.Notifier.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram dials the Telegram Bot API with the given token. The
// returned Telegram sends every notification to chatID.
func NewTelegram(botToken string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// NotifyWorkflowTerminal implements orchestrator.Notifier. Errors are
// logged, not returned: a failed notification must never block the
// orchestrator's tick.
func (t *Telegram) NotifyWorkflowTerminal(ctx context.Context, wf *store.Workflow) {
	msg := tgbotapi.NewMessage(t.chatID, formatTerminalMessage(wf))
	msg.ParseMode = "Markdown"
	if _, err := t.bot.Send(msg); err != nil {
		slog.Warn("notify: telegram send failed", "workflow_id", wf.ID, "error", err)
	}
}

func formatTerminalMessage(wf *store.Workflow) string {
	var icon string
	switch wf.Status {
	case store.WorkflowCompleted:
		icon = "✅"
	case store.WorkflowFailed:
		icon = "❌"
	default:
		icon = "ℹ️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *Workflow %s*\n", icon, wf.Status)
	fmt.Fprintf(&b, "id: `%s`\n", wf.ID)
	fmt.Fprintf(&b, "goal: %s\n", wf.Goal)
	return b.String()
}
