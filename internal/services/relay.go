package services

import (
	"context"
	"fmt"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/pkg/email"
	"github.com/fleetdesk/console/pkg/telegram"
)

// TelegramRelay posts sent notifications to the fleet's bot chat.
type TelegramRelay struct {
	client *telegram.Client
	chatID string
}

func NewTelegramRelay(client *telegram.Client, chatID string) *TelegramRelay {
	return &TelegramRelay{client: client, chatID: chatID}
}

func (r *TelegramRelay) Name() string { return "telegram" }

func (r *TelegramRelay) Relay(ctx context.Context, n models.Notification) error {
	return r.client.Send(ctx, r.chatID, formatRelayText(n))
}

// EmailRelay mails announcement and system notifications to a fixed list.
type EmailRelay struct {
	sender *email.Sender
	to     []string
}

func NewEmailRelay(sender *email.Sender, to []string) *EmailRelay {
	return &EmailRelay{sender: sender, to: to}
}

func (r *EmailRelay) Name() string { return "email" }

func (r *EmailRelay) Relay(ctx context.Context, n models.Notification) error {
	if n.Type != models.NotificationAnnouncement && n.Type != models.NotificationSystem {
		return nil
	}
	return r.sender.SendEmailContext(ctx, r.to, "[Fleet console] "+n.Title, formatRelayText(n))
}

func formatRelayText(n models.Notification) string {
	text := fmt.Sprintf("%s\n\n%s", n.Title, n.Message)
	if n.CreatedByName != "" {
		text += "\n\n- " + n.CreatedByName
	}
	return text
}
