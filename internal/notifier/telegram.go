package notifier

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

// TelegramNotifier sends postings to a Telegram chat as HTML messages
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects to the Bot API. An empty endpoint uses the public API.
func NewTelegramNotifier(token string, chatID int64, endpoint string, client *http.Client) (*TelegramNotifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// Notify sends posting to the configured chat
func (t *TelegramNotifier) Notify(ctx context.Context, posting models.Posting) error {
	if err := ctx.Err(); err != nil {
		return &NotifyError{Destination: "telegram", PostingURL: posting.URL, Err: err}
	}

	msg := tgbotapi.NewMessage(t.chatID, formatTelegram(posting))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return &NotifyError{Destination: "telegram", PostingURL: posting.URL, Err: err}
	}
	return nil
}

func formatTelegram(p models.Posting) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 <b>%s</b>\n", html.EscapeString(p.Title))
	if p.Body != "" {
		fmt.Fprintf(&b, "📄 %s\n", html.EscapeString(truncateRunes(p.Body, maxDescriptionLength)))
	}
	fmt.Fprintf(&b, "📧 %s\n", html.EscapeString(orNotFound(p.Email)))
	fmt.Fprintf(&b, "📱 %s\n", html.EscapeString(orNotFound(p.Phone)))
	keywords := p.Keywords
	if len(keywords) == 0 {
		keywords = []string{p.Keyword}
	}
	fmt.Fprintf(&b, "🔑 %s\n", html.EscapeString(strings.Join(keywords, ", ")))
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">View posting</a>", html.EscapeString(p.URL))
	return b.String()
}
