package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/pkg/models"
	"golang.org/x/time/rate"
)

const (
	colorMatch   = 0x00ff00
	colorStartup = 0x3498db
	colorError   = 0xff0000

	maxTitleLength       = 256
	maxDescriptionLength = 200
	notFound             = "Not found"
)

// WebhookNotifier posts embed messages to an incoming chat webhook
// (Discord-compatible; Slack-style integrations read the text field)
type WebhookNotifier struct {
	url        string
	username   string
	avatarURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Embed is one rich message card
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// WebhookPayload is the JSON body sent to the webhook
type WebhookPayload struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Text      string  `json:"text,omitempty"`
	Embeds    []Embed `json:"embeds"`
}

// NewWebhookNotifier creates a notifier for cfg.WebhookURL.
// Calls are spaced by cfg.RateLimit to stay under the integration's limits.
func NewWebhookNotifier(cfg *config.NotifierConfig) *WebhookNotifier {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(cfg.RateLimit)
	}
	return &WebhookNotifier{
		url:        cfg.WebhookURL,
		username:   cfg.Username,
		avatarURL:  cfg.AvatarURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// Notify sends a job alert for posting
func (w *WebhookNotifier) Notify(ctx context.Context, posting models.Posting) error {
	if err := w.send(ctx, w.postingEmbed(posting)); err != nil {
		err.PostingURL = posting.URL
		return err
	}
	return nil
}

// SendStartup announces that monitoring has begun
func (w *WebhookNotifier) SendStartup(ctx context.Context, keywords []string, interval time.Duration) error {
	embed := Embed{
		Title:       "✅ Job Tracker Started",
		Description: "Now monitoring the listing page for new postings.",
		Color:       colorStartup,
		Fields: []EmbedField{
			{Name: "📌 Tracking Keywords", Value: strings.Join(keywords, ", ")},
			{Name: "⏰ Check Interval", Value: "Every " + interval.String()},
		},
		Footer: &EmbedFooter{Text: "Started at " + w.now().Format("2006-01-02 15:04:05")},
	}
	if err := w.send(ctx, embed); err != nil {
		return err
	}
	return nil
}

// SendError reports a failed cycle
func (w *WebhookNotifier) SendError(ctx context.Context, cause error) error {
	embed := Embed{
		Title:       "❌ Job Tracker Error",
		Description: "An error occurred while checking for jobs:",
		Color:       colorError,
		Fields: []EmbedField{
			{Name: "Error Details", Value: "```" + truncateRunes(cause.Error(), 500) + "```"},
		},
		Footer: &EmbedFooter{Text: "Error at " + w.now().Format("15:04:05")},
	}
	if err := w.send(ctx, embed); err != nil {
		return err
	}
	return nil
}

func (w *WebhookNotifier) postingEmbed(p models.Posting) Embed {
	description := truncateRunes(p.Body, maxDescriptionLength)
	if description != p.Body {
		description += "..."
	}
	keywords := p.Keywords
	if len(keywords) == 0 {
		keywords = []string{p.Keyword}
	}

	return Embed{
		Title:       truncateRunes("🚨 NEW JOB MATCH: "+p.Title, maxTitleLength),
		Description: description,
		URL:         p.URL,
		Color:       colorMatch,
		Fields: []EmbedField{
			{Name: "📧 Email", Value: "`" + orNotFound(p.Email) + "`", Inline: true},
			{Name: "📱 WhatsApp", Value: "`" + orNotFound(p.Phone) + "`", Inline: true},
			{Name: "🔑 Matched Keywords", Value: strings.Join(keywords, ", "), Inline: true},
		},
		Footer:    &EmbedFooter{Text: "Job Tracker • " + w.now().Format("2006-01-02 15:04:05")},
		Timestamp: w.now().UTC().Format(time.RFC3339),
	}
}

func (w *WebhookNotifier) send(ctx context.Context, embed Embed) *NotifyError {
	if err := w.limiter.Wait(ctx); err != nil {
		return &NotifyError{Destination: "webhook", Err: err}
	}

	payload := WebhookPayload{
		Username:  w.username,
		AvatarURL: w.avatarURL,
		Text:      embed.Title,
		Embeds:    []Embed{embed},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &NotifyError{Destination: "webhook", Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &NotifyError{Destination: "webhook", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &NotifyError{Destination: "webhook", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &NotifyError{
			Destination: "webhook",
			StatusCode:  resp.StatusCode,
			Err:         fmt.Errorf("webhook rejected message: %s", strings.TrimSpace(string(errText))),
		}
	}
	return nil
}

func orNotFound(s string) string {
	if s == "" {
		return notFound
	}
	return s
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
