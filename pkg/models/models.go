package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Posting represents one scraped listing that matched a keyword
type Posting struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	URL      string   `json:"url"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Keyword  string   `json:"keyword"`
	Keywords []string `json:"keywords,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// DedupKey returns the stable identifier used to suppress repeat notifications.
// The URL is preferred; postings without one fall back to a hash of title and body.
func (p Posting) DedupKey() string {
	if p.URL != "" {
		return p.URL
	}
	sum := sha256.Sum256([]byte(p.Title + "\n" + p.Body))
	return hex.EncodeToString(sum[:])
}

// CycleReport represents the outcome of one fetch-extract-notify pass
type CycleReport struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Fetched      bool          `json:"fetched"`
	ParseErrors  int           `json:"parse_errors"`
	Matched      int           `json:"matched"`
	Duplicates   int           `json:"duplicates"`
	Notified     int           `json:"notified"`
	NotifyErrors int           `json:"notify_errors"`
	Deferred     int           `json:"deferred"`
	Err          string        `json:"error,omitempty"`
}
