package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/internal/dedup"
	"github.com/williampepple1/listing-notifier/internal/extraction"
	"github.com/williampepple1/listing-notifier/internal/logger"
	"github.com/williampepple1/listing-notifier/internal/notifier"
	"github.com/williampepple1/listing-notifier/internal/scraper"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

const listingURL = "https://www.expatriates.com/classifieds/saudi-arabia/jobs/"

const listingPage = `<html><body><ul>
  <li><a href="/cls/101.html">Senior Driver Needed</a> Heavy vehicle licence. Send CV to a@b.com</li>
  <li><a href="/cls/102.html">Cashier wanted</a> Supermarket in Riyadh</li>
</ul></body></html>`

type fakeFetcher struct {
	html  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", &scraper.FetchError{URL: url, Err: f.err}
	}
	return f.html, nil
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, string) (string, error) {
	panic("boom")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Posting
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, p models.Posting) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return &notifier.NotifyError{Destination: "webhook", PostingURL: p.URL, StatusCode: 500, Err: n.err}
	}
	n.sent = append(n.sent, p)
	return nil
}

type recordingAnnouncer struct {
	errors []error
}

func (a *recordingAnnouncer) SendStartup(context.Context, []string, time.Duration) error { return nil }

func (a *recordingAnnouncer) SendError(_ context.Context, cause error) error {
	a.errors = append(a.errors, cause)
	return nil
}

type brokenStore struct{ dedup.Store }

func (brokenStore) HasSeen(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func newTracker(t *testing.T, f scraper.Fetcher, n notifier.Notifier, store dedup.Store, keywords ...string) (*Tracker, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := config.CreateDefault().Extraction
	return New(Options{
		ListingURL: listingURL,
		Fetcher:    f,
		Extractor:  extraction.NewExtractor(&cfg, "https://www.expatriates.com", keywords),
		Notifier:   n,
		Store:      store,
		Logger:     logger.Wrap(zap.New(core)),
	}), logs
}

func TestRunOnce_NotifiesMatchingPosting(t *testing.T) {
	n := &recordingNotifier{}
	tr, _ := newTracker(t, &fakeFetcher{html: listingPage}, n, dedup.NewMemoryStore(0), "driver", "engineer")

	report := tr.RunOnce(context.Background())

	assert.True(t, report.Fetched)
	assert.Empty(t, report.Err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Notified)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "Senior Driver Needed", n.sent[0].Title)
	assert.Equal(t, "a@b.com", n.sent[0].Email)
	assert.NotEmpty(t, report.ID)
}

func TestRunOnce_SecondCycleIsDeduplicated(t *testing.T) {
	n := &recordingNotifier{}
	f := &fakeFetcher{html: listingPage}
	tr, _ := newTracker(t, f, n, dedup.NewMemoryStore(0), "driver", "engineer")

	first := tr.RunOnce(context.Background())
	second := tr.RunOnce(context.Background())

	assert.Equal(t, 1, first.Notified)
	assert.Equal(t, 0, second.Notified)
	assert.Equal(t, 1, second.Duplicates)
	assert.Len(t, n.sent, 1)
	assert.Equal(t, 2, f.calls)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRunOnce_FetchErrorEndsCycle(t *testing.T) {
	n := &recordingNotifier{}
	f := &fakeFetcher{err: errors.New("status 503")}
	tr, logs := newTracker(t, f, n, dedup.NewMemoryStore(0), "driver")

	report := tr.RunOnce(context.Background())

	assert.False(t, report.Fetched)
	assert.Contains(t, report.Err, "status 503")
	assert.Empty(t, n.sent)
	assert.Equal(t, 1, logs.FilterMessage("Fetch failed").Len())

	// The next cycle still runs
	f.err = nil
	f.html = listingPage
	report = tr.RunOnce(context.Background())
	assert.Equal(t, 1, report.Notified)
}

func TestRunOnce_NotifyFailureStillMarksSeen(t *testing.T) {
	n := &recordingNotifier{err: errors.New("internal server error")}
	store := dedup.NewMemoryStore(0)
	tr, logs := newTracker(t, &fakeFetcher{html: listingPage}, n, store, "driver")

	report := tr.RunOnce(context.Background())

	assert.Equal(t, 1, report.NotifyErrors)
	assert.Equal(t, 0, report.Notified)

	seen, err := store.HasSeen(context.Background(), "https://www.expatriates.com/cls/101.html")
	require.NoError(t, err)
	assert.True(t, seen)

	entries := logs.FilterMessage("Notification failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "https://www.expatriates.com/cls/101.html", entries[0].ContextMap()["posting_url"])
}

func TestRunOnce_NoKeywordMatch(t *testing.T) {
	n := &recordingNotifier{}
	tr, _ := newTracker(t, &fakeFetcher{html: listingPage}, n, dedup.NewMemoryStore(0), "welder")

	report := tr.RunOnce(context.Background())

	assert.True(t, report.Fetched)
	assert.Equal(t, 0, report.Matched)
	assert.Empty(t, n.sent)
}

func TestRunOnce_MalformedBlockSkipped(t *testing.T) {
	page := `<html><body><ul>
  <li><a href="#">Driver with no link</a></li>
  <li><a href="/cls/201.html">Driver for family</a> Riyadh</li>
</ul></body></html>`
	n := &recordingNotifier{}
	tr, logs := newTracker(t, &fakeFetcher{html: page}, n, dedup.NewMemoryStore(0), "driver")

	report := tr.RunOnce(context.Background())

	assert.Equal(t, 1, report.ParseErrors)
	assert.Equal(t, 1, report.Notified)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "Driver for family", n.sent[0].Title)

	entries := logs.FilterMessage("Skipping malformed listing block").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 0, entries[0].ContextMap()["index"])
}

func TestRunOnce_DedupLookupErrorSkipsPosting(t *testing.T) {
	n := &recordingNotifier{}
	tr, _ := newTracker(t, &fakeFetcher{html: listingPage}, n, brokenStore{}, "driver")

	report := tr.RunOnce(context.Background())

	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 0, report.Notified)
	assert.Empty(t, n.sent)
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	tr, logs := newTracker(t, panicFetcher{}, &recordingNotifier{}, dedup.NewMemoryStore(0), "driver")

	var report models.CycleReport
	require.NotPanics(t, func() { report = tr.RunOnce(context.Background()) })

	assert.Equal(t, "panic: boom", report.Err)
	assert.Equal(t, 1, logs.FilterMessage("Recovered from panic in cycle").Len())

	last, ok := tr.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.ID, last.ID)
}

func TestRunOnce_ErrorAlertOncePerStreak(t *testing.T) {
	f := &fakeFetcher{err: errors.New("timeout")}
	a := &recordingAnnouncer{}
	tr, _ := newTracker(t, f, &recordingNotifier{}, dedup.NewMemoryStore(0), "driver")
	tr.announcer = a

	tr.RunOnce(context.Background())
	tr.RunOnce(context.Background())
	assert.Len(t, a.errors, 1)

	f.err = nil
	f.html = listingPage
	tr.RunOnce(context.Background())

	f.err = errors.New("timeout")
	tr.RunOnce(context.Background())
	assert.Len(t, a.errors, 2)
}

func TestLastReport(t *testing.T) {
	tr, _ := newTracker(t, &fakeFetcher{html: listingPage}, &recordingNotifier{}, dedup.NewMemoryStore(0), "driver")

	_, ok := tr.LastReport()
	assert.False(t, ok)

	report := tr.RunOnce(context.Background())
	last, ok := tr.LastReport()
	require.True(t, ok)
	assert.Equal(t, report, last)
	assert.Equal(t, []string{"driver"}, tr.Keywords())
}

func TestRunOnce_SameTitleDifferentLinks(t *testing.T) {
	html := `<ul>
  <li><a href="/cls/1.html">Driver Needed</a> Riyadh</li>
  <li><a href="/cls/2.html">Driver Needed</a> Jeddah</li>
</ul>`
	n := &recordingNotifier{}
	tr, _ := newTracker(t, &fakeFetcher{html: html}, n, dedup.NewMemoryStore(0), "driver")

	first := tr.RunOnce(context.Background())
	second := tr.RunOnce(context.Background())

	assert.Equal(t, 2, first.Notified)
	assert.Equal(t, 2, second.Duplicates)
	require.Len(t, n.sent, 2)
	assert.Equal(t, "https://www.expatriates.com/cls/1.html", n.sent[0].URL)
	assert.Equal(t, "https://www.expatriates.com/cls/2.html", n.sent[1].URL)
}

func TestRunOnce_CycleLimitDefersTheRest(t *testing.T) {
	var b strings.Builder
	b.WriteString("<ul>")
	for i := range 20 {
		fmt.Fprintf(&b, `<li><a href="/cls/%d.html">Driver %d</a></li>`, i, i)
	}
	b.WriteString("</ul>")

	n := &recordingNotifier{}
	tr, _ := newTracker(t, &fakeFetcher{html: b.String()}, n, dedup.NewMemoryStore(0), "driver")
	tr.maxPer = 15

	first := tr.RunOnce(context.Background())
	assert.Equal(t, 20, first.Matched)
	assert.Equal(t, 15, first.Notified)
	assert.Equal(t, 5, first.Deferred)

	second := tr.RunOnce(context.Background())
	assert.Equal(t, 15, second.Duplicates)
	assert.Equal(t, 5, second.Notified)
	assert.Zero(t, second.Deferred)

	third := tr.RunOnce(context.Background())
	assert.Zero(t, third.Notified)

	require.Len(t, n.sent, 20)
	seen := make(map[string]bool)
	for _, p := range n.sent {
		seen[p.URL] = true
	}
	assert.Len(t, seen, 20)
}

type failingDestination struct{}

func (failingDestination) Notify(_ context.Context, p models.Posting) error {
	return &notifier.NotifyError{Destination: "telegram", PostingURL: p.URL, StatusCode: 403, Err: errors.New("forbidden")}
}

func TestRunOnce_PartialDeliveryCountsAsNotified(t *testing.T) {
	webhook := &recordingNotifier{}
	store := dedup.NewMemoryStore(0)
	tr, logs := newTracker(t, &fakeFetcher{html: listingPage}, notifier.Multi{webhook, failingDestination{}}, store, "driver")

	report := tr.RunOnce(context.Background())

	assert.Equal(t, 1, report.Notified)
	assert.Zero(t, report.NotifyErrors)
	require.Len(t, webhook.sent, 1)

	warned := logs.FilterMessage("Notification not delivered to every destination").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
	assert.Contains(t, warned[0].ContextMap()["error"], "telegram")

	seen, err := store.HasSeen(context.Background(), "https://www.expatriates.com/cls/101.html")
	require.NoError(t, err)
	assert.True(t, seen)
}
