// Package tracker runs one fetch-extract-notify cycle over the listing page.
//
// Nothing a cycle does is fatal: fetch, parse, dedup and notify failures are
// logged and counted in the cycle report, and panics are recovered at the
// cycle boundary so the scheduler keeps going.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/williampepple1/listing-notifier/internal/dedup"
	"github.com/williampepple1/listing-notifier/internal/extraction"
	"github.com/williampepple1/listing-notifier/internal/io"
	"github.com/williampepple1/listing-notifier/internal/logger"
	"github.com/williampepple1/listing-notifier/internal/metrics"
	"github.com/williampepple1/listing-notifier/internal/notifier"
	"github.com/williampepple1/listing-notifier/internal/scraper"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

// Options wires a Tracker. Fetcher, Extractor, Notifier and Store are required.
type Options struct {
	ListingURL string
	Fetcher    scraper.Fetcher
	Extractor  *extraction.Extractor
	Notifier   notifier.Notifier
	Store      dedup.Store
	Logger     logger.Logger

	// MaxPerCycle caps notification attempts per cycle; zero means no cap
	MaxPerCycle int

	// Optional
	Metrics   *metrics.Metrics
	Writer    *io.ResultWriter
	Announcer notifier.Announcer
}

// Tracker owns the per-cycle logic; it holds no timer of its own
type Tracker struct {
	listingURL string
	fetcher    scraper.Fetcher
	extractor  *extraction.Extractor
	notifier   notifier.Notifier
	store      dedup.Store
	log        logger.Logger
	metrics    *metrics.Metrics
	writer     *io.ResultWriter
	announcer  notifier.Announcer
	maxPer     int
	now        func() time.Time

	mu      sync.RWMutex
	last    *models.CycleReport
	failing bool
}

// New creates a tracker from opts
func New(opts Options) *Tracker {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{
		listingURL: opts.ListingURL,
		fetcher:    opts.Fetcher,
		extractor:  opts.Extractor,
		notifier:   opts.Notifier,
		store:      opts.Store,
		log:        log,
		metrics:    opts.Metrics,
		writer:     opts.Writer,
		announcer:  opts.Announcer,
		maxPer:     opts.MaxPerCycle,
		now:        time.Now,
	}
}

// RunOnce fetches the listing page, extracts matching postings and notifies
// every posting whose dedup key has not been seen. A posting is marked seen
// after its notification attempt whether or not the attempt succeeded.
// New postings beyond MaxPerCycle stay unmarked and go out on a later cycle.
func (t *Tracker) RunOnce(ctx context.Context) (report models.CycleReport) {
	report = models.CycleReport{ID: uuid.NewString(), StartedAt: t.now()}
	log := t.log.With(logger.String("cycle_id", report.ID))

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Sprintf("panic: %v", r)
			log.Error("Recovered from panic in cycle",
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())),
			)
		}
		report.Duration = t.now().Sub(report.StartedAt)
		t.finish(ctx, log, report)
	}()

	log.Info("Checking listing page", logger.String("url", t.listingURL))

	html, err := t.fetcher.Fetch(ctx, t.listingURL)
	if err != nil {
		report.Err = err.Error()
		log.Error("Fetch failed", logger.String("url", t.listingURL), logger.Error(err))
		return report
	}
	report.Fetched = true

	var fresh []models.Posting
	for posting, err := range t.extractor.Postings(html) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Err = ctxErr.Error()
			break
		}
		if err != nil {
			report.ParseErrors++
			log.Warn("Skipping malformed listing block", logger.Int("index", blockIndex(err)), logger.Error(err))
			continue
		}
		report.Matched++
		if t.handle(ctx, log, posting, &report) {
			fresh = append(fresh, posting)
		}
	}

	if err := t.writer.Append(fresh); err != nil {
		log.Error("Failed to archive postings", logger.Error(err))
	}
	return report
}

// handle runs dedup and notification for one matched posting and reports
// whether the posting was new
func (t *Tracker) handle(ctx context.Context, log logger.Logger, posting models.Posting, report *models.CycleReport) bool {
	key := posting.DedupKey()
	log = log.With(logger.String("posting_url", posting.URL))

	seen, err := t.store.HasSeen(ctx, key)
	if err != nil {
		// Skip rather than risk alerting twice
		log.Error("Dedup lookup failed, skipping posting", logger.Error(err))
		return false
	}
	if seen {
		report.Duplicates++
		log.Debug("Already notified", logger.String("title", posting.Title))
		return false
	}
	if t.maxPer > 0 && report.Notified+report.NotifyErrors >= t.maxPer {
		report.Deferred++
		log.Debug("Cycle notification limit reached, deferring posting", logger.String("title", posting.Title))
		return false
	}

	var partial *notifier.PartialError
	err = t.notifier.Notify(ctx, posting)
	switch {
	case err == nil:
		report.Notified++
		log.Info("Sent notification",
			logger.String("title", posting.Title),
			logger.String("keyword", posting.Keyword),
		)
	case errors.As(err, &partial):
		report.Notified++
		log.Warn("Notification not delivered to every destination",
			logger.String("title", posting.Title),
			logger.Int("delivered", partial.Delivered),
			logger.Int("failed", partial.Failed),
			logger.Error(err),
		)
	default:
		report.NotifyErrors++
		log.Error("Notification failed", logger.String("title", posting.Title), logger.Error(err))
	}

	if err := t.store.MarkSeen(ctx, key); err != nil {
		log.Error("Failed to mark posting seen", logger.Error(err))
	}
	return true
}

func (t *Tracker) finish(ctx context.Context, log logger.Logger, report models.CycleReport) {
	log.Info("Cycle finished",
		logger.Duration("duration", report.Duration),
		logger.Int("matched", report.Matched),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("notified", report.Notified),
		logger.Int("notify_errors", report.NotifyErrors),
		logger.Int("deferred", report.Deferred),
		logger.Int("parse_errors", report.ParseErrors),
	)
	t.metrics.ObserveCycle(report)

	t.mu.Lock()
	t.last = &report
	wasFailing := t.failing
	t.failing = report.Err != ""
	t.mu.Unlock()

	// Alert once per failure streak, not on every failed cycle
	if report.Err == "" || wasFailing || t.announcer == nil || ctx.Err() != nil {
		return
	}
	if err := t.announcer.SendError(ctx, errors.New(report.Err)); err != nil {
		log.Warn("Failed to send error alert", logger.Error(err))
	}
}

// LastReport returns the most recent cycle report, if any cycle has run
func (t *Tracker) LastReport() (models.CycleReport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return models.CycleReport{}, false
	}
	return *t.last, true
}

// Keywords returns the keywords postings are matched against
func (t *Tracker) Keywords() []string {
	return t.extractor.Matcher.Keywords()
}

func blockIndex(err error) int {
	var parseErr *extraction.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Index
	}
	return -1
}
