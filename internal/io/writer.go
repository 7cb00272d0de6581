package io

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

// ResultWriter archives notified postings as one JSON file per day
type ResultWriter struct {
	Config *config.IOConfig

	mu  sync.Mutex
	now func() time.Time
}

// NewResultWriter creates a new result writer
func NewResultWriter(config *config.IOConfig) *ResultWriter {
	return &ResultWriter{
		Config: config,
		now:    time.Now,
	}
}

// Enabled reports whether an output directory is configured
func (w *ResultWriter) Enabled() bool {
	return w != nil && w.Config != nil && w.Config.OutputDir != ""
}

// PathFor returns the archive file for the day of t
func (w *ResultWriter) PathFor(t time.Time) string {
	return filepath.Join(w.Config.OutputDir, "postings-"+t.Format("2006-01-02")+".json")
}

// Append adds postings to today's file, keeping what is already there
func (w *ResultWriter) Append(postings []models.Posting) error {
	if !w.Enabled() || len(postings) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.Config.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	path := w.PathFor(w.now())
	existing, err := readPostings(path)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(append(existing, postings...), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readPostings(path string) ([]models.Posting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var postings []models.Posting
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return postings, nil
}
