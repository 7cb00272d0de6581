package config

import (
	"bufio"
	"os"
	"strings"
	"time"
)

// Dedup backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const (
	DefaultListingURL = "https://www.expatriates.com/classifieds/saudi-arabia/"
	DefaultBaseURL    = "https://www.expatriates.com"
	DefaultInterval   = 600 * time.Second
)

// DefaultUserAgents provides a list of common user agents
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// CreateDefault creates a configuration holding every default value.
// The webhook URL and keywords have no default.
func CreateDefault() *AppConfig {
	return &AppConfig{
		Scraper: ScraperConfig{
			ListingURL: DefaultListingURL,
			BaseURL:    DefaultBaseURL,
			Timeout:    15 * time.Second,
			MaxRetries: 0,
			RetryDelay: 2 * time.Second,
			UserAgents: DefaultUserAgents,
		},
		Extraction: ExtractionConfig{
			BlockSelector: "a[href]",
			MaxBodyLength: 300,
		},
		Notifier: NotifierConfig{
			Username:    "Job Tracker Bot",
			AvatarURL:   "https://cdn-icons-png.flaticon.com/512/3082/3082383.png",
			Timeout:     10 * time.Second,
			RateLimit:   time.Second,
			MaxPerCycle: 15,
			SendStartup: true,
		},
		Schedule: ScheduleConfig{
			Interval:   DefaultInterval,
			RunOnStart: true,
		},
		Dedup: DedupConfig{
			Backend:   BackendMemory,
			FilePath:  "seen_jobs.json",
			KeyPrefix: "notifier:seen:",
		},
		Browser: BrowserConfig{
			Enabled:   false,
			Headless:  true,
			UserAgent: DefaultUserAgents[0],
			WaitTime:  3 * time.Second,
		},
		Server: ServerConfig{
			Enabled: true,
			Address: ":10000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// readKeywordsFile reads keywords from a file, one per line.
// Blank lines and lines starting with # are ignored.
func readKeywordsFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var keywords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			keywords = append(keywords, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return keywords, nil
}
