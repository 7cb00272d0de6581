package extraction

import (
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

// ParseError reports a listing block that could not be turned into a posting.
// Index is the block's position on the page, -1 for a page-level failure.
type ParseError struct {
	Index  int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse block %d: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse block %d: %s", e.Index, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Extractor splits a listing page into postings and keeps the keyword matches
type Extractor struct {
	Config  *config.ExtractionConfig
	Matcher *Matcher
	base    *url.URL
	source  string
}

// NewExtractor creates a new posting extractor. Relative links resolve against baseURL.
func NewExtractor(config *config.ExtractionConfig, baseURL string, keywords []string) *Extractor {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		base = nil
	}
	return &Extractor{
		Config:  config,
		Matcher: NewMatcher(keywords),
		base:    base,
		source:  baseURL,
	}
}

// Postings parses html and yields every block that matches a keyword.
// Each call re-parses the page. Broken blocks yield a *ParseError and the
// sequence moves on to the next block.
func (e *Extractor) Postings(html string) iter.Seq2[models.Posting, error] {
	return func(yield func(models.Posting, error) bool) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			yield(models.Posting{}, &ParseError{Index: -1, Reason: "invalid document", Err: err})
			return
		}

		blocks := doc.Find(e.Config.BlockSelector)
		seen := make(map[string]struct{})

		for i := range blocks.Length() {
			block := blocks.Eq(i)
			// Icon and image links carry no text of their own and are not postings
			if e.Config.TitleSelector == "" && collapseSpace(block.Text()) == "" {
				continue
			}

			posting, err := e.buildPosting(i, block)
			if err != nil {
				if !yield(models.Posting{}, err) {
					return
				}
				continue
			}

			keywords := e.Matcher.Match(posting.Title + " " + posting.Body)
			if len(keywords) == 0 {
				continue
			}
			// The same posting linked twice on one page is yielded once
			key := posting.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			posting.Keyword = keywords[0]
			posting.Keywords = keywords
			text := posting.Title + "\n" + posting.Body
			posting.Email = ExtractEmail(text)
			posting.Phone = ExtractPhone(text)

			if !yield(posting, nil) {
				return
			}
		}
	}
}

// buildPosting pulls title, link and body out of one block
func (e *Extractor) buildPosting(index int, block *goquery.Selection) (posting models.Posting, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ParseError{Index: index, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	title := collapseSpace(e.selectText(block, e.Config.TitleSelector))
	if title == "" {
		return models.Posting{}, &ParseError{Index: index, Reason: "missing title"}
	}

	href, ok := e.selectHref(block)
	if !ok {
		return models.Posting{}, &ParseError{Index: index, Reason: "missing link"}
	}
	link, err := e.resolve(href)
	if err != nil {
		return models.Posting{}, &ParseError{Index: index, Reason: "invalid link " + href, Err: err}
	}

	var body string
	if e.Config.BodySelector != "" {
		body = collapseSpace(block.Find(e.Config.BodySelector).Text())
	} else {
		// No body element configured: a bare link takes its parent's text, a
		// container its own, minus the title either way
		scope := block
		if goquery.NodeName(block) == "a" {
			scope = block.Parent()
		}
		body = strings.TrimSpace(strings.Replace(collapseSpace(scope.Text()), title, "", 1))
	}

	return models.Posting{
		Title:  title,
		Body:   truncate(body, e.Config.MaxBodyLength),
		URL:    link,
		Source: e.source,
	}, nil
}

func (e *Extractor) selectText(block *goquery.Selection, selector string) string {
	if selector == "" {
		return block.Text()
	}
	return block.Find(selector).First().Text()
}

func (e *Extractor) selectHref(block *goquery.Selection) (string, bool) {
	var href string
	var ok bool
	switch {
	case e.Config.LinkSelector != "":
		href, ok = block.Find(e.Config.LinkSelector).First().Attr("href")
	case goquery.NodeName(block) == "a":
		href, ok = block.Attr("href")
	default:
		href, ok = block.Find("a[href]").First().Attr("href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	return href, true
}

func (e *Extractor) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if e.base == nil {
		return "", fmt.Errorf("relative link without base URL")
	}
	return e.base.ResolveReference(ref).String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}
