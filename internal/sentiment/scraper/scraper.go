package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"merlin/internal/api"
	"merlin/internal/interfaces"
	"merlin/internal/logger"
	"merlin/internal/sentiment/feed"
	"merlin/internal/types"
)

// Selectors are CSS selectors evaluated inside each item element.
type Selectors struct {
	Item      string
	Title     string
	Link      string
	Published string
}

type Config struct {
	Name      string
	URL       string
	Selectors Selectors
	Limit     int
	Timeout   time.Duration
}

// Source scrapes headlines from a listing page.
type Source struct {
	cfg Config
}

var _ interfaces.SentimentSource = (*Source)(nil)

func New(cfg Config) *Source {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Source{cfg: cfg}
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) FetchDocuments(ctx context.Context, since, until time.Time) ([]types.Document, error) {
	headers := api.BrowserHeaders()
	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
		colly.UserAgent(headers["User-Agent"]),
	)
	c.SetRequestTimeout(s.cfg.Timeout)
	// news sites commonly reject requests that do not look like a browser
	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	var (
		mu       sync.Mutex
		docs     []types.Document
		visitErr error
	)

	c.OnHTML(s.cfg.Selectors.Item, func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if s.cfg.Limit > 0 && len(docs) >= s.cfg.Limit {
			return
		}

		title := strings.TrimSpace(e.Text)
		if s.cfg.Selectors.Title != "" {
			title = strings.TrimSpace(e.ChildText(s.cfg.Selectors.Title))
		}
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			return
		}

		var link string
		if s.cfg.Selectors.Link != "" {
			link = e.Request.AbsoluteURL(e.ChildAttr(s.cfg.Selectors.Link, "href"))
		}

		ts := publishedAt(e.DOM, s.cfg.Selectors.Published)
		if !ts.IsZero() && (!ts.After(since) || ts.After(until)) {
			return
		}

		docs = append(docs, types.Document{
			Source:      s.cfg.Name,
			Text:        title,
			URL:         link,
			PublishedAt: ts,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		visitErr = fmt.Errorf("%s: status %d: %w", s.cfg.Name, r.StatusCode, err)
	})

	if err := c.Visit(s.cfg.URL); err != nil {
		return nil, fmt.Errorf("%s: visit %s: %w", s.cfg.Name, s.cfg.URL, err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, visitErr
	}
	logger.Debug(ctx, "Scraped headlines", "source", s.cfg.Name, "count", len(docs))
	return docs, nil
}

// publishedAt prefers a datetime attribute and falls back to the element text.
func publishedAt(item *goquery.Selection, selector string) time.Time {
	if selector == "" {
		return time.Time{}
	}
	sel := item.Find(selector).First()
	if sel.Length() == 0 {
		return time.Time{}
	}
	if dt, ok := sel.Attr("datetime"); ok {
		if ts := feed.ParseTime(dt); !ts.IsZero() {
			return ts
		}
	}
	return feed.ParseTime(sel.Text())
}
