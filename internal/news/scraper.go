package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/types"
)

// Scraper pulls headlines for a symbol from a set of financial news sites.
type Scraper struct {
	sources []Source
	timeout time.Duration
}

// Source describes one news site and the selectors for its listing page.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // contains {symbol}
	Selectors  Selectors
	RateLimit  time.Duration
}

// Selectors are the CSS paths for extracting headline data from a listing.
type Selectors struct {
	Container string
	Title     string
	URL       string
	Summary   string
}

func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{sources: defaultSources(), timeout: timeout}
}

func defaultSources() []Source {
	return []Source{
		{
			Name:       "MoneyControl",
			BaseURL:    "https://www.moneycontrol.com",
			SearchPath: "/news/tags/{symbol}.html",
			Selectors: Selectors{
				Container: "li.clearfix",
				Title:     "h2 a, h3 a",
				URL:       "h2 a, h3 a",
				Summary:   "p",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "EconomicTimes",
			BaseURL:    "https://economictimes.indiatimes.com",
			SearchPath: "/topic/{symbol}",
			Selectors: Selectors{
				Container: "div.story-box",
				Title:     "a",
				URL:       "a",
				Summary:   "p",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "BusinessStandard",
			BaseURL:    "https://www.business-standard.com",
			SearchPath: "/search?q={symbol}",
			Selectors: Selectors{
				Container: "div.listing-txt",
				Title:     "a.Hdng",
				URL:       "a.Hdng",
				Summary:   "p",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// Scrape fetches up to maxHeadlines headlines for symbol across all sources.
// A source failing is logged and skipped, never fatal.
func (s *Scraper) Scrape(ctx context.Context, symbol string, maxHeadlines int) ([]types.Headline, error) {
	logger.Info(ctx, "Starting news scrape", "symbol", symbol, "sources", len(s.sources))

	perSource := maxHeadlines / len(s.sources)
	if perSource < 1 {
		perSource = 1
	}

	var all []types.Headline
	for _, source := range s.sources {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		headlines, err := s.scrapeSource(ctx, source, symbol, perSource)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", source.Name, "symbol", symbol)
			continue
		}
		all = append(all, headlines...)
		time.Sleep(source.RateLimit)
	}

	if len(all) > maxHeadlines {
		all = all[:maxHeadlines]
	}
	logger.Info(ctx, "News scrape completed", "symbol", symbol, "headlines", len(all))
	return all, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, source Source, symbol string, max int) ([]types.Headline, error) {
	var headlines []types.Headline

	c := colly.NewCollector(
		colly.AllowedDomains(domainOf(source.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(source.Selectors.Container, func(e *colly.HTMLElement) {
		if len(headlines) >= max {
			return
		}
		if h, ok := extractHeadline(e.DOM, source); ok {
			headlines = append(headlines, h)
		}
	})

	searchURL := source.BaseURL + strings.ReplaceAll(source.SearchPath, "{symbol}", url.QueryEscape(symbol))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", searchURL, err)
	}
	c.Wait()
	return headlines, nil
}

// extractHeadline reads one listing item. Items without a title or link are
// ads and navigation chrome; skip them.
func extractHeadline(sel *goquery.Selection, source Source) (types.Headline, bool) {
	title := strings.TrimSpace(sel.Find(source.Selectors.Title).First().Text())
	if title == "" {
		return types.Headline{}, false
	}
	href, _ := sel.Find(source.Selectors.URL).First().Attr("href")
	if href == "" {
		return types.Headline{}, false
	}
	if strings.HasPrefix(href, "/") {
		href = source.BaseURL + href
	}
	summary := strings.TrimSpace(sel.Find(source.Selectors.Summary).First().Text())

	return types.Headline{
		Source:  source.Name,
		Title:   title,
		URL:     href,
		Summary: summary,
	}, true
}

func domainOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}
