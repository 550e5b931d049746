package news

import (
	"context"
	"sync"
	"time"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/types"
)

// Service fronts the scraper with a per-symbol cache so one symbol is not
// re-scraped on every polling cycle.
type Service struct {
	scraper      *Scraper
	maxHeadlines int
	enabled      bool

	mu    sync.RWMutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	headlines []types.Headline
	fetchedAt time.Time
}

func NewService(cfg *store.Config) *Service {
	timeout := time.Duration(cfg.News.TimeoutSeconds) * time.Second
	return &Service{
		scraper:      NewScraper(timeout),
		maxHeadlines: cfg.News.MaxHeadlines,
		enabled:      cfg.News.Enabled,
		cache:        make(map[string]cacheEntry),
		ttl:          time.Hour,
	}
}

// Fetch returns headlines for symbol, serving from cache when fresh.
func (s *Service) Fetch(ctx context.Context, symbol string) ([]types.Headline, error) {
	if !s.enabled {
		return nil, nil
	}

	s.mu.RLock()
	entry, ok := s.cache[symbol]
	s.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < s.ttl {
		logger.Debug(ctx, "News cache hit", "symbol", symbol, "headlines", len(entry.headlines))
		return entry.headlines, nil
	}

	headlines, err := s.scraper.Scrape(ctx, symbol, s.maxHeadlines)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[symbol] = cacheEntry{headlines: headlines, fetchedAt: time.Now()}
	s.mu.Unlock()
	return headlines, nil
}
