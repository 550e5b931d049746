package scheduler

import (
	"fmt"
	"time"

	"algo-trading-bot/internal/store"
)

// marketClock answers whether the exchange is open at a given instant.
// Indian equities trade 09:15-15:30 IST on weekdays; both bounds come from
// config.
type marketClock struct {
	enabled      bool
	weekdaysOnly bool
	open, close  int // minutes since midnight, exchange-local
	loc          *time.Location
}

func newMarketClock(cfg *store.Config) (*marketClock, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange timezone: %w", err)
	}
	open, err := parseClock(cfg.MarketHours.Open)
	if err != nil {
		return nil, fmt.Errorf("bad market open %q: %w", cfg.MarketHours.Open, err)
	}
	cls, err := parseClock(cfg.MarketHours.Close)
	if err != nil {
		return nil, fmt.Errorf("bad market close %q: %w", cfg.MarketHours.Close, err)
	}
	return &marketClock{
		enabled:      cfg.MarketHours.Enabled,
		weekdaysOnly: cfg.MarketHours.WeekdaysOnly,
		open:         open,
		close:        cls,
		loc:          loc,
	}, nil
}

// IsOpen reports whether trading should run at now. A disabled clock is
// always open, which paper setups use for after-hours testing.
func (m *marketClock) IsOpen(now time.Time) bool {
	if !m.enabled {
		return true
	}
	local := now.In(m.loc)
	if m.weekdaysOnly {
		wd := local.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= m.open && minutes <= m.close
}

// startOfDay returns midnight of now in exchange-local time, used as the
// window for the daily loss limit.
func (m *marketClock) startOfDay(now time.Time) time.Time {
	local := now.In(m.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.loc)
}

func parseClock(s string) (int, error) {
	var h, min int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &min); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return h*60 + min, nil
}
