package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode        string   `yaml:"mode"` // PAPER or LIVE
	PollSeconds int      `yaml:"poll_seconds"`
	Exchange    string   `yaml:"exchange"`
	Universe    []string `yaml:"universe"`

	Portfolio struct {
		Name           string  `yaml:"name"`
		InitialBalance float64 `yaml:"initial_balance"`
	} `yaml:"portfolio"`

	Fees struct {
		BrokeragePct float64 `yaml:"brokerage_pct"` // percent of gross trade value
	} `yaml:"fees"`

	Sizing struct {
		PositionSizePct float64 `yaml:"position_size_pct"`
		MaxPositions    int     `yaml:"max_positions"`
	} `yaml:"sizing"`

	Risk struct {
		StopLossPct    float64 `yaml:"stop_loss_pct"`
		TakeProfitPct  float64 `yaml:"take_profit_pct"`
		DailyLossLimit float64 `yaml:"daily_loss_limit"` // 0 disables the check
	} `yaml:"risk"`

	MarketHours struct {
		Enabled      bool   `yaml:"enabled"`
		Open         string `yaml:"open"`  // "09:15"
		Close        string `yaml:"close"` // "15:30"
		WeekdaysOnly bool   `yaml:"weekdays_only"`
	} `yaml:"market_hours"`

	Signals struct {
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		MaxHoldingHours     int     `yaml:"max_holding_hours"`
		ExitExpiryMinutes   int     `yaml:"exit_expiry_minutes"`
	} `yaml:"signals"`

	LLM struct {
		Provider    string  `yaml:"provider"` // OPENAI or NOOP
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
	} `yaml:"llm"`

	News struct {
		Enabled        bool `yaml:"enabled"`
		MaxHeadlines   int  `yaml:"max_headlines"`
		TimeoutSeconds int  `yaml:"timeout_seconds"`
	} `yaml:"news"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Monitor struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"monitor"`
}

func (c *Config) Validate() error {
	if c.Mode != "PAPER" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'PAPER' or 'LIVE'", c.Mode)
	}
	if len(c.Universe) == 0 {
		return errors.New("universe cannot be empty")
	}
	if c.Portfolio.InitialBalance <= 0 {
		return fmt.Errorf("portfolio.initial_balance must be positive, got %.2f", c.Portfolio.InitialBalance)
	}
	if c.Sizing.PositionSizePct <= 0 || c.Sizing.PositionSizePct > 100 {
		return fmt.Errorf("sizing.position_size_pct must be between 0-100, got %.2f", c.Sizing.PositionSizePct)
	}
	if c.Fees.BrokeragePct < 0 || c.Fees.BrokeragePct > 5 {
		return fmt.Errorf("fees.brokerage_pct must be between 0-5, got %.4f", c.Fees.BrokeragePct)
	}
	if c.Signals.ConfidenceThreshold < 0 || c.Signals.ConfidenceThreshold > 100 {
		return fmt.Errorf("signals.confidence_threshold must be between 0-100, got %.2f", c.Signals.ConfidenceThreshold)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.PollSeconds == 0 {
		c.PollSeconds = 60
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Portfolio.Name == "" {
		c.Portfolio.Name = "Default Portfolio"
	}
	if c.Portfolio.InitialBalance == 0 {
		c.Portfolio.InitialBalance = 50000
	}
	if c.Fees.BrokeragePct == 0 {
		c.Fees.BrokeragePct = 0.03
	}
	if c.Sizing.PositionSizePct == 0 {
		c.Sizing.PositionSizePct = 10
	}
	if c.Sizing.MaxPositions == 0 {
		c.Sizing.MaxPositions = 5
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 2
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 5
	}
	if c.MarketHours.Open == "" {
		c.MarketHours.Open = "09:15"
	}
	if c.MarketHours.Close == "" {
		c.MarketHours.Close = "15:30"
	}
	if c.Signals.ConfidenceThreshold == 0 {
		c.Signals.ConfidenceThreshold = 75
	}
	if c.Signals.MaxHoldingHours == 0 {
		c.Signals.MaxHoldingHours = 24
	}
	if c.Signals.ExitExpiryMinutes == 0 {
		c.Signals.ExitExpiryMinutes = 60
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 500
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 6
	}
	if c.News.TimeoutSeconds == 0 {
		c.News.TimeoutSeconds = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/trader.db"
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = ":8085"
	}
}
