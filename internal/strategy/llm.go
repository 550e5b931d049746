package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"algo-trading-bot/internal/logger"
	"algo-trading-bot/internal/store"
	"algo-trading-bot/internal/trace"
	"algo-trading-bot/internal/types"
)

// LLMDecider calls an OpenAI-compatible chat-completions endpoint and parses
// the reply into a trade advice.
type LLMDecider struct {
	cfg      *store.Config
	endpoint string
	client   *http.Client
}

func NewLLMDecider(cfg *store.Config) *LLMDecider {
	endpoint := strings.TrimRight(cfg.LLM.BaseURL, "/") + "/chat/completions"
	return &LLMDecider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 45 * time.Second},
	}
}

func (d *LLMDecider) Decide(ctx context.Context, symbol string, quote types.Quote, headlines []types.Headline) (types.Advice, error) {
	logger.Debug(ctx, "LLM decider called", "symbol", symbol, "model", d.cfg.LLM.Model, "headlines", len(headlines))

	ctx, span := trace.StartSpan(ctx, "llm-decide")
	defer span.End()

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		err := errors.New("LLM_API_KEY missing")
		logger.ErrorWithErr(ctx, "LLM API key not configured", err)
		return types.Advice{}, err
	}

	system := d.cfg.LLM.System
	if system == "" {
		system = "You are a disciplined equities analyst. Output STRICT JSON with keys recommendation (BUY/SELL/HOLD), sentiment (positive/negative/neutral), confidence (0-100) and reason."
	}

	state := map[string]any{
		"symbol":      symbol,
		"ltp":         quote.LTP.String(),
		"observed_at": quote.ObservedAt,
		"headlines":   headlines,
	}
	stateB, _ := json.Marshal(state)
	user := fmt.Sprintf("State:%s\n\nRespond ONLY with compact JSON.", string(stateB))

	reqBody := map[string]any{
		"model": d.cfg.LLM.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"max_tokens":  d.cfg.LLM.MaxTokens,
		"temperature": d.cfg.LLM.Temperature,
	}

	bb, _ := json.Marshal(reqBody)
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, "POST", d.endpoint, bytes.NewReader(bb))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		logger.ErrorWithErr(ctx, "LLM API request failed", err, "symbol", symbol, "latency_ms", latency.Milliseconds())
		return types.Advice{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("llm http %d: %s", resp.StatusCode, string(body))
		logger.ErrorWithErr(ctx, "LLM API returned error status", err, "symbol", symbol)
		return types.Advice{}, err
	}

	respBytes, _ := io.ReadAll(resp.Body)
	logger.Debug(ctx, "LLM response received",
		"symbol", symbol,
		"status_code", resp.StatusCode,
		"latency_ms", latency.Milliseconds(),
		"response_length", len(respBytes),
	)

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	content := string(respBytes)
	if err := json.Unmarshal(respBytes, &cc); err == nil && len(cc.Choices) > 0 {
		content = cc.Choices[0].Message.Content
	}

	advice, err := parseAdvice(content)
	if err != nil {
		// An unparseable reply degrades to HOLD rather than failing the cycle.
		logger.Warn(ctx, "LLM reply not parseable, holding", "symbol", symbol, "error", err.Error())
		return types.Advice{Recommendation: "HOLD", Sentiment: "neutral", Reason: "unparseable model reply"}, nil
	}
	logger.Info(ctx, "LLM advice",
		"symbol", symbol,
		"recommendation", advice.Recommendation,
		"confidence", advice.Confidence,
	)
	return advice, nil
}

// parseAdvice extracts the first JSON object from content and normalizes it.
func parseAdvice(content string) (types.Advice, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return types.Advice{}, errors.New("no JSON object in reply")
	}

	var a types.Advice
	if err := json.Unmarshal([]byte(content[start:end+1]), &a); err != nil {
		return types.Advice{}, err
	}

	a.Recommendation = strings.ToUpper(strings.TrimSpace(a.Recommendation))
	switch a.Recommendation {
	case "BUY", "SELL", "HOLD":
	default:
		return types.Advice{}, fmt.Errorf("unknown recommendation %q", a.Recommendation)
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 100 {
		a.Confidence = 100
	}
	return a, nil
}
