package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"sensorpulse/internal/types"
)

// FallbackConfidence is the confidence attached to an LLM answer that could
// not be parsed as structured JSON.
const FallbackConfidence = 0.3

// maxFallbackSummary bounds the length of a plain-text fallback summary.
const maxFallbackSummary = 280

// LLMConfig configures the insight generation backend.
type LLMConfig struct {
	Endpoint    string
	APIKey      types.SecretString
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Logger      *slog.Logger
}

// GenerationRequest is the body POSTed to the backend.
type GenerationRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// generationResponse accepts the common shapes of text-generation APIs.
type generationResponse struct {
	Text     string `json:"text"`
	Response string `json:"response"`
	Choices  []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

func (r generationResponse) text() string {
	switch {
	case r.Text != "":
		return r.Text
	case r.Response != "":
		return r.Response
	case len(r.Choices) > 0:
		return r.Choices[0].Text
	}
	return ""
}

// InsightSummary is the structured answer extracted from generated text.
type InsightSummary struct {
	Activity        string   `json:"activity"`
	Patterns        []string `json:"patterns"`
	Recommendations []string `json:"recommendations"`
	Confidence      float64  `json:"confidence"`
	// Fallback is set when the text held no usable JSON object and Activity
	// carries a truncated plain-text summary instead.
	Fallback bool `json:"-"`
}

// LLMClient calls a text-generation endpoint through BaseClient.
type LLMClient struct {
	base   *BaseClient
	cfg    LLMConfig
	logger *slog.Logger
}

// NewLLMClient validates cfg and creates a client. opts are passed to the
// underlying BaseClient.
func NewLLMClient(httpClient *http.Client, cfg LLMConfig, opts ...BaseClientOption) (*LLMClient, error) {
	if cfg.Endpoint == "" {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "llm endpoint is required", nil)
	}
	if cfg.Model == "" {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "llm model is required", nil)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts = append([]BaseClientOption{WithFailureCode(types.ErrCodeUpstreamLLM), WithLogger(logger)}, opts...)
	base := NewBaseClient(httpClient, "llm", DefaultRetryPolicy(), "SensorPulse/1.0", opts...)

	return &LLMClient{base: base, cfg: cfg, logger: logger}, nil
}

// Generate sends prompt and returns the generated text.
func (c *LLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(GenerationRequest{
		Model:       c.cfg.Model,
		Prompt:      prompt,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode generation request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create generation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey.Unmask())
	}

	start := time.Now()
	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WarnContext(ctx, "llm backend rejected request",
			"status", resp.StatusCode, "body", string(snippet))
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamLLM,
			fmt.Sprintf("llm backend returned %d", resp.StatusCode), nil,
			map[string]any{"status": resp.StatusCode})
	}

	var gr generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamMalformedResponse, "failed to decode llm response", err)
	}

	c.logger.DebugContext(ctx, "llm generation complete", "latency", time.Since(start))
	return gr.text(), nil
}

// Summarize builds the context document for the two windows, generates a
// completion and parses it. Transport failures are returned; unparseable
// text is not an error and yields a fallback summary.
func (c *LLMClient) Summarize(ctx context.Context, recent, previous []types.FeatureSummary) (InsightSummary, error) {
	text, err := c.Generate(ctx, BuildPrompt(recent, previous))
	if err != nil {
		return InsightSummary{}, err
	}
	return ParseInsightText(text), nil
}

const promptInstructions = `You analyze smartphone sensor statistics for one person.
Each sensor section lists feature statistics for the recent window and the previous window.
Respond with a single JSON object with the keys "activity" (string), "patterns" (array of strings),
"recommendations" (array of strings) and "confidence" (number between 0 and 1).`

// BuildPrompt returns the instructions followed by the context document.
func BuildPrompt(recent, previous []types.FeatureSummary) string {
	return promptInstructions + "\n\n" + BuildContextDocument(recent, previous)
}

// BuildContextDocument renders one <kind>...</kind> section per sensor kind
// present in either window, in AllSensorKinds order.
func BuildContextDocument(recent, previous []types.FeatureSummary) string {
	byKind := func(list []types.FeatureSummary) map[types.SensorKind]types.FeatureSummary {
		m := make(map[types.SensorKind]types.FeatureSummary, len(list))
		for _, s := range list {
			m[s.Kind] = s
		}
		return m
	}
	r, p := byKind(recent), byKind(previous)

	var b strings.Builder
	for _, kind := range types.AllSensorKinds {
		rs, hasRecent := r[kind]
		ps, hasPrevious := p[kind]
		if !hasRecent && !hasPrevious {
			continue
		}
		fmt.Fprintf(&b, "<%s>\n", kind)
		if hasRecent {
			writeSummaryLine(&b, "recent", rs)
		}
		if hasPrevious {
			writeSummaryLine(&b, "previous", ps)
		}
		fmt.Fprintf(&b, "</%s>\n", kind)
	}
	return b.String()
}

func writeSummaryLine(b *strings.Builder, label string, s types.FeatureSummary) {
	f := s.Features
	fmt.Fprintf(b, "%s: n=%d mean=%.3f min=%.3f max=%.3f std=%.3f trend=%s(%.1f%%)",
		label, f.SampleCount, f.Mean, f.Min, f.Max, f.StdDev, f.Trend.Direction, f.Trend.PercentChange)
	if f.Skewness != nil {
		fmt.Fprintf(b, " skew=%.3f", *f.Skewness)
	}
	fmt.Fprintf(b, " from=%s to=%s\n", s.WindowStart.UTC().Format(time.RFC3339), s.WindowEnd.UTC().Format(time.RFC3339))
}

// ParseInsightText extracts the outermost JSON object from text. When none
// parses, the trimmed text becomes a fallback summary with
// FallbackConfidence.
func ParseInsightText(text string) InsightSummary {
	trimmed := strings.TrimSpace(text)
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start >= 0 && end > start {
		var s InsightSummary
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &s); err == nil && s.Activity != "" {
			s.Confidence = max(0, min(1, s.Confidence))
			s.Patterns = slices.DeleteFunc(s.Patterns, func(v string) bool { return strings.TrimSpace(v) == "" })
			s.Recommendations = slices.DeleteFunc(s.Recommendations, func(v string) bool { return strings.TrimSpace(v) == "" })
			return s
		}
	}

	summary := trimmed
	if r := []rune(summary); len(r) > maxFallbackSummary {
		summary = strings.TrimSpace(string(r[:maxFallbackSummary])) + "..."
	}
	return InsightSummary{
		Activity:   summary,
		Confidence: FallbackConfidence,
		Fallback:   true,
	}
}
