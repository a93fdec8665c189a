package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
)

// Client analyzes anonymized content through an Ollama-style completion
// service. Only anonymized text ever crosses this boundary. Every failure
// mode (unreachable service, timeout, non-200, unparseable output) is
// recovered locally with the keyword fallback, so Analyze never fails the
// request.
type Client struct {
	cfg    config.AnalyzerConfig
	http   *http.Client
	logger *logger.Logger
}

// NewClient creates an analysis client with the configured timeout bound
// on every upstream call.
func NewClient(cfg config.AnalyzerConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// rawResult tolerates sentiment arriving as a label or a number.
type rawResult struct {
	Category  string          `json:"category"`
	Urgency   string          `json:"urgency"`
	Sentiment json.RawMessage `json:"sentiment"`
	Summary   string          `json:"summary"`
}

// Analyze classifies anonymized content, returning the external service's
// result when usable and the deterministic fallback otherwise.
func (c *Client) Analyze(ctx context.Context, anonymized string) Result {
	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: c.buildPrompt(anonymized),
		Stream: false,
		Options: map[string]any{
			"temperature": 0.05,
			"top_p":       0.9,
		},
	})
	if err != nil {
		c.logger.Error("Failed to marshal analysis request", zap.Error(err))
		return fallbackAnalysis(anonymized, c.cfg.Locale)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		c.logger.Error("Failed to build analysis request", zap.Error(err))
		return fallbackAnalysis(anonymized, c.cfg.Locale)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Analysis service unreachable, using fallback", zap.Error(err))
		return fallbackAnalysis(anonymized, c.cfg.Locale)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Analysis service error, using fallback",
			zap.Int("status_code", resp.StatusCode))
		return fallbackAnalysis(anonymized, c.cfg.Locale)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		c.logger.Warn("Failed to decode analysis response, using fallback", zap.Error(err))
		return fallbackAnalysis(anonymized, c.cfg.Locale)
	}

	result, ok := c.parseCompletion(gen.Response)
	if !ok {
		c.logger.Warn("No usable JSON in analysis completion, using fallback")
		return fallbackAnalysis(anonymized, c.cfg.Locale)
	}
	return result
}

// Healthy reports whether the analysis service responds.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// parseCompletion extracts the first JSON object from the raw completion
// and normalizes it.
func (c *Client) parseCompletion(raw string) (Result, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Result{}, false
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return Result{}, false
	}

	category := strings.ToLower(strings.TrimSpace(parsed.Category))
	if !validCategories[category] {
		category = CategoryUnknown
	}

	urgency := strings.ToLower(strings.TrimSpace(parsed.Urgency))
	if !validUrgencies[urgency] {
		urgency = UrgencyMedium
	}

	return Result{
		Category:  category,
		Urgency:   urgency,
		Sentiment: normalizeSentiment(parsed.Sentiment),
		Summary:   parsed.Summary,
	}, true
}

// normalizeSentiment converts a label or numeric sentiment to a float
// clamped to [-1.0, 1.0]. Unrecognized values map to neutral.
func normalizeSentiment(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return clampSentiment(num)
	}

	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return 0
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if v, ok := sentimentLabels[label]; ok {
		return v
	}
	if v, err := strconv.ParseFloat(label, 64); err == nil {
		return clampSentiment(v)
	}
	return 0
}

func clampSentiment(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// buildPrompt renders the locale-specific classification prompt. The
// response contract (JSON-only, fixed fields) matches parseCompletion.
func (c *Client) buildPrompt(anonymized string) string {
	if c.cfg.Locale == "de-AT" {
		return fmt.Sprintf(`Analysiere dieses Kunden-Feedback auf Deutsch und antworte NUR mit validem JSON.

Feedback:
%s

Antworte AUSSCHLIESSLICH mit diesem JSON-Format (keine weiteren Texte):
{
  "category": "complaint|request|question|praise|suggestion",
  "urgency": "low|medium|high|critical",
  "sentiment": <Zahl zwischen -1.0 (sehr negativ) und +1.0 (sehr positiv)>,
  "summary": "<Zusammenfassung in max. 40 Wörtern auf Deutsch>"
}

Hinweise:
- complaint = Beschwerde/Problem
- request = Wunsch/Anfrage
- question = Frage/Nachfrage
- praise = Lob/positives Feedback
- critical = sofortiger Handlungsbedarf (Hygiene, Gesundheit, Lebensmittelsicherheit, Verletzung, Unfall, Vergiftung, Notfall)
- Sentiment: -1.0 = sehr wütend, 0.0 = neutral, +1.0 = sehr begeistert`, anonymized)
	}

	return fmt.Sprintf(`Analyze this customer feedback and reply ONLY with valid JSON.

Feedback:
%s

Reply EXCLUSIVELY with this JSON format (no other text):
{
  "category": "complaint|request|question|praise|suggestion",
  "urgency": "low|medium|high|critical",
  "sentiment": <number between -1.0 (very negative) and +1.0 (very positive)>,
  "summary": "<summary in at most 40 words>"
}

Notes:
- critical = immediate action needed (hygiene, health, food safety, injury, accident, poisoning, emergency)`, anonymized)
}
