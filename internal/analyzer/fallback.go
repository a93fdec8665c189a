package analyzer

import (
	"math"
	"strings"
)

// keywordTable holds the locale-specific word lists the fallback heuristic
// scans for. Tables are immutable configuration, selected once per client.
type keywordTable struct {
	positive  []string
	negative  []string
	complaint []string
	question  []string
	request   []string
	praise    []string
	critical  []string
	high      []string
	low       []string
}

var keywordTables = map[string]keywordTable{
	"de-AT": {
		positive:  []string{"super", "toll", "top", "danke", "freundlich", "wunderbar", "prima", "perfekt", "klasse"},
		negative:  []string{"problem", "beschwerde", "schlecht", "nicht", "fehler", "hygiene", "skandal", "sofort", "gravierend", "nie wieder"},
		complaint: []string{"beschwerde", "problem", "nicht geliefert", "zu viel verrechnet", "hygiene", "fehler"},
		question:  []string{"führt ihr", "gibt es", "wo finde", "online bestell", "wann"},
		request:   []string{"bitte liefern", "würde gern", "wünsche"},
		praise:    []string{"super", "toll", "danke", "freundlich", "top", "prima"},
		critical: []string{
			"hygiene", "gesundheit", "lebensmittel", "vergiftung", "verletzung", "unfall",
			"gefährlich", "sofortiger", "dringend", "notfall", "rohes fleisch", "handschuhe",
			"sofort", "kritisch", "skandal",
		},
		high: []string{"schnell", "bald", "wichtig", "unverzüglich"},
		low:  []string{"wenn möglich", "gelegentlich"},
	},
	"en": {
		positive:  []string{"great", "awesome", "thanks", "thank you", "friendly", "wonderful", "perfect", "excellent", "love"},
		negative:  []string{"problem", "complaint", "bad", "not", "error", "hygiene", "scandal", "immediately", "terrible", "never again"},
		complaint: []string{"complaint", "problem", "not delivered", "overcharged", "hygiene", "error", "broken"},
		question:  []string{"do you", "is there", "where can", "how do", "when"},
		request:   []string{"please deliver", "would like", "could you", "wish"},
		praise:    []string{"great", "awesome", "thanks", "friendly", "excellent", "perfect"},
		critical: []string{
			"hygiene", "health", "food safety", "poisoning", "injury", "accident",
			"dangerous", "urgent", "emergency", "raw meat", "gloves", "immediately", "critical", "scandal",
		},
		high: []string{"quickly", "soon", "important", "asap"},
		low:  []string{"if possible", "occasionally", "no rush"},
	},
}

const fallbackSummaryLimit = 120

// fallbackAnalysis is the deterministic keyword heuristic used when the
// external analysis service is unavailable or returns garbage.
func fallbackAnalysis(content, locale string) Result {
	table, ok := keywordTables[locale]
	if !ok {
		table = keywordTables["en"]
	}

	c := strings.ToLower(content)

	pos := countContained(c, table.positive)
	neg := countContained(c, table.negative)
	sentiment := math.Min(1.0, float64(pos)*0.3) - math.Min(1.0, float64(neg)*0.3)
	sentiment = math.Round(sentiment*100) / 100

	var category string
	switch {
	case containsAny(c, table.complaint):
		category = CategoryComplaint
	case containsAny(c, table.question):
		category = CategoryQuestion
	case containsAny(c, table.request):
		category = CategoryRequest
	case containsAny(c, table.praise):
		category = CategoryPraise
	default:
		category = CategorySuggestion
	}

	var urgency string
	switch {
	case containsAny(c, table.critical):
		urgency = UrgencyCritical
	case containsAny(c, table.high):
		urgency = UrgencyHigh
	case containsAny(c, table.low):
		urgency = UrgencyLow
	default:
		urgency = UrgencyMedium
	}

	summary := content
	if runes := []rune(summary); len(runes) > fallbackSummaryLimit {
		summary = string(runes[:fallbackSummaryLimit]) + "…"
	}

	return Result{
		Category:  category,
		Urgency:   urgency,
		Sentiment: sentiment,
		Summary:   summary,
		Fallback:  true,
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func countContained(text string, words []string) int {
	count := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			count++
		}
	}
	return count
}
