package analyzer

// Categories assigned to a signal.
const (
	CategoryComplaint  = "complaint"
	CategoryRequest    = "request"
	CategoryQuestion   = "question"
	CategoryPraise     = "praise"
	CategorySuggestion = "suggestion"
	CategoryUnknown    = "unknown"
)

// Urgency levels, lowest to highest.
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

// Result is the structured outcome of analyzing anonymized content.
// Sentiment is normalized to [-1.0, 1.0]. Fallback reports whether the
// local heuristic produced the result instead of the external service.
type Result struct {
	Category  string  `json:"category"`
	Urgency   string  `json:"urgency"`
	Sentiment float64 `json:"sentiment"`
	Summary   string  `json:"summary"`
	Fallback  bool    `json:"-"`
}

// sentimentLabels maps label-form sentiment values to floats.
var sentimentLabels = map[string]float64{
	"very_positive": 0.9, "sehr_positiv": 0.9,
	"positive": 0.6, "positiv": 0.6,
	"neutral":  0.0,
	"negative": -0.6, "negativ": -0.6,
	"very_negative": -0.9, "sehr_negativ": -0.9,
}

var validCategories = map[string]bool{
	CategoryComplaint:  true,
	CategoryRequest:    true,
	CategoryQuestion:   true,
	CategoryPraise:     true,
	CategorySuggestion: true,
}

var validUrgencies = map[string]bool{
	UrgencyLow:      true,
	UrgencyMedium:   true,
	UrgencyHigh:     true,
	UrgencyCritical: true,
}
