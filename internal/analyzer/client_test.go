package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
)

func newTestClient(url string) *Client {
	return NewClient(config.AnalyzerConfig{
		URL:     url,
		Model:   "qwen2.5:3b",
		Timeout: 2 * time.Second,
		Locale:  "de-AT",
	}, logger.NewNop())
}

func generateHandler(completion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": completion})
	}
}

// TestAnalyze tests the external analysis path
func TestAnalyze(t *testing.T) {
	ctx := context.Background()

	t.Run("CleanJSON", func(t *testing.T) {
		srv := httptest.NewServer(generateHandler(
			`{"category":"complaint","urgency":"high","sentiment":-0.7,"summary":"Lieferung fehlt"}`))
		defer srv.Close()

		result := newTestClient(srv.URL).Analyze(ctx, "Die Lieferung von [alpine-marmot] fehlt.")
		if result.Category != CategoryComplaint || result.Urgency != UrgencyHigh {
			t.Errorf("Unexpected classification: %+v", result)
		}
		if result.Sentiment != -0.7 {
			t.Errorf("Expected sentiment -0.7, got %f", result.Sentiment)
		}
		if result.Fallback {
			t.Error("Service result must not be flagged as fallback")
		}
	})

	t.Run("JSONWrappedInProse", func(t *testing.T) {
		srv := httptest.NewServer(generateHandler(
			"Sure! Here is the analysis:\n{\"category\":\"praise\",\"urgency\":\"low\",\"sentiment\":0.9,\"summary\":\"Lob\"}\nHope that helps."))
		defer srv.Close()

		result := newTestClient(srv.URL).Analyze(ctx, "Alles super!")
		if result.Category != CategoryPraise {
			t.Errorf("JSON substring not extracted: %+v", result)
		}
	})

	t.Run("InvalidCategoryNormalized", func(t *testing.T) {
		srv := httptest.NewServer(generateHandler(
			`{"category":"rant","urgency":"panic","sentiment":0,"summary":""}`))
		defer srv.Close()

		result := newTestClient(srv.URL).Analyze(ctx, "Text")
		if result.Category != CategoryUnknown {
			t.Errorf("Unknown category should map to %q, got %q", CategoryUnknown, result.Category)
		}
		if result.Urgency != UrgencyMedium {
			t.Errorf("Unknown urgency should map to %q, got %q", UrgencyMedium, result.Urgency)
		}
	})

	t.Run("GarbageCompletionFallsBack", func(t *testing.T) {
		srv := httptest.NewServer(generateHandler("I cannot help with that."))
		defer srv.Close()

		result := newTestClient(srv.URL).Analyze(ctx, "Alles super, danke!")
		if !result.Fallback {
			t.Error("Garbage completion must trigger the fallback")
		}
	})

	t.Run("ServerErrorFallsBack", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		result := newTestClient(srv.URL).Analyze(ctx, "Alles super, danke!")
		if !result.Fallback {
			t.Error("HTTP 500 must trigger the fallback")
		}
	})

	t.Run("ServiceUnreachableFallsBack", func(t *testing.T) {
		result := newTestClient("http://127.0.0.1:1").Analyze(ctx, "Die Ware war defekt, Beschwerde!")
		if !result.Fallback {
			t.Error("Unreachable service must trigger the fallback")
		}
		if result.Category != CategoryComplaint {
			t.Errorf("Fallback should classify a Beschwerde as complaint, got %q", result.Category)
		}
	})
}

// TestHealthy tests the reachability probe
func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).Healthy(context.Background()); err != nil {
		t.Errorf("Healthy against a live server failed: %v", err)
	}
	if err := newTestClient("http://127.0.0.1:1").Healthy(context.Background()); err == nil {
		t.Error("Healthy against a dead endpoint should fail")
	}
}

// TestNormalizeSentiment tests label and number normalization
func TestNormalizeSentiment(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want float64
	}{
		{"Number", `-0.5`, -0.5},
		{"NumberClampedHigh", `3.2`, 1.0},
		{"NumberClampedLow", `-7`, -1.0},
		{"LabelPositive", `"positive"`, 0.6},
		{"LabelVeryNegative", `"very_negative"`, -0.9},
		{"GermanLabel", `"sehr_negativ"`, -0.9},
		{"NumericString", `"0.4"`, 0.4},
		{"UnknownLabel", `"meh"`, 0},
		{"Empty", ``, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeSentiment(json.RawMessage(tc.raw))
			if got != tc.want {
				t.Errorf("normalizeSentiment(%s) = %f, want %f", tc.raw, got, tc.want)
			}
		})
	}
}

// TestFallbackAnalysis tests the deterministic keyword heuristic
func TestFallbackAnalysis(t *testing.T) {
	t.Run("GermanComplaintCritical", func(t *testing.T) {
		result := fallbackAnalysis("Skandal! Hygiene Problem in der Filiale, bitte sofort handeln.", "de-AT")
		if result.Category != CategoryComplaint {
			t.Errorf("Expected complaint, got %q", result.Category)
		}
		if result.Urgency != UrgencyCritical {
			t.Errorf("Expected critical, got %q", result.Urgency)
		}
		if result.Sentiment >= 0 {
			t.Errorf("Expected negative sentiment, got %f", result.Sentiment)
		}
		if !result.Fallback {
			t.Error("Fallback flag not set")
		}
	})

	t.Run("GermanPraise", func(t *testing.T) {
		result := fallbackAnalysis("Danke, das Team war super freundlich!", "de-AT")
		if result.Category != CategoryPraise {
			t.Errorf("Expected praise, got %q", result.Category)
		}
		if result.Sentiment <= 0 {
			t.Errorf("Expected positive sentiment, got %f", result.Sentiment)
		}
	})

	t.Run("EnglishQuestion", func(t *testing.T) {
		result := fallbackAnalysis("Do you ship to Vorarlberg?", "en")
		if result.Category != CategoryQuestion {
			t.Errorf("Expected question, got %q", result.Category)
		}
		if result.Urgency != UrgencyMedium {
			t.Errorf("Expected medium, got %q", result.Urgency)
		}
	})

	t.Run("UnknownLocaleUsesEnglish", func(t *testing.T) {
		result := fallbackAnalysis("This is a complaint about my order.", "fr")
		if result.Category != CategoryComplaint {
			t.Errorf("Expected complaint via the English table, got %q", result.Category)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := fallbackAnalysis("Problem mit der Lieferung.", "de-AT")
		b := fallbackAnalysis("Problem mit der Lieferung.", "de-AT")
		if a != b {
			t.Errorf("Fallback must be deterministic: %+v vs %+v", a, b)
		}
	})

	t.Run("SummaryRuneSafe", func(t *testing.T) {
		long := strings.Repeat("ä", 200)
		result := fallbackAnalysis(long, "de-AT")
		if !strings.HasSuffix(result.Summary, "…") {
			t.Errorf("Long summaries should be truncated with an ellipsis: %q", result.Summary)
		}
		if len([]rune(result.Summary)) != fallbackSummaryLimit+1 {
			t.Errorf("Summary length %d runes, want %d", len([]rune(result.Summary)), fallbackSummaryLimit+1)
		}
	})
}
