package anonymizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/privacy"
)

// PseudonymSource assigns stable pseudonyms for detected values.
type PseudonymSource interface {
	GetOrCreate(ctx context.Context, tenantID, original string, kind privacy.Kind) (string, error)
}

// Substitution records one replacement performed on the text. Position is
// the start offset of the original span, kept for audit summaries only.
type Substitution struct {
	Kind      privacy.Kind `json:"kind"`
	Pseudonym string       `json:"pseudonym"`
	Position  int          `json:"position"`
}

// Anonymizer rewrites text by replacing detected PII spans with
// bracket-wrapped pseudonyms. The [pseudonym] delimiter format is part of
// the downstream contract and must not change.
type Anonymizer struct {
	vault  PseudonymSource
	logger *logger.Logger
}

// New creates an anonymizer backed by the given pseudonym source.
func New(vault PseudonymSource, log *logger.Logger) *Anonymizer {
	return &Anonymizer{vault: vault, logger: log}
}

// Anonymize replaces every detected span with its pseudonym and returns the
// rewritten text plus substitution records sorted by original position.
// With no detections the text is returned unchanged and the vault is never
// called.
func (a *Anonymizer) Anonymize(ctx context.Context, text string, detections []privacy.Detection, tenantID string) (string, []Substitution, error) {
	if len(detections) == 0 {
		return text, []Substitution{}, nil
	}

	// The detector guarantees non-overlapping spans sorted ascending, but
	// sort defensively so a single ordered rebuild stays offset-exact.
	ordered := make([]privacy.Detection, len(detections))
	copy(ordered, detections)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	var out strings.Builder
	subs := make([]Substitution, 0, len(ordered))
	prev := 0

	for _, det := range ordered {
		pseudonym, err := a.vault.GetOrCreate(ctx, tenantID, det.Value, det.Kind)
		if err != nil {
			return "", nil, fmt.Errorf("assigning pseudonym for %s span: %w", det.Kind, err)
		}

		out.WriteString(text[prev:det.Start])
		out.WriteString("[")
		out.WriteString(pseudonym)
		out.WriteString("]")
		prev = det.End

		subs = append(subs, Substitution{
			Kind:      det.Kind,
			Pseudonym: pseudonym,
			Position:  det.Start,
		})
	}
	out.WriteString(text[prev:])

	a.logger.Debug("Content anonymized",
		zap.String("tenant_id", tenantID),
		zap.Int("replacements", len(subs)),
	)

	return out.String(), subs, nil
}
