package privacy

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
)

const (
	confidenceStructural = 1.0
	confidenceFirstName  = 0.85
	confidenceFullName   = 0.90
)

// Detector scans text against a pattern library and emits non-overlapping,
// position-ordered detections. Detection is pure computation; a Detector is
// safe for concurrent use.
type Detector struct {
	lib     *Library
	enabled map[Kind]bool
	logger  *logger.Logger
}

// New creates a detector for the configured locale and enabled kinds.
func New(cfg config.PrivacyConfig, log *logger.Logger) (*Detector, error) {
	lib, err := LibraryForLocale(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("failed to build pattern library: %w", err)
	}

	d := &Detector{
		lib:     lib,
		enabled: make(map[Kind]bool),
		logger:  log,
	}

	if err := d.configureKinds(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("PII detector initialized",
		zap.String("locale", cfg.Locale),
		zap.Int("structural_rules", len(lib.Structural)),
		zap.Int("name_contexts", len(lib.NameContexts)),
		zap.Int("enabled_kinds", d.countEnabled()),
	)

	return d, nil
}

// configureKinds enables detection kinds based on configuration.
func (d *Detector) configureKinds(names []string) error {
	for _, kind := range AllKinds() {
		d.enabled[kind] = false
	}

	for _, name := range names {
		if name == "all" {
			for _, kind := range AllKinds() {
				d.enabled[kind] = true
			}
			continue
		}

		kind := Kind(name)
		if _, known := d.enabled[kind]; !known {
			return fmt.Errorf("unknown detector: %s", name)
		}
		d.enabled[kind] = true
	}

	return nil
}

// Detect scans text and returns accepted detections sorted by start offset.
// Candidates are produced structural-first; a candidate overlapping an
// already-accepted span is dropped (first-accepted-wins, no merging).
func (d *Detector) Detect(text string) []Detection {
	detections := make([]Detection, 0)
	if text == "" {
		return detections
	}

	var accepted []span

	add := func(kind Kind, value string, start, end int, confidence float64) {
		for _, s := range accepted {
			if start < s.end && end > s.start {
				return
			}
		}
		accepted = append(accepted, span{start, end})
		detections = append(detections, Detection{
			Kind:       kind,
			Value:      value,
			Start:      start,
			End:        end,
			Confidence: confidence,
		})
	}

	// 1. Structural patterns
	for _, rule := range d.lib.Structural {
		if !d.enabled[rule.Kind] {
			continue
		}
		for _, m := range rule.Pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := ruleSpan(rule, m)
			add(rule.Kind, text[start:end], start, end, confidenceStructural)
		}
	}

	// 2. First-name lookup over capitalized words
	if d.enabled[KindFirstName] {
		for _, m := range d.lib.wordPattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			word := text[start:end]
			if _, ok := d.lib.FirstNames[strings.ToLower(word)]; ok {
				add(KindFirstName, word, start, end, confidenceFirstName)
			}
		}
	}

	// 3. Contextual full-name templates, anchored to the name span
	if d.enabled[KindFullName] {
		for _, rule := range d.lib.NameContexts {
			for _, m := range rule.Pattern.FindAllStringSubmatchIndex(text, -1) {
				start, end := ruleSpan(rule, m)
				add(rule.Kind, text[start:end], start, end, confidenceFullName)
			}
		}
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Start < detections[j].Start
	})

	if len(detections) > 0 {
		counts := make(map[Kind]int)
		for _, det := range detections {
			counts[det.Kind]++
		}
		d.logger.Debug("PII detected",
			zap.Int("count", len(detections)),
			zap.Any("kinds", counts),
		)
	}

	return detections
}

// KindCounts summarizes detections by kind, for audit details.
func KindCounts(detections []Detection) map[Kind]int {
	counts := make(map[Kind]int)
	for _, det := range detections {
		counts[det.Kind]++
	}
	return counts
}

// Kinds returns the distinct kinds present in detections, in first-seen order.
func Kinds(detections []Detection) []Kind {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, det := range detections {
		if !seen[det.Kind] {
			seen[det.Kind] = true
			kinds = append(kinds, det.Kind)
		}
	}
	return kinds
}

// countEnabled returns the number of enabled detection kinds.
func (d *Detector) countEnabled() int {
	count := 0
	for _, on := range d.enabled {
		if on {
			count++
		}
	}
	return count
}

type span struct {
	start, end int
}

// ruleSpan resolves the accepted span of a match, honoring the rule's
// anchor group when set.
func ruleSpan(rule Rule, match []int) (int, int) {
	if rule.Group > 0 && len(match) > rule.Group*2+1 && match[rule.Group*2] >= 0 {
		return match[rule.Group*2], match[rule.Group*2+1]
	}
	return match[0], match[1]
}
