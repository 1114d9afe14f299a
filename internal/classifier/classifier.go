// Package classifier maps a normalized event plus optional enrichment data
// to a severity tier using an ordered truth table.
package classifier

import (
	"fmt"
	"sync/atomic"

	"pricewatch/internal/config"
	"pricewatch/pkg/models"
)

// Rule names reported on Result.
const (
	RuleCritical       = "critical_competition"
	RuleValueDowngrade = "low_value_downgrade"
	RuleHigh           = "high_competition"
	RuleThinMargin     = "leading_thin_margin"
	RuleWarning        = "warning_competition"
	RuleBreakEven      = "near_break_even"
	RuleNone           = "none"
)

type Input struct {
	Event *models.NormalizedEvent
	// Enrichment is nil when no data was fetched.
	Enrichment *models.EnrichmentData
	// Degraded is set when enrichment was wanted but unavailable.
	Degraded bool
}

type Result struct {
	Severity           models.Severity
	EnrichmentDegraded bool
	Rule               string
	Reasons            []string
}

// Classifier is safe for concurrent use. Thresholds can be replaced at
// runtime; each Classify call sees one consistent set.
type Classifier struct {
	thresholds atomic.Pointer[config.ClassifierConfig]
}

func New(t config.ClassifierConfig) *Classifier {
	c := &Classifier{}
	c.SetThresholds(t)
	return c
}

func (c *Classifier) SetThresholds(t config.ClassifierConfig) {
	c.thresholds.Store(&t)
}

func (c *Classifier) Thresholds() config.ClassifierConfig {
	return *c.thresholds.Load()
}

// facts are the inputs the truth table reads, resolved once.
type facts struct {
	count       int
	gap         float64
	leading     bool
	outsideTop  bool
	volume      float64
	volumeKnown bool
	margin      float64
	marginKnown bool
}

func resolve(t *config.ClassifierConfig, in Input) facts {
	p := in.Event.Payload
	f := facts{
		count: p.CompetitorCount,
		gap:   p.GapPercentage(),
	}

	switch {
	case p.IsLeading != nil:
		f.leading = *p.IsLeading
	case p.BuyBoxPercentage != nil:
		f.leading = *p.BuyBoxPercentage >= t.LeadingBuyBoxPct
	default:
		f.leading = p.OurRank == 1
	}

	if p.OurRank > 0 {
		f.outsideTop = p.OurRank > t.TopPosition
	} else {
		f.outsideTop = !f.leading
	}

	if in.Enrichment != nil && in.Enrichment.EstimatedVolume != nil {
		f.volume, f.volumeKnown = *in.Enrichment.EstimatedVolume, true
	} else if p.Sessions != nil {
		f.volume, f.volumeKnown = *p.Sessions, true
	}

	if !in.Degraded {
		f.margin, f.marginKnown = in.Enrichment.Margin(p.OurPrice)
	}
	return f
}

// Classify evaluates the table top-down; the first matching tier wins.
// Degraded input skips every volume- or margin-gated rule, so the result
// is at most HIGH.
func (c *Classifier) Classify(in Input) Result {
	t := c.thresholds.Load()
	f := resolve(t, in)
	res := Result{EnrichmentDegraded: in.Degraded}

	competes := func(count int, gapPct float64) bool {
		return f.count >= count && f.gap >= gapPct
	}

	// Between the two value thresholds, or with no volume at all, the
	// critical rule simply does not match and the lower rules decide.
	if !in.Degraded && competes(t.HighCount, t.HighGapPct) && !f.leading && f.volumeKnown {
		switch {
		case f.volume > t.ValueThreshold:
			res.Severity = models.SeverityCritical
			res.Rule = RuleCritical
			res.Reasons = append(res.Reasons, fmt.Sprintf("%d competitors, gap %.1f%%, not leading, volume %.0f", f.count, f.gap, f.volume))
			return res
		case f.volume < t.LowValueThreshold:
			res.Severity = models.SeverityHigh
			res.Rule = RuleValueDowngrade
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("%d competitors, gap %.1f%%, not leading", f.count, f.gap),
				fmt.Sprintf("volume %.0f below low-value threshold %.0f", f.volume, t.LowValueThreshold),
			)
			return res
		}
	}
	if in.Degraded && competes(t.HighCount, t.HighGapPct) && !f.leading {
		res.Reasons = append(res.Reasons, "critical rule skipped: enrichment degraded")
	}

	if competes(t.MidCount, t.MidGapPct) && !f.leading {
		res.Severity = models.SeverityHigh
		res.Rule = RuleHigh
		res.Reasons = append(res.Reasons, fmt.Sprintf("%d competitors, gap %.1f%%, not leading", f.count, f.gap))
		return res
	}
	if f.leading && f.marginKnown && f.margin < t.SustainabilityFloor {
		res.Severity = models.SeverityHigh
		res.Rule = RuleThinMargin
		res.Reasons = append(res.Reasons, fmt.Sprintf("leading with margin %.1f%% below floor %.1f%%", f.margin, t.SustainabilityFloor))
		return res
	}

	if competes(t.LowCount, t.LowGapPct) && f.outsideTop {
		res.Severity = models.SeverityWarning
		res.Rule = RuleWarning
		res.Reasons = append(res.Reasons, fmt.Sprintf("%d competitors, gap %.1f%%, outside top %d", f.count, f.gap, t.TopPosition))
		return res
	}
	if f.marginKnown && f.margin <= t.BreakEvenMargin {
		res.Severity = models.SeverityWarning
		res.Rule = RuleBreakEven
		res.Reasons = append(res.Reasons, fmt.Sprintf("margin %.1f%% at or below break-even %.1f%%", f.margin, t.BreakEvenMargin))
		return res
	}

	res.Severity = models.SeverityOK
	res.Rule = RuleNone
	return res
}
