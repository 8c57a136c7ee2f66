package emotion

import (
	"strings"

	model "github.com/echosoul/backend/internal/model/emotion"
)

// DefaultThreshold is the minimum label score an override needs before it may
// replace the classifier's argmax.
const DefaultThreshold = 0.20

// Rule forces Target when the raw text mentions Keyword and the classifier
// gave Target more than the configured threshold.
type Rule struct {
	Name    string
	Keyword string
	Target  model.Emotion
}

// DefaultRules are evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{Name: "angry-keyword", Keyword: "angry", Target: model.Anger},
	{Name: "sad-keyword", Keyword: "sad", Target: model.Sadness},
}

// Decision records the baseline and final best emotion.
type Decision struct {
	Baseline model.Emotion
	Emotion  model.Emotion
	Rule     string
}

// Overridden reports whether a rule replaced the baseline.
func (d Decision) Overridden() bool {
	return d.Rule != ""
}

// Overrides applies keyword rules on top of a classifier distribution.
type Overrides struct {
	rules     []Rule
	threshold float64
}

// NewOverrides creates an override set. Non-positive thresholds fall back to
// DefaultThreshold and a nil rule list to DefaultRules.
func NewOverrides(rules []Rule, threshold float64) *Overrides {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if rules == nil {
		rules = DefaultRules
	}
	return &Overrides{
		rules:     append([]Rule(nil), rules...),
		threshold: threshold,
	}
}

// Threshold returns the configured confidence floor.
func (o *Overrides) Threshold() float64 {
	return o.threshold
}

// Apply picks the final emotion for rawText. The distribution is read only.
func (o *Overrides) Apply(rawText string, baseline model.Emotion, scores model.Distribution) Decision {
	decision := Decision{Baseline: baseline, Emotion: baseline}

	lowered := strings.ToLower(rawText)
	for _, rule := range o.rules {
		// Rules are tried in priority order; the first one that fires wins.
		if !strings.Contains(lowered, rule.Keyword) || scores[rule.Target] <= o.threshold {
			continue
		}
		decision.Emotion = rule.Target
		decision.Rule = rule.Name
		return decision
	}
	return decision
}
