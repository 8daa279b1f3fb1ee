package learning

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidReward is returned for malformed reward configuration.
var ErrInvalidReward = errors.New("invalid reward configuration")

// RewardComponent is one weighted metric in a composite reward. Its
// contribution peaks at Target and falls off as a Gaussian of width Scale.
type RewardComponent struct {
	Metric string  `json:"metric" koanf:"metric"`
	Weight float64 `json:"weight" koanf:"weight"`
	Target float64 `json:"target" koanf:"target"`
	Scale  float64 `json:"scale" koanf:"scale"`
}

// LinearComponent returns a component whose Gaussian is wide enough to be
// effectively flat for typical metric values.
func LinearComponent(metric string, weight float64) RewardComponent {
	return RewardComponent{Metric: metric, Weight: weight, Target: 1, Scale: 1e6}
}

func (c RewardComponent) validate() error {
	if c.Metric == "" {
		return fmt.Errorf("%w: component metric is required", ErrInvalidReward)
	}
	if !(c.Scale > 0) {
		return fmt.Errorf("%w: component %q scale must be > 0", ErrInvalidReward, c.Metric)
	}
	return nil
}

// contribution returns weight*exp(-(v-target)^2/(2*scale^2)), or 0 when the
// metric is missing or not finite.
func (c RewardComponent) contribution(metrics map[string]float64) (float64, bool) {
	v, ok := metrics[c.Metric]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	diff := v - c.Target
	return c.Weight * math.Exp(-(diff*diff)/(2*c.Scale*c.Scale)), true
}

// ComponentBreakdown is one component's share of a computed reward.
type ComponentBreakdown struct {
	Metric       string   `json:"metric"`
	Observed     *float64 `json:"observed"`
	Weight       float64  `json:"weight"`
	Contribution float64  `json:"contribution"`
}

// RewardBreakdown explains a computed reward.
type RewardBreakdown struct {
	Total      float64              `json:"total"`
	RawTotal   float64              `json:"raw_total"`
	Normalized float64              `json:"normalized"`
	Components []ComponentBreakdown `json:"components"`
}

// RewardCalculator turns observed metrics into a scalar reward in
// [clipMin, clipMax]. The weighted sum is divided by the sum of absolute
// weights before clipping.
type RewardCalculator struct {
	components []RewardComponent
	clipMin    float64
	clipMax    float64
}

// NewRewardCalculator validates components and the clip range.
func NewRewardCalculator(components []RewardComponent, clipMin, clipMax float64) (*RewardCalculator, error) {
	if !(clipMin < clipMax) {
		return nil, fmt.Errorf("%w: clip_min (%g) must be < clip_max (%g)", ErrInvalidReward, clipMin, clipMax)
	}
	for _, c := range components {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	return &RewardCalculator{
		components: append([]RewardComponent(nil), components...),
		clipMin:    clipMin,
		clipMax:    clipMax,
	}, nil
}

// Components returns a copy of the configured components.
func (r *RewardCalculator) Components() []RewardComponent {
	return append([]RewardComponent(nil), r.components...)
}

// ClipRange returns (clipMin, clipMax).
func (r *RewardCalculator) ClipRange() (float64, float64) {
	return r.clipMin, r.clipMax
}

// AddComponent appends a component.
func (r *RewardCalculator) AddComponent(c RewardComponent) error {
	if err := c.validate(); err != nil {
		return err
	}
	r.components = append(r.components, c)
	return nil
}

// RemoveComponent drops every component for metric and reports whether any
// were removed.
func (r *RewardCalculator) RemoveComponent(metric string) bool {
	kept := r.components[:0]
	for _, c := range r.components {
		if c.Metric != metric {
			kept = append(kept, c)
		}
	}
	removed := len(kept) < len(r.components)
	r.components = kept
	return removed
}

// Compute returns the clipped reward for metrics. No components yields 0.
func (r *RewardCalculator) Compute(metrics map[string]float64) float64 {
	return r.Breakdown(metrics).Total
}

// Breakdown computes the reward and reports each component's contribution.
func (r *RewardCalculator) Breakdown(metrics map[string]float64) RewardBreakdown {
	b := RewardBreakdown{Components: make([]ComponentBreakdown, 0, len(r.components))}
	if len(r.components) == 0 {
		return b
	}

	var totalWeight float64
	for _, c := range r.components {
		contribution, ok := c.contribution(metrics)
		var observed *float64
		if v, present := metrics[c.Metric]; present && ok {
			observed = &v
		}
		b.RawTotal += contribution
		totalWeight += math.Abs(c.Weight)
		b.Components = append(b.Components, ComponentBreakdown{
			Metric:       c.Metric,
			Observed:     observed,
			Weight:       c.Weight,
			Contribution: contribution,
		})
	}

	if totalWeight > 0 {
		b.Normalized = b.RawTotal / totalWeight
	}
	b.Total = math.Max(r.clipMin, math.Min(r.clipMax, b.Normalized))
	return b
}
