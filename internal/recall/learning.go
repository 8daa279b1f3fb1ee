package recall

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// UpdateQ applies one TD(λ) update.
func (s *Service) UpdateQ(ctx context.Context, state learning.State, action learning.Action, reward float64, nextState learning.State, nextAction *learning.Action) learning.UpdateResult {
	_, span, end := s.start(ctx, "td_update",
		attribute.String("state", state.ID),
		attribute.String("action", action.ID),
		attribute.Float64("reward", reward),
	)
	defer end()

	s.learnMu.Lock()
	res := s.learner.Update(state, action, reward, nextState, nextAction)
	s.learnMu.Unlock()

	span.SetAttributes(
		attribute.Float64("td_error", res.TDError),
		attribute.Int("states_updated", res.StatesUpdated),
	)
	return res
}

// LearnFromMetrics computes the shaped reward for metrics and applies it as
// a TD(λ) update. The breakdown explains the reward that was used.
func (s *Service) LearnFromMetrics(ctx context.Context, state learning.State, action learning.Action, metrics map[string]float64, nextState learning.State, nextAction *learning.Action) (learning.UpdateResult, learning.RewardBreakdown) {
	breakdown := s.ComputeReward(ctx, metrics)
	return s.UpdateQ(ctx, state, action, breakdown.Total, nextState, nextAction), breakdown
}

// BestAction returns the greedy action for state.
func (s *Service) BestAction(ctx context.Context, state learning.State) (string, bool) {
	_, _, end := s.start(ctx, "best_action", attribute.String("state", state.ID))
	defer end()

	s.learnMu.Lock()
	defer s.learnMu.Unlock()
	return s.learner.BestAction(state)
}

// ActionValues returns the Q-value of every action seen for state.
func (s *Service) ActionValues(ctx context.Context, state learning.State) map[string]float64 {
	_, _, end := s.start(ctx, "action_values", attribute.String("state", state.ID))
	defer end()

	s.learnMu.Lock()
	defer s.learnMu.Unlock()
	actions := s.learner.ActionsForState(state)
	out := make(map[string]float64, len(actions))
	for _, a := range actions {
		out[a] = s.learner.Q(state, learning.Action{ID: a})
	}
	return out
}

// ExportQTable snapshots the Q-table as "state|action" keys.
func (s *Service) ExportQTable(ctx context.Context) map[string]float64 {
	_, _, end := s.start(ctx, "export_q_table")
	defer end()

	s.learnMu.Lock()
	defer s.learnMu.Unlock()
	return s.learner.ExportQTable()
}

// ImportQTable merges data into the Q-table and returns the number of
// entries accepted.
func (s *Service) ImportQTable(ctx context.Context, data map[string]float64) int {
	_, span, end := s.start(ctx, "import_q_table", attribute.Int("entries", len(data)))
	defer end()

	s.learnMu.Lock()
	n := s.learner.ImportQTable(data)
	s.learnMu.Unlock()

	span.SetAttributes(attribute.Int("imported", n))
	return n
}

// ResetTraces clears all eligibility traces, ending the current episode.
func (s *Service) ResetTraces(ctx context.Context) {
	_, _, end := s.start(ctx, "reset_traces")
	defer end()

	s.learnMu.Lock()
	s.learner.ResetTraces()
	s.learnMu.Unlock()
}

// LearnerParams returns the clamped learner hyperparameters.
func (s *Service) LearnerParams() learning.Params {
	s.learnMu.Lock()
	defer s.learnMu.Unlock()
	return s.learner.Params()
}

// ComputeReward runs the reward calculator over metrics.
func (s *Service) ComputeReward(ctx context.Context, metrics map[string]float64) learning.RewardBreakdown {
	_, span, end := s.start(ctx, "compute_reward", attribute.Int("metrics", len(metrics)))
	defer end()

	s.rewardMu.RLock()
	b := s.reward.Breakdown(metrics)
	s.rewardMu.RUnlock()

	span.SetAttributes(attribute.Float64("reward", b.Total))
	return b
}

// SetRewardComponent adds or replaces the component for c.Metric. An
// invalid component leaves the calculator unchanged.
func (s *Service) SetRewardComponent(ctx context.Context, c learning.RewardComponent) error {
	_, _, end := s.start(ctx, "set_reward_component", attribute.String("metric", c.Metric))
	defer end()

	s.rewardMu.Lock()
	defer s.rewardMu.Unlock()

	components := make([]learning.RewardComponent, 0, len(s.reward.Components())+1)
	for _, existing := range s.reward.Components() {
		if existing.Metric != c.Metric {
			components = append(components, existing)
		}
	}
	clipMin, clipMax := s.reward.ClipRange()
	next, err := learning.NewRewardCalculator(append(components, c), clipMin, clipMax)
	if err != nil {
		return fmt.Errorf("reward component %q: %w", c.Metric, err)
	}
	s.reward = next
	return nil
}

// RewardComponents returns the configured reward components.
func (s *Service) RewardComponents() []learning.RewardComponent {
	s.rewardMu.RLock()
	defer s.rewardMu.RUnlock()
	return s.reward.Components()
}
