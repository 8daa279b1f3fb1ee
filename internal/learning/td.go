// Package learning implements tabular TD(lambda) value learning with
// replacing eligibility traces, plus a composite reward calculator.
//
// TDLearner is not safe for concurrent use; it is meant for a single writer
// per learning session.
package learning

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// TraceThreshold is the value at or below which an eligibility trace is
// dropped and above which it participates in an update.
const TraceThreshold = 0.01

// KeySeparator joins state and action ids in exported Q-tables.
const KeySeparator = "|"

// State is an opaque state identifier. Equality is by ID only.
type State struct {
	ID       string `json:"id"`
	Features string `json:"features,omitempty"`
}

// Action is an opaque action identifier. Equality is by ID only.
type Action struct {
	ID         string `json:"id"`
	ActionType string `json:"action_type,omitempty"`
}

// UpdateResult reports the outcome of a single TD update.
type UpdateResult struct {
	NewQValue     float64 `json:"new_q_value"`
	TDError       float64 `json:"td_error"`
	StatesUpdated int     `json:"states_updated"`
}

// Params are the learner hyperparameters.
type Params struct {
	// Alpha is the learning rate.
	Alpha float64 `json:"alpha"`
	// Gamma is the discount factor.
	Gamma float64 `json:"gamma"`
	// Lambda is the trace decay.
	Lambda float64 `json:"lambda"`
	// Epsilon is the exploration rate. It is stored for callers doing
	// epsilon-greedy selection and not used by the learner itself.
	Epsilon float64 `json:"epsilon"`
}

// DefaultParams returns alpha 0.1, gamma 0.95, lambda 0.8, epsilon 0.1.
func DefaultParams() Params {
	return Params{Alpha: 0.1, Gamma: 0.95, Lambda: 0.8, Epsilon: 0.1}
}

func (p Params) clamped() Params {
	return Params{
		Alpha:   clamp01(p.Alpha),
		Gamma:   clamp01(p.Gamma),
		Lambda:  clamp01(p.Lambda),
		Epsilon: clamp01(p.Epsilon),
	}
}

type pairKey struct {
	state  string
	action string
}

func (k pairKey) less(o pairKey) bool {
	if k.state != o.state {
		return k.state < o.state
	}
	return k.action < o.action
}

// TDLearner holds a Q-table and an eligibility-trace table keyed by
// (state id, action id).
type TDLearner struct {
	q       map[pairKey]float64
	traces  map[pairKey]float64
	actions map[string]map[string]struct{}

	params    Params
	maxQTable int
	updates   int64
	logger    *zap.Logger
}

// Option configures a TDLearner.
type Option func(*TDLearner)

// WithMaxQTableSize bounds the Q-table. When exceeded after an update or
// import, entries with the smallest |Q| are dropped. Zero means unbounded.
func WithMaxQTableSize(n int) Option {
	return func(l *TDLearner) {
		l.maxQTable = max(0, n)
	}
}

// WithLogger sets the learner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *TDLearner) {
		l.logger = logger
	}
}

// NewTDLearner creates a learner. Every parameter is clamped to [0,1].
func NewTDLearner(p Params, opts ...Option) *TDLearner {
	l := &TDLearner{
		q:       make(map[pairKey]float64),
		traces:  make(map[pairKey]float64),
		actions: make(map[string]map[string]struct{}),
		params:  p.clamped(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// Params returns the clamped hyperparameters.
func (l *TDLearner) Params() Params { return l.params }

// Epsilon returns the exploration rate.
func (l *TDLearner) Epsilon() float64 { return l.params.Epsilon }

// Q returns the value of (state, action), 0 if unseen.
func (l *TDLearner) Q(state State, action Action) float64 {
	return l.q[pairKey{state.ID, action.ID}]
}

func (l *TDLearner) setQ(k pairKey, v float64) {
	l.q[k] = v
	acts, ok := l.actions[k.state]
	if !ok {
		acts = make(map[string]struct{})
		l.actions[k.state] = acts
	}
	acts[k.action] = struct{}{}
}

func (l *TDLearner) deleteQ(k pairKey) {
	delete(l.q, k)
	if acts, ok := l.actions[k.state]; ok {
		delete(acts, k.action)
		if len(acts) == 0 {
			delete(l.actions, k.state)
		}
	}
}

// Update applies one TD(lambda) step for the transition
// (state, action) -reward-> nextState.
//
// With nextAction the bootstrap uses Q(nextState, nextAction); otherwise it
// uses MaxQ(nextState).
func (l *TDLearner) Update(state State, action Action, reward float64, nextState State, nextAction *Action) UpdateResult {
	current := pairKey{state.ID, action.ID}
	currentQ := l.q[current]

	var nextQ float64
	if nextAction != nil {
		nextQ = l.Q(nextState, *nextAction)
	} else {
		nextQ = l.MaxQ(nextState)
	}

	tdError := reward + l.params.Gamma*nextQ - currentQ

	// Replacing traces: a revisit resets to 1, never accumulates past it.
	l.traces[current] = 1.0

	updated := 0
	for k, trace := range l.traces {
		if trace > TraceThreshold {
			l.setQ(k, l.q[k]+l.params.Alpha*tdError*trace)
			updated++
		}
	}

	decay := l.params.Gamma * l.params.Lambda
	for k, trace := range l.traces {
		trace *= decay
		if trace <= TraceThreshold {
			delete(l.traces, k)
			continue
		}
		l.traces[k] = trace
	}

	l.updates++
	result := UpdateResult{
		NewQValue:     l.q[current],
		TDError:       tdError,
		StatesUpdated: updated,
	}

	if l.maxQTable > 0 && len(l.q) > l.maxQTable {
		l.shrink()
	}
	return result
}

// MaxQ returns the largest Q among the actions recorded for state, folded
// with 0, so unseen states and all-negative states both yield 0.
func (l *TDLearner) MaxQ(state State) float64 {
	best := 0.0
	for a := range l.actions[state.ID] {
		best = math.Max(best, l.q[pairKey{state.ID, a}])
	}
	return best
}

// BestAction returns the recorded action with the highest Q for state. Ties
// go to the lexicographically smallest action id.
func (l *TDLearner) BestAction(state State) (string, bool) {
	var (
		best    string
		bestQ   float64
		present bool
	)
	for a := range l.actions[state.ID] {
		v := l.q[pairKey{state.ID, a}]
		if !present || v > bestQ || (v == bestQ && a < best) {
			best, bestQ, present = a, v, true
		}
	}
	return best, present
}

// ActionsForState returns the recorded action ids for state, sorted.
func (l *TDLearner) ActionsForState(state State) []string {
	acts := l.actions[state.ID]
	out := make([]string, 0, len(acts))
	for a := range acts {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ResetTraces clears every eligibility trace. Call at episode boundaries.
func (l *TDLearner) ResetTraces() {
	clear(l.traces)
}

// QTableSize returns the number of (state, action) values held.
func (l *TDLearner) QTableSize() int { return len(l.q) }

// TraceCount returns the number of live eligibility traces.
func (l *TDLearner) TraceCount() int { return len(l.traces) }

// UpdateCount returns the number of Update calls applied.
func (l *TDLearner) UpdateCount() int64 { return l.updates }

// ExportQTable returns the Q-table keyed by "<state>|<action>".
func (l *TDLearner) ExportQTable() map[string]float64 {
	out := make(map[string]float64, len(l.q))
	for k, v := range l.q {
		out[k.state+KeySeparator+k.action] = v
	}
	return out
}

// ImportQTable merges data into the Q-table and returns how many entries
// were accepted. Keys that do not contain exactly one separator are skipped.
func (l *TDLearner) ImportQTable(data map[string]float64) int {
	accepted := 0
	for key, v := range data {
		if strings.Count(key, KeySeparator) != 1 {
			continue
		}
		state, action, _ := strings.Cut(key, KeySeparator)
		l.setQ(pairKey{state, action}, v)
		accepted++
	}

	if skipped := len(data) - accepted; skipped > 0 {
		l.logger.Debug("skipped malformed q-table keys", zap.Int("skipped", skipped))
	}
	if l.maxQTable > 0 && len(l.q) > l.maxQTable {
		l.shrink()
	}
	return accepted
}

// shrink drops the smallest-magnitude values until the table fits.
func (l *TDLearner) shrink() {
	keys := make([]pairKey, 0, len(l.q))
	for k := range l.q {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ai, aj := math.Abs(l.q[keys[i]]), math.Abs(l.q[keys[j]])
		if ai != aj {
			return ai < aj
		}
		return keys[i].less(keys[j])
	})

	excess := len(l.q) - l.maxQTable
	for _, k := range keys[:excess] {
		l.deleteQ(k)
		delete(l.traces, k)
	}
	l.logger.Debug("q-table shrunk", zap.Int("dropped", excess), zap.Int("size", len(l.q)))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
