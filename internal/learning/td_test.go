package learning

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func st(id string) State   { return State{ID: id} }
func act(id string) Action { return Action{ID: id} }

func TestNewTDLearner_ClampsParams(t *testing.T) {
	l := NewTDLearner(Params{Alpha: 2, Gamma: -1, Lambda: 0.5, Epsilon: 1.5})
	assert.Equal(t, Params{Alpha: 1, Gamma: 0, Lambda: 0.5, Epsilon: 1}, l.Params())
	assert.Equal(t, 1.0, l.Epsilon())

	assert.Equal(t, Params{Alpha: 0.1, Gamma: 0.95, Lambda: 0.8, Epsilon: 0.1}, DefaultParams())
}

func TestUpdate_FirstStep(t *testing.T) {
	l := NewTDLearner(DefaultParams())

	res := l.Update(st("s0"), act("a0"), 1.0, st("s1"), nil)
	assert.InDelta(t, 1.0, res.TDError, 1e-12)
	assert.InDelta(t, 0.1, res.NewQValue, 1e-12)
	assert.Equal(t, 1, res.StatesUpdated)
	assert.InDelta(t, 0.1, l.Q(st("s0"), act("a0")), 1e-12)
	assert.Equal(t, 1, l.TraceCount())
	assert.Equal(t, int64(1), l.UpdateCount())
}

func TestUpdate_SarsaUsesNextAction(t *testing.T) {
	l := NewTDLearner(Params{Alpha: 1, Gamma: 0.5, Lambda: 0})
	l.ImportQTable(map[string]float64{"s1|good": 10, "s1|bad": -4})

	next := act("bad")
	res := l.Update(st("s0"), act("a"), 0, st("s1"), &next)
	assert.InDelta(t, -2.0, res.TDError, 1e-12)

	res = l.Update(st("s2"), act("a"), 0, st("s1"), nil)
	assert.InDelta(t, 5.0, res.TDError, 1e-12, "greedy bootstrap uses the max")
}

func TestUpdate_TracesPropagateAndPrune(t *testing.T) {
	l := NewTDLearner(Params{Alpha: 0.5, Gamma: 1, Lambda: 0.5})

	l.Update(st("s0"), act("a"), 0, st("s1"), nil)
	res := l.Update(st("s1"), act("a"), 1, st("s2"), nil)

	// s0's trace decayed to 0.5 and received half of the credit.
	assert.Equal(t, 2, res.StatesUpdated)
	assert.InDelta(t, 0.5, l.Q(st("s1"), act("a")), 1e-12)
	assert.InDelta(t, 0.25, l.Q(st("s0"), act("a")), 1e-12)

	// Decay by 0.5 per step: older traces fall below the threshold.
	for range 8 {
		l.Update(st("s9"), act("x"), 0, st("s9"), nil)
	}
	assert.Equal(t, 1, l.TraceCount())

	res = l.Update(st("fresh"), act("x"), 0, st("fresh"), nil)
	assert.Equal(t, 2, res.StatesUpdated)
}

func TestUpdate_ReplacingTracesDoNotAccumulate(t *testing.T) {
	l := NewTDLearner(Params{Alpha: 0.1, Gamma: 1, Lambda: 1})

	for range 5 {
		l.Update(st("s"), act("a"), 0, st("s"), nil)
	}
	assert.Equal(t, 1, l.TraceCount())
	assert.LessOrEqual(t, l.traces[pairKey{"s", "a"}], 1.0)
}

func TestUpdate_ZeroDecayKeepsNoTraces(t *testing.T) {
	l := NewTDLearner(Params{Alpha: 0.1, Gamma: 0.9, Lambda: 0})
	l.Update(st("s"), act("a"), 1, st("t"), nil)
	assert.Zero(t, l.TraceCount())
}

func TestUpdate_MonotoneConvergence(t *testing.T) {
	l := NewTDLearner(DefaultParams())

	prev := 0.0
	for i := range 200 {
		res := l.Update(st("s"), act("a"), 1.0, st("terminal"), nil)
		assert.Greater(t, res.NewQValue, prev, "step %d", i)
		assert.Less(t, res.NewQValue, 1.0)
		prev = res.NewQValue
	}
	assert.InDelta(t, 1.0, prev, 1e-6)
}

func TestResetTraces(t *testing.T) {
	l := NewTDLearner(DefaultParams())
	l.Update(st("s0"), act("a"), 1, st("s1"), nil)
	l.Update(st("s1"), act("b"), 1, st("s2"), nil)
	require.Positive(t, l.TraceCount())

	l.ResetTraces()
	assert.Zero(t, l.TraceCount())
	assert.Equal(t, 2, l.QTableSize())
}

func TestMaxQ(t *testing.T) {
	l := NewTDLearner(DefaultParams())
	assert.Zero(t, l.MaxQ(st("unseen")))

	l.ImportQTable(map[string]float64{"neg|a": -3, "neg|b": -1})
	assert.Zero(t, l.MaxQ(st("neg")), "fold starts at zero")

	l.ImportQTable(map[string]float64{"pos|a": 0.4, "pos|b": 2.5})
	assert.Equal(t, 2.5, l.MaxQ(st("pos")))
}

func TestBestAction(t *testing.T) {
	l := NewTDLearner(DefaultParams())

	_, ok := l.BestAction(st("unseen"))
	assert.False(t, ok)

	l.ImportQTable(map[string]float64{
		"s|retry":    0.3,
		"s|escalate": 0.9,
		"s|ignore":   0.9,
		"neg|a":      -2,
		"neg|b":      -1,
	})

	best, ok := l.BestAction(st("s"))
	require.True(t, ok)
	assert.Equal(t, "escalate", best)

	best, ok = l.BestAction(st("neg"))
	require.True(t, ok)
	assert.Equal(t, "b", best)

	assert.Equal(t, []string{"escalate", "ignore", "retry"}, l.ActionsForState(st("s")))
	assert.Empty(t, l.ActionsForState(st("unseen")))
}

func TestExportImportQTable(t *testing.T) {
	l := NewTDLearner(DefaultParams())
	l.Update(st("s0"), act("a0"), 1, st("s1"), nil)
	l.Update(st("s1"), act("a1"), 0.5, st("s2"), nil)

	exported := l.ExportQTable()
	require.Len(t, exported, 2)
	assert.Contains(t, exported, "s0|a0")

	other := NewTDLearner(DefaultParams())
	n := other.ImportQTable(exported)
	assert.Equal(t, 2, n)
	assert.Equal(t, l.Q(st("s0"), act("a0")), other.Q(st("s0"), act("a0")))
	assert.Equal(t, l.Q(st("s1"), act("a1")), other.Q(st("s1"), act("a1")))
}

func TestImportQTable_SkipsMalformedKeys(t *testing.T) {
	l := NewTDLearner(DefaultParams())
	n := l.ImportQTable(map[string]float64{
		"ok|a":        1,
		"noseparator": 2,
		"too|many|x":  3,
		"|empty":      4,
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, l.QTableSize())
	assert.Equal(t, 4.0, l.Q(st(""), act("empty")))
}

func TestMaxQTableSize(t *testing.T) {
	l := NewTDLearner(Params{Alpha: 1, Gamma: 0, Lambda: 0}, WithMaxQTableSize(3))

	for i := range 6 {
		l.Update(st(fmt.Sprintf("s%d", i)), act("a"), float64(i+1), st("end"), nil)
		assert.LessOrEqual(t, l.QTableSize(), 3)
	}

	// The largest magnitudes survive.
	for _, id := range []string{"s3", "s4", "s5"} {
		_, ok := l.BestAction(st(id))
		assert.True(t, ok, id)
	}
	_, ok := l.BestAction(st("s0"))
	assert.False(t, ok)

	l.ImportQTable(map[string]float64{"x|a": 100, "y|a": 200})
	assert.Equal(t, 3, l.QTableSize())
	assert.Equal(t, 200.0, l.MaxQ(st("y")))
}
