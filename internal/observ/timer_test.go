package observ

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		base = base.Add(step)
		return base
	}
}

func TestTimerReport(t *testing.T) {
	timer := NewTimer()
	timer.now = fakeClock(time.Millisecond)

	endLoad := timer.Begin("load")
	endLoad("2 projects")
	endAnalyze := timer.Begin("analyze")
	endAnalyze("")
	endAnalyze("ignored")

	report := timer.Report()
	require.Len(t, report.Phases, 2)
	assert.Equal(t, PhaseReport{Name: "load", DurationMS: 1, Note: "2 projects"}, report.Phases[0])
	assert.Equal(t, PhaseReport{Name: "analyze", DurationMS: 1}, report.Phases[1])
	assert.InDelta(t, 3, report.TotalMS, 1e-9)

	assert.Equal(t, "timings:\n"+
		"  load              1.00 ms  (2 projects)\n"+
		"  analyze           1.00 ms\n"+
		"  total             3.00 ms\n", timer.Summary())
}

func TestEmptyTimer(t *testing.T) {
	report := NewTimer().Report()
	assert.Empty(t, report.Phases)
	assert.Zero(t, report.TotalMS)
}
