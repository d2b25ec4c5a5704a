package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/engine"
)

func TestProgressModelTracksProjects(t *testing.T) {
	events := make(chan engine.ProgressEvent)
	m := NewProgressModel("checking", []string{"app", "lib"}, events).(*progressModel)

	m.applyEvent(engine.ProgressEvent{Name: "app", Status: engine.StatusAnalyzing})
	assert.Equal(t, engine.StatusAnalyzing, m.items[0].status)
	assert.Equal(t, 0, m.finished())

	m.applyEvent(engine.ProgressEvent{Name: "app", Status: engine.StatusAnalyzed, Diagnostics: 3})
	m.applyEvent(engine.ProgressEvent{Name: "lib", Status: engine.StatusFailed})
	assert.Equal(t, 2, m.finished())
	assert.Equal(t, 3, m.items[0].diagnostics)

	view := m.View()
	assert.Contains(t, view, "checking (2/2)")
	assert.Contains(t, view, "analyzed")
	assert.Contains(t, view, "(3)")
	assert.Contains(t, view, "failed")
}

func TestProgressModelAddsUnknownProjects(t *testing.T) {
	m := NewProgressModel("checking", nil, nil).(*progressModel)
	assert.Empty(t, m.View())

	m.applyEvent(engine.ProgressEvent{Name: "(loose files)", Status: engine.StatusQueued})
	require.Len(t, m.items, 1)
	assert.Equal(t, "(loose files)", m.items[0].name)
}

func TestProgressModelQuitsWhenEventsClose(t *testing.T) {
	events := make(chan engine.ProgressEvent)
	close(events)
	m := NewProgressModel("checking", []string{"app"}, events).(*progressModel)
	msg := m.listenForEvent()()
	_, ok := msg.(doneMsg)
	require.True(t, ok)
	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd)
	assert.True(t, m.done)
	assert.Contains(t, m.View(), "done: checking")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a-very...", truncate("a-very-long-name", 9))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "same", truncate("same", 0))
}
