package toaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()

	assert.False(t, m.Visible())
	assert.Empty(t, m.View())
}

func TestShow(t *testing.T) {
	m, cmd := New().Show("Check started", StyleSuccess, time.Millisecond)

	require.NotNil(t, cmd)
	assert.True(t, m.Visible())
	assert.Contains(t, m.View(), "✓ Check started")
}

func TestShow_Styles(t *testing.T) {
	tests := []struct {
		style Style
		icon  string
	}{
		{StyleSuccess, "✓"},
		{StyleError, "✗"},
		{StyleInfo, "•"},
		{StyleWarn, "!"},
	}
	for _, tt := range tests {
		m, _ := New().Show("msg", tt.style, time.Second)
		assert.Contains(t, m.View(), tt.icon+" msg")
	}
}

func TestDismissTimerHidesToast(t *testing.T) {
	m, cmd := New().Show("Deleted", StyleSuccess, time.Millisecond)
	m = m.Update(cmd())

	assert.False(t, m.Visible())
	assert.Empty(t, m.Message())
}

func TestStaleDismissKeepsNewerToast(t *testing.T) {
	m, first := New().Show("First", StyleSuccess, time.Millisecond)
	m, _ = m.Show("Second", StyleError, time.Hour)

	m = m.Update(first())

	assert.True(t, m.Visible())
	assert.Equal(t, "Second", m.Message())
	assert.NotContains(t, m.View(), "First")
}

func TestHide(t *testing.T) {
	m, _ := New().Show("Hello", StyleInfo, time.Second)
	m = m.Hide()

	assert.False(t, m.Visible())
	assert.Empty(t, m.View())
}
