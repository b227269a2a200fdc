package list

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func down() tea.KeyPressMsg { return tea.KeyPressMsg{Code: tea.KeyDown} }
func up() tea.KeyPressMsg   { return tea.KeyPressMsg{Code: tea.KeyUp} }

func TestKeyboardNavigation(t *testing.T) {
	t.Parallel()

	t.Run("first key focuses the first rendered entry", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(t, testEntries(), 20, 6)
		send(m, down())
		assert.Equal(t, "alpha", m.Focused())
		assert.Equal(t, "▌ Alpha", viewLines(m)[1])
	})

	t.Run("headers are skipped", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(t, testEntries(), 20, 6)
		send(m, up())
		assert.Equal(t, "delta", m.Focused())
		send(m, up())
		send(m, up())
		send(m, up())
		assert.Equal(t, "alpha", m.Focused())
		send(m, up())
		assert.Equal(t, "alpha", m.Focused(), "intro is not navigable")
	})

	t.Run("focus scrolls the entry into view", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(t, testEntries(), 20, 6)
		send(m, down())
		send(m, down())
		assert.Equal(t, "beta", m.Focused())
		assert.Zero(t, m.Offset())

		send(m, down())
		assert.Equal(t, "gamma", m.Focused())
		assert.Equal(t, 2, m.Offset())
		lines := viewLines(m)
		assert.Equal(t, "▌ Gamma", lines[2])
	})

	t.Run("page keys scroll by the viewport", func(t *testing.T) {
		t.Parallel()
		m := newTestModel(t, Generate(300, 2), 60, 11)
		send(m, tea.KeyPressMsg{Code: tea.KeyPgDown})
		assert.Equal(t, 10, m.Offset())
		send(m, tea.KeyPressMsg{Code: 'd', Text: "d"})
		assert.Equal(t, 15, m.Offset())
		send(m, tea.KeyPressMsg{Code: 'g', Text: "g"})
		assert.Zero(t, m.Offset())
		require.NoError(t, m.Engine().CheckInvariants())
	})

	t.Run("focus survives a jump far down the list", func(t *testing.T) {
		t.Parallel()
		entries := Generate(400, 4)
		m := newTestModel(t, entries, 60, 20)
		target := entries[301]
		require.False(t, target.Header)

		require.True(t, m.Engine().SelectAndFocus(target.ID))
		execCmd(m, m.flush())
		assert.Equal(t, target.ID, m.Focused())
		assert.Positive(t, m.Offset())
	})
}
