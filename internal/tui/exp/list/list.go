package list

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/v2/help"
	"github.com/charmbracelet/bubbles/v2/key"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/vlist/internal/csync"
	"github.com/charmbracelet/vlist/internal/virt"
	"github.com/charmbracelet/x/ansi"
)

const ViewportDefaultScrollSize = 2

// measuredMsg carries a height measured off the update loop.
type measuredMsg struct {
	key    string
	width  int
	height int
}

// renderedMsg is delivered once the update that requested a render has
// returned, so the next View already reflects the cells it acknowledges.
type renderedMsg struct{}

// ConfigChangedMsg hands a reloaded engine configuration to the list.
type ConfigChangedMsg struct {
	Config virt.Config
}

type confOptions struct {
	keyMap        KeyMap
	scrollSize    int
	accessibility bool
	engineOpts    []virt.Option
}

type ListOption func(*confOptions)

// WithKeyMap replaces the key bindings.
func WithKeyMap(keyMap KeyMap) ListOption {
	return func(l *confOptions) {
		l.keyMap = keyMap
	}
}

// WithScrollSize sets how many rows a mouse wheel step scrolls.
func WithScrollSize(n int) ListOption {
	return func(l *confOptions) {
		l.scrollSize = n
	}
}

func WithAccessibility(enabled bool) ListOption {
	return func(l *confOptions) {
		l.accessibility = enabled
	}
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(opts ...virt.Option) ListOption {
	return func(l *confOptions) {
		l.engineOpts = append(l.engineOpts, opts...)
	}
}

// Model is a Bubble Tea host for the virtualization engine. It keeps the
// views of the cells the engine hands it, measures paragraphs off the
// update loop and draws the visible cells.
type Model struct {
	*confOptions

	engine   *virt.Engine
	measurer *measurer
	help     help.Model

	entries   map[string]Entry
	order     []Entry
	cells     map[uint64]virt.Cell
	viewCache *csync.Map[string, string]

	width, height int
	offset        int
	container     int
	focused       string
	showHelp      bool

	// cmds collects the commands produced by host callbacks during one
	// update.
	cmds []tea.Cmd
}

var _ virt.Host = (*Model)(nil)

func New(entries []Entry, opts ...ListOption) (*Model, error) {
	m := &Model{
		confOptions: &confOptions{
			keyMap:     DefaultKeyMap(),
			scrollSize: ViewportDefaultScrollSize,
		},
		measurer:  newMeasurer(),
		help:      help.New(),
		entries:   make(map[string]Entry),
		cells:     make(map[uint64]virt.Cell),
		viewCache: csync.NewMap[string, string](),
	}
	for _, opt := range opts {
		opt(m.confOptions)
	}

	engine, err := virt.New(m, m.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create list engine: %w", err)
	}
	m.engine = engine
	m.engine.SetKeyMap(m.keyMap.KeyMap)
	m.engine.SetAccessibilityMode(m.accessibility)
	m.SetEntries(entries)
	return m, nil
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
	case tea.KeyPressMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keyMap.Help):
			m.showHelp = !m.showHelp
		default:
			m.engine.HandleKey(msg)
		}
	case tea.MouseWheelMsg:
		switch msg.Button {
		case tea.MouseWheelDown:
			m.engine.ScrollBy(m.scrollSize, false)
		case tea.MouseWheelUp:
			m.engine.ScrollBy(-m.scrollSize, false)
		}
	case measuredMsg:
		// Measurements taken at an older width are stale.
		if msg.width == m.width {
			m.engine.ReportHeight(msg.key, msg.height)
		}
	case renderedMsg:
		m.engine.RenderComplete()
	case ConfigChangedMsg:
		if err := m.engine.Configure(msg.Config); err != nil {
			slog.Error("Failed to apply list configuration", "error", err)
		}
	}
	return m, m.flush()
}

// flush runs the engine's scheduled work and returns the commands the host
// callbacks produced.
func (m *Model) flush() tea.Cmd {
	m.engine.Flush()
	cmds := m.cmds
	m.cmds = nil
	return tea.Batch(cmds...)
}

func (m *Model) View() tea.View {
	return tea.NewView(m.content())
}

// content is the plain frame View wraps in a layer. It is empty until the
// list has a size.
func (m *Model) content() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	return m.render()
}

func (m *Model) render() string {
	rows := m.viewportHeight()
	lines := make([]string, rows)
	for _, c := range m.cells {
		if c.State != virt.CellActive || !c.Visible {
			continue
		}
		if c.Top+c.Height <= m.offset || c.Top >= m.offset+rows {
			continue
		}
		view := strings.Split(m.entryView(c.ItemKey), "\n")
		for i := range min(len(view), c.Height) {
			if y := c.Top - m.offset + i; y >= 0 && y < rows {
				lines[y] = view[i]
			}
		}
	}
	return strings.Join(append(lines, m.statusLine()), "\n")
}

func (m *Model) entryView(key string) string {
	if cached, ok := m.viewCache.Get(key); ok {
		return cached
	}
	view := strings.Join(renderEntry(m.entries[key], m.width, key == m.focused), "\n")
	m.viewCache.Set(key, view)
	return view
}

func (m *Model) statusLine() string {
	if m.showHelp {
		return ansi.Truncate(m.help.View(m.keyMap), m.width, "…")
	}
	s := m.engine.Snapshot()
	status := fmt.Sprintf("%d entries · block %d+%d · cells %d active %d pooled · phantom %d · %d/%d",
		len(m.order), s.ItemsAbove, s.ItemsInBlock, s.ActiveCells, s.PooledCells,
		s.PhantomOffset, m.offset, max(m.container-m.viewportHeight(), 0))
	return statusStyle.Render(ansi.Truncate(status, m.width, "…"))
}

func (m *Model) viewportHeight() int {
	return max(m.height-1, 0)
}

// SetSize resizes the list. The last row is kept for the status line.
func (m *Model) SetSize(width, height int) {
	if width != m.width {
		m.viewCache.Reset()
	}
	m.width, m.height = width, height
	m.engine.Resize(width, m.viewportHeight())
}

func (m *Model) GetSize() (int, int) {
	return m.width, m.height
}

// SetEntries replaces the list content.
func (m *Model) SetEntries(entries []Entry) {
	m.order = entries
	m.entries = make(map[string]Entry, len(entries))
	items := make([]virt.Item, len(entries))
	for i, e := range entries {
		m.entries[e.ID] = e
		items[i] = e.Item()
	}
	m.viewCache.Reset()
	m.engine.SetItems(items)
}

func (m *Model) Entries() []Entry {
	return m.order
}

func (m *Model) Engine() *virt.Engine {
	return m.engine
}

func (m *Model) Offset() int {
	return m.offset
}

func (m *Model) Focused() string {
	return m.focused
}

// Mount implements virt.Host.
func (m *Model) Mount(c virt.Cell) {
	m.cells[c.SlotID] = c
}

// Reposition implements virt.Host. Terminal cells jump into place, there is
// nothing to animate.
func (m *Model) Reposition(c virt.Cell, _ bool) {
	if prev, ok := m.cells[c.SlotID]; ok && prev.ItemKey != c.ItemKey {
		m.viewCache.Del(prev.ItemKey)
	}
	m.cells[c.SlotID] = c
}

// Unmount implements virt.Host.
func (m *Model) Unmount(c virt.Cell) {
	delete(m.cells, c.SlotID)
	m.viewCache.Del(c.ItemKey)
}

// Measure implements virt.Host. Wrapping runs in a command so long
// paragraphs never block the update loop.
func (m *Model) Measure(c virt.Cell) {
	entry, ok := m.entries[c.ItemKey]
	if !ok {
		return
	}
	width, measurer := m.width, m.measurer
	m.cmds = append(m.cmds, func() tea.Msg {
		return measuredMsg{key: entry.ID, width: width, height: measurer.height(entry, width)}
	})
}

// SetContainerHeight implements virt.Host.
func (m *Model) SetContainerHeight(height int) {
	m.container = height
}

// ScrollTo implements virt.Host.
func (m *Model) ScrollTo(top int, _ bool) {
	m.offset = top
}

// Focus implements virt.Host.
func (m *Model) Focus(key string) {
	m.viewCache.Del(m.focused)
	m.viewCache.Del(key)
	m.focused = key
}

// RenderRequested implements virt.Host.
func (m *Model) RenderRequested() {
	m.cmds = append(m.cmds, func() tea.Msg {
		return renderedMsg{}
	})
}
