package list

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/charmbracelet/vlist/internal/csync"
	"github.com/charmbracelet/vlist/internal/virt"
	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
	"github.com/rivo/uniseg"
	"github.com/zeebo/xxh3"
)

const (
	headerTemplate    = "header"
	paragraphTemplate = "paragraph"

	// paragraphGuess is the height assumed for a paragraph until it has
	// been measured: a title line and two lines of body.
	paragraphGuess = 3
	gutterWidth    = 2
	sectionEvery   = 12
)

// Entry is one row of the demo list: a section header or a paragraph whose
// height depends on the terminal width.
type Entry struct {
	ID      string
	Title   string
	Body    string
	Header  bool
	Section int
}

// Item describes the entry to the engine.
func (e Entry) Item() virt.Item {
	if e.Header {
		return virt.Item{Key: e.ID, Height: 1, Template: headerTemplate}
	}
	return virt.Item{
		Key:           e.ID,
		Height:        paragraphGuess,
		MeasureHeight: true,
		Template:      paragraphTemplate,
		Navigable:     true,
	}
}

// measurer computes entry heights, caching them by content and width.
type measurer struct {
	cache *csync.Map[uint64, int]
}

func newMeasurer() *measurer {
	return &measurer{cache: csync.NewMap[uint64, int]()}
}

func (m *measurer) height(e Entry, width int) int {
	if e.Header {
		return 1
	}
	sum := xxh3.HashString(strconv.Itoa(width) + "\x00" + e.Title + "\x00" + e.Body)
	if h, ok := m.cache.Get(sum); ok {
		return h
	}
	h := 1 + len(wrap(e.Body, width-gutterWidth))
	m.cache.Set(sum, h)
	return h
}

// wrap breaks text into lines no wider than width cells. Words that do not
// fit on a line of their own are truncated.
func wrap(text string, width int) []string {
	if width <= 0 {
		return nil
	}
	var (
		lines     []string
		line      strings.Builder
		lineWidth int
	)
	for _, word := range strings.Fields(text) {
		w := uniseg.StringWidth(word)
		if w > width {
			word = ansi.Truncate(word, width, "…")
			w = uniseg.StringWidth(word)
		}
		switch {
		case lineWidth == 0:
		case lineWidth+1+w > width:
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		default:
			line.WriteByte(' ')
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += w
	}
	if lineWidth > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func renderEntry(e Entry, width int, focused bool) []string {
	if e.Header {
		title := ansi.Truncate(" "+e.Title+" ", max(width-4, 0), "…")
		rule := "──" + title + strings.Repeat("─", max(width-2-uniseg.StringWidth(title), 0))
		return []string{headerStyle(e.Section).Render(rule)}
	}

	gutter := strings.Repeat(" ", gutterWidth)
	if focused {
		gutter = focusStyle.Render("▌") + " "
	}
	lines := []string{gutter + titleStyle.Render(ansi.Truncate(e.Title, width-gutterWidth, "…"))}
	for _, l := range wrap(e.Body, width-gutterWidth) {
		lines = append(lines, gutter+bodyStyle.Render(l))
	}
	return lines
}

var words = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing
elit sed do eiusmod tempor incididunt ut labore et dolore magna aliqua enim ad
minim veniam quis nostrud exercitation ullamco laboris nisi aliquip ex ea
commodo consequat duis aute irure in reprehenderit voluptate velit esse cillum
fugiat nulla pariatur excepteur sint occaecat cupidatat non proident sunt culpa
qui officia deserunt mollit anim id est laborum`)

// Generate returns n deterministic entries for seed, with a section header
// every few paragraphs.
func Generate(n int, seed uint64) []Entry {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	ids := rngReader{rng}
	entries := make([]Entry, 0, n)
	section := 0
	for i := range n {
		id := uuid.Must(uuid.NewRandomFromReader(ids)).String()
		if i%sectionEvery == 0 {
			section++
			entries = append(entries, Entry{
				ID:      id,
				Title:   fmt.Sprintf("Section %d", section),
				Header:  true,
				Section: section,
			})
			continue
		}
		body := make([]string, 4+rng.IntN(60))
		for j := range body {
			body[j] = words[rng.IntN(len(words))]
		}
		entries = append(entries, Entry{
			ID:      id,
			Title:   fmt.Sprintf("Entry %d", i),
			Body:    strings.Join(body, " "),
			Section: section,
		})
	}
	return entries
}

type rngReader struct {
	rng *rand.Rand
}

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}
