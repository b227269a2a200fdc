package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/charmbracelet/vlist/internal/virt"
	"github.com/charmbracelet/x/exp/slice"
	"github.com/google/uuid"
)

// maxSettlePasses bounds a settle step.
const maxSettlePasses = 64

// HostStats counts what the engine asked of the host so far.
type HostStats struct {
	Mounts    int    `json:"mounts" yaml:"mounts"`
	Unmounts  int    `json:"unmounts" yaml:"unmounts"`
	Moves     int    `json:"moves" yaml:"moves"`
	Animated  int    `json:"animated_moves" yaml:"animated_moves"`
	Measures  int    `json:"measures" yaml:"measures"`
	Renders   int    `json:"renders" yaml:"renders"`
	Container int    `json:"container" yaml:"container"`
	ScrollTop int    `json:"scroll_top" yaml:"scroll_top"`
	Focused   string `json:"focused,omitempty" yaml:"focused,omitempty"`
}

// Frame is the state after one step.
type Frame struct {
	Step      int           `json:"step" yaml:"step"`
	Action    string        `json:"action" yaml:"action"`
	Snapshot  virt.Snapshot `json:"snapshot" yaml:"snapshot"`
	Host      HostStats     `json:"host" yaml:"host"`
	Invariant string        `json:"invariant,omitempty" yaml:"invariant,omitempty"`
}

// recorder is a host that keeps no views, only counts.
type recorder struct {
	stats   HostStats
	pending []string
}

func (r *recorder) Mount(virt.Cell)   { r.stats.Mounts++ }
func (r *recorder) Unmount(virt.Cell) { r.stats.Unmounts++ }

func (r *recorder) Reposition(_ virt.Cell, animate bool) {
	r.stats.Moves++
	if animate {
		r.stats.Animated++
	}
}

func (r *recorder) Measure(c virt.Cell) {
	r.stats.Measures++
	r.pending = append(r.pending, c.ItemKey)
}

func (r *recorder) SetContainerHeight(h int) { r.stats.Container = h }
func (r *recorder) ScrollTo(top int, _ bool) { r.stats.ScrollTop = top }
func (r *recorder) Focus(key string)         { r.stats.Focused = key }
func (r *recorder) RenderRequested()         { r.stats.Renders++ }

// takePending returns the outstanding measurement requests once each.
func (r *recorder) takePending() []string {
	keys := slice.Uniq(r.pending)
	r.pending = nil
	return keys
}

type keyName string

func (k keyName) String() string { return string(k) }

// Runner plays a scenario step by step.
type Runner struct {
	sc     *Scenario
	engine *virt.Engine
	host   *recorder
	items  []virt.Item
	ids    map[string]int
}

func NewRunner(sc *Scenario) (*Runner, error) {
	opts := []virt.Option{}
	if n := sc.Settings.PoolCapacity; n != nil {
		opts = append(opts, virt.WithPoolCapacity(*n))
	}
	if n := sc.Settings.MaxSimultaneousMeasures; n != nil {
		opts = append(opts, virt.WithMaxSimultaneousMeasures(*n))
	}
	if sc.Settings.Strict {
		opts = append(opts, virt.WithStrict())
	}
	host := &recorder{}
	engine, err := virt.New(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	r := &Runner{
		sc:     sc,
		engine: engine,
		host:   host,
		ids:    make(map[string]int),
	}
	r.setItems(sc.Items)
	engine.Flush()
	return r, nil
}

// Key returns the item key for id.
func (r *Runner) Key(id int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "vlist:%s/%d", r.sc.Name, id)).String()
}

func (r *Runner) Engine() *virt.Engine {
	return r.engine
}

// Run plays every step and returns a frame per step.
func (r *Runner) Run(ctx context.Context) ([]Frame, error) {
	frames := make([]Frame, 0, len(r.sc.Steps))
	for i, step := range r.sc.Steps {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		frame, err := r.Step(i+1, step)
		if err != nil {
			return frames, fmt.Errorf("step %d: %w", i+1, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Step applies one step and flushes the engine's scheduled work. In strict
// mode a broken invariant comes back as an error.
func (r *Runner) Step(n int, step Step) (frame Frame, err error) {
	action, err := step.Action()
	if err != nil {
		return Frame{}, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			perr, ok := rec.(error)
			if !ok || !errors.Is(perr, virt.ErrInvariant) {
				panic(rec)
			}
			err = perr
		}
	}()

	slog.Debug("Scenario step", "step", n, "action", action)
	r.apply(step)
	r.engine.Flush()

	frame = Frame{
		Step:     n,
		Action:   action,
		Snapshot: r.engine.Snapshot(),
		Host:     r.host.stats,
	}
	if err := r.engine.CheckInvariants(); err != nil {
		frame.Invariant = err.Error()
	}
	return frame, nil
}

func (r *Runner) apply(step Step) {
	e := r.engine
	switch {
	case step.Resize != nil:
		e.Resize(step.Resize.Width, step.Resize.Height)
	case step.Scroll != nil:
		e.Scroll(*step.Scroll, 0)
		r.host.stats.ScrollTop = *step.Scroll
	case step.ScrollBy != nil:
		e.ScrollBy(*step.ScrollBy, false)
	case step.ScrollTo != nil:
		e.ScrollToKey(r.Key(*step.ScrollTo), false)
	case step.Items != nil:
		r.setItems(*step.Items)
	case len(step.Remove) > 0:
		r.remove(step.Remove)
	case step.Measure != nil:
		r.measure(*step.Measure)
	case step.Render > 0:
		r.render(step.Render)
	case step.Settle:
		r.settle()
	case step.Animate == "start":
		e.AnimationStarted(r.sc.Name)
	case step.Animate == "stop":
		e.AnimationStopped(r.sc.Name)
	case step.Focus != nil:
		if step.Focus.Select != nil {
			e.SelectAndFocus(r.Key(*step.Focus.Select))
		} else {
			e.HandleKey(keyName(step.Focus.Move))
		}
	case step.A11y != nil:
		e.SetAccessibilityMode(*step.A11y)
	}
}

func (r *Runner) setItems(set ItemSet) {
	r.items = make([]virt.Item, set.Count)
	clear(r.ids)
	for i := range set.Count {
		id := set.From + i
		key := r.Key(id)
		r.ids[key] = id
		r.items[i] = virt.Item{
			Key:           key,
			Height:        set.Height,
			MeasureHeight: set.Measure,
			Template:      set.Template,
			Navigable:     set.Nav,
		}
	}
	r.engine.SetItems(r.items)
}

func (r *Runner) remove(ids []int) {
	r.items = slices.DeleteFunc(slices.Clone(r.items), func(it virt.Item) bool {
		return slices.Contains(ids, r.ids[it.Key])
	})
	for _, id := range ids {
		delete(r.ids, r.Key(id))
	}
	r.engine.SetItems(r.items)
}

func (r *Runner) measure(m Measure) {
	if !m.Pending {
		for _, id := range m.IDs {
			r.engine.ReportHeight(r.Key(id), m.Height)
		}
		return
	}
	for _, key := range r.host.takePending() {
		id, ok := r.ids[key]
		if !ok {
			continue
		}
		r.engine.ReportHeight(key, m.Height+id%(m.Vary+1))
	}
}

// render plays up to n render passes of the host.
func (r *Runner) render(n int) {
	for range n {
		r.engine.Flush()
		if !r.engine.IsDirty() {
			return
		}
		r.engine.RenderComplete()
	}
}

func (r *Runner) settle() {
	r.render(maxSettlePasses)
}
