// Package sim drives the virtualization engine through scripted scenarios
// against a recording host, so layout behavior can be replayed and diffed
// without a terminal.
package sim

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted session against the engine.
type Scenario struct {
	Name     string   `yaml:"name"`
	Settings Settings `yaml:"settings,omitempty"`
	Items    ItemSet  `yaml:"items"`
	Steps    []Step   `yaml:"steps"`
}

// Settings overrides parts of the engine configuration.
type Settings struct {
	PoolCapacity            *int `yaml:"pool_capacity,omitempty"`
	MaxSimultaneousMeasures *int `yaml:"max_simultaneous_measures,omitempty"`
	Strict                  bool `yaml:"strict,omitempty"`
}

// ItemSet describes a run of generated items. Item ids start at From; the
// key of an item is derived from the scenario name and its id.
type ItemSet struct {
	From     int    `yaml:"from,omitempty"`
	Count    int    `yaml:"count"`
	Height   int    `yaml:"height"`
	Template string `yaml:"template,omitempty"`
	// Measure marks the items as needing measurement; Height is only the
	// guess then.
	Measure bool `yaml:"measure,omitempty"`
	// Nav marks the items as keyboard navigable.
	Nav bool `yaml:"nav,omitempty"`
}

type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Measure answers measurement requests. With Pending set every outstanding
// request is answered, with heights Height + id % (Vary+1); otherwise the
// items named in IDs report Height.
type Measure struct {
	Pending bool  `yaml:"pending,omitempty"`
	IDs     []int `yaml:"ids,omitempty"`
	Height  int   `yaml:"height"`
	Vary    int   `yaml:"vary,omitempty"`
}

type Focus struct {
	Select *int   `yaml:"select,omitempty"`
	Move   string `yaml:"move,omitempty"`
}

// Step is a single action. Exactly one field must be set.
type Step struct {
	Resize   *Size    `yaml:"resize,omitempty"`
	Scroll   *int     `yaml:"scroll,omitempty"`
	ScrollBy *int     `yaml:"scroll_by,omitempty"`
	ScrollTo *int     `yaml:"scroll_to,omitempty"`
	Items    *ItemSet `yaml:"items,omitempty"`
	Remove   []int    `yaml:"remove,omitempty"`
	Measure  *Measure `yaml:"measure,omitempty"`
	Render   int      `yaml:"render,omitempty"`
	Settle   bool     `yaml:"settle,omitempty"`
	Animate  string   `yaml:"animate,omitempty"`
	Focus    *Focus   `yaml:"focus,omitempty"`
	A11y     *bool    `yaml:"a11y,omitempty"`
}

// Action names the action of the step, or returns an error when the step
// sets none or more than one.
func (s Step) Action() (string, error) {
	var set []string
	add := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	add(s.Resize != nil, "resize")
	add(s.Scroll != nil, "scroll")
	add(s.ScrollBy != nil, "scroll_by")
	add(s.ScrollTo != nil, "scroll_to")
	add(s.Items != nil, "items")
	add(len(s.Remove) > 0, "remove")
	add(s.Measure != nil, "measure")
	add(s.Render > 0, "render")
	add(s.Settle, "settle")
	add(s.Animate != "", "animate")
	add(s.Focus != nil, "focus")
	add(s.A11y != nil, "a11y")
	switch len(set) {
	case 0:
		return "", errors.New("step has no action")
	case 1:
		return set[0], nil
	default:
		return "", fmt.Errorf("step has more than one action: %s", strings.Join(set, ", "))
	}
}

// Parse decodes a YAML scenario and checks its steps.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if sc.Name == "" {
		sc.Name = "scenario"
	}
	if err := sc.Items.validate(); err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	for i, step := range sc.Steps {
		if _, err := step.Action(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if step.Items != nil {
			if err := step.Items.validate(); err != nil {
				return nil, fmt.Errorf("step %d: items: %w", i+1, err)
			}
		}
		if step.Animate != "" && step.Animate != "start" && step.Animate != "stop" {
			return nil, fmt.Errorf("step %d: animate must be start or stop, got %q", i+1, step.Animate)
		}
		if f := step.Focus; f != nil && f.Select == nil && f.Move != "up" && f.Move != "down" {
			return nil, fmt.Errorf("step %d: focus needs select or a move of up or down", i+1)
		}
	}
	return &sc, nil
}

func (s ItemSet) validate() error {
	switch {
	case s.Count < 0:
		return fmt.Errorf("count must be non-negative, got %d", s.Count)
	case s.From < 0:
		return fmt.Errorf("from must be non-negative, got %d", s.From)
	case s.Count > 0 && s.Height < 1:
		return fmt.Errorf("height must be positive, got %d", s.Height)
	}
	return nil
}
