package gate

import (
	"fmt"
	"slices"
)

// SelectionHooks receive selection notifications. Nil fields are skipped.
type SelectionHooks struct {
	OnSelectionChanged func(selected []string)
	OnComplete         func()
}

// SelectionGate asks the user to pick exactly Required options.
type SelectionGate struct {
	options   []string
	required  int
	selected  map[string]bool
	completed bool
	hooks     SelectionHooks
}

// NewSelection returns a gate over options requiring exactly required picks.
func NewSelection(options []string, required int, hooks SelectionHooks) (*SelectionGate, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("selection gate needs at least one option")
	}
	if required < 1 || required > len(options) {
		return nil, fmt.Errorf("required selections must be in [1,%d], got %d", len(options), required)
	}
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if o == "" {
			return nil, fmt.Errorf("empty selection option")
		}
		if seen[o] {
			return nil, fmt.Errorf("duplicate selection option %q", o)
		}
		seen[o] = true
	}
	return &SelectionGate{
		options:  slices.Clone(options),
		required: required,
		selected: make(map[string]bool),
		hooks:    hooks,
	}, nil
}

// Options returns the available choices in order.
func (g *SelectionGate) Options() []string { return slices.Clone(g.options) }

// Required returns how many options must be selected.
func (g *SelectionGate) Required() int { return g.required }

// Toggle flips the selection of id and reports whether it is now selected.
// Unknown ids are ignored.
func (g *SelectionGate) Toggle(id string) bool {
	if !slices.Contains(g.options, id) {
		return false
	}
	if g.selected[id] {
		delete(g.selected, id)
	} else {
		g.selected[id] = true
	}
	if g.hooks.OnSelectionChanged != nil {
		g.hooks.OnSelectionChanged(g.Selected())
	}
	return g.selected[id]
}

// Selected returns the selected options in option order.
func (g *SelectionGate) Selected() []string {
	out := make([]string, 0, len(g.selected))
	for _, o := range g.options {
		if g.selected[o] {
			out = append(out, o)
		}
	}
	return out
}

// Ready reports whether Confirm would succeed.
func (g *SelectionGate) Ready() bool { return len(g.selected) == g.required }

// Completed reports whether a selection has been confirmed.
func (g *SelectionGate) Completed() bool { return g.completed }

// Confirm completes the gate when exactly Required options are selected.
func (g *SelectionGate) Confirm() bool {
	if !g.Ready() {
		return false
	}
	g.completed = true
	if g.hooks.OnComplete != nil {
		g.hooks.OnComplete()
	}
	return true
}

// Reset clears the selection. A confirmed gate stays completed.
func (g *SelectionGate) Reset() {
	clear(g.selected)
	if g.hooks.OnSelectionChanged != nil {
		g.hooks.OnSelectionChanged(nil)
	}
}
