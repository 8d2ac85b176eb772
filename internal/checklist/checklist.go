// Package checklist holds the checkout checklist attached to a booking.
package checklist

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownItem = errors.New("unknown checklist item")

// Item is one checkout task.
type Item struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// DefaultItems is the house's checkout routine, in display order.
var DefaultItems = []Item{
	{ID: "empty_trash", Label: "Tøm skraldespande"},
	{ID: "lock_doors", Label: "Lås alle døre"},
	{ID: "turn_on_alarm", Label: "Slå alarmen til"},
	{ID: "close_windows", Label: "Luk alle vinduer"},
	{ID: "turn_off_heat", Label: "Skru ned for varmen"},
	{ID: "clean_kitchen", Label: "Gør køkkenet rent"},
}

// Checklist maps task ids to done flags. Missing keys are not done.
type Checklist map[string]bool

// Done reports the flag for id, false when absent.
func (c Checklist) Done(id string) bool {
	return c[id]
}

// Toggle returns a copy of c with id flipped. c is left untouched.
func (c Checklist) Toggle(id string) Checklist {
	out := make(Checklist, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[id] = !c[id]
	return out
}

// UnmarshalJSON treats null as an empty checklist.
func (c *Checklist) UnmarshalJSON(b []byte) error {
	m := map[string]bool{}
	if string(b) != "null" {
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("decode checklist: %w", err)
		}
	}
	*c = m
	return nil
}

// MarshalJSON never emits null.
func (c Checklist) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]bool(c))
}

// Progress is the derived completion state over a list of items.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
	Complete  bool    `json:"complete"`
}

// Template is the ordered set of items a checklist is evaluated against.
type Template struct {
	items []Item
	index map[string]int
}

// NewTemplate validates items. An empty list falls back to DefaultItems.
func NewTemplate(items []Item) (*Template, error) {
	if len(items) == 0 {
		items = DefaultItems
	}
	t := &Template{items: make([]Item, len(items)), index: make(map[string]int, len(items))}
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("checklist item[%d]: id is required", i)
		}
		if _, dup := t.index[it.ID]; dup {
			return nil, fmt.Errorf("checklist item[%d]: duplicate id %q", i, it.ID)
		}
		if it.Label == "" {
			it.Label = it.ID
		}
		t.items[i] = it
		t.index[it.ID] = i
	}
	return t, nil
}

// Default is the template built from DefaultItems.
func Default() *Template {
	t, _ := NewTemplate(DefaultItems)
	return t
}

// Items returns the items in display order.
func (t *Template) Items() []Item {
	return append([]Item(nil), t.items...)
}

// Has reports whether id belongs to the template.
func (t *Template) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Toggle flips id, rejecting ids outside the template.
func (t *Template) Toggle(c Checklist, id string) (Checklist, error) {
	if !t.Has(id) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}
	return c.Toggle(id), nil
}

// Progress counts the template items marked done in c. Keys outside the
// template are ignored.
func (t *Template) Progress(c Checklist) Progress {
	p := Progress{Total: len(t.items)}
	for _, it := range t.items {
		if c.Done(it.ID) {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Fraction = float64(p.Completed) / float64(p.Total)
	}
	p.Complete = p.Total > 0 && p.Completed == p.Total
	return p
}
