package legal

import (
	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

// Tally counts sightings per object type and remembers first-seen order.
// It is never reset during a session.
type Tally struct {
	order  []string
	counts map[string]int
}

func NewTally(seed ...string) *Tally {
	t := &Tally{counts: map[string]int{}}
	for _, s := range seed {
		t.Add(s)
	}
	return t
}

func (t *Tally) Add(objectType string) {
	if _, ok := t.counts[objectType]; !ok {
		t.order = append(t.order, objectType)
	}
	t.counts[objectType]++
}

func (t *Tally) Has(objectType string) bool {
	_, ok := t.counts[objectType]
	return ok
}

func (t *Tally) Count(objectType string) int { return t.counts[objectType] }

// Types lists every type seen so far in first-seen order.
func (t *Tally) Types() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Classifier runs once per step over the whole scene.
type Classifier struct {
	Navigable    *Tally
	Interactable *Tally
}

func NewClassifier(seedNavigable []string) *Classifier {
	return &Classifier{
		Navigable:    NewTally(seedNavigable...),
		Interactable: NewTally(),
	}
}

// Update assesses every object from the agent position and accumulates the
// navigable and interactable tallies. containerTypes are the content types of
// the currently open container; visible objects of those types are
// interactable even when not navigable.
func (c *Classifier) Update(objects []scene.ObjectDescriptor, agent geom.Point3D, containerTypes []string) []Assessment {
	inContainer := make(map[string]struct{}, len(containerTypes))
	for _, t := range containerTypes {
		inContainer[t] = struct{}{}
	}

	out := make([]Assessment, 0, len(objects))
	for _, obj := range objects {
		if obj.Type == scene.FloorType {
			continue
		}
		a := Assess(obj, agent)
		out = append(out, a)
		if a.Navigable {
			c.Navigable.Add(a.ObjectType)
		}
		_, contained := inContainer[a.ObjectType]
		if a.Navigable || (a.Visible && contained) {
			c.Interactable.Add(a.ObjectType)
		}
	}
	return out
}

func (c *Classifier) Vocabulary() (navigations, interactions []string) {
	return c.Navigable.Types(), c.Interactable.Types()
}
