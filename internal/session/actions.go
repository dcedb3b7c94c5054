package session

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAction = errors.New("unknown action")

type ActionKind int

const (
	ActionInit ActionKind = iota
	ActionNavigateTo
	ActionPickup
	ActionPut
	ActionToggle
	ActionOpen
	ActionClose
	ActionObserve
	ActionMoveForward
	ActionEnd

	numActionKinds
)

type actionSpec struct {
	name string
	// aliases are accepted by ParseDecision in addition to name.
	aliases []string
	// navigation targets must be legal navigations, interaction targets legal
	// interactions; kinds with neither take no target.
	navigation  bool
	interaction bool
}

var actionSpecs = [numActionKinds]actionSpec{
	ActionInit:        {name: "init"},
	ActionNavigateTo:  {name: "navigate to", navigation: true},
	ActionPickup:      {name: "pickup", interaction: true},
	ActionPut:         {name: "put", aliases: []string{"put in"}, interaction: true},
	ActionToggle:      {name: "toggle", interaction: true},
	ActionOpen:        {name: "open", interaction: true},
	ActionClose:       {name: "close", interaction: true},
	ActionObserve:     {name: "observe"},
	ActionMoveForward: {name: "move forward"},
	ActionEnd:         {name: "end"},
}

func (k ActionKind) String() string {
	if k < 0 || k >= numActionKinds {
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
	return actionSpecs[k].name
}

func (k ActionKind) Valid() bool { return k >= 0 && k < numActionKinds }

// NeedsTarget reports whether the kind is directed at an object type.
func (k ActionKind) NeedsTarget() bool {
	s := actionSpecs[k]
	return s.navigation || s.interaction
}

// Decision is one parsed step of a plan, e.g. "navigate to Fridge".
type Decision struct {
	Kind   ActionKind `json:"kind"`
	Target string     `json:"target,omitempty"`
}

func (d Decision) String() string {
	if d.Target == "" {
		return d.Kind.String()
	}
	return d.Kind.String() + " " + d.Target
}

// ParseDecision matches the longest action name that prefixes text. Anything
// after the name is the target object type.
func ParseDecision(text string) (Decision, error) {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	best, bestLen := ActionKind(-1), 0
	for k := ActionKind(0); k < numActionKinds; k++ {
		names := append([]string{actionSpecs[k].name}, actionSpecs[k].aliases...)
		for _, n := range names {
			if len(n) <= bestLen || !strings.HasPrefix(lower, n) {
				continue
			}
			if len(lower) > len(n) && lower[len(n)] != ' ' {
				continue
			}
			best, bestLen = k, len(n)
		}
	}
	if best < 0 {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownAction, text)
	}
	d := Decision{Kind: best, Target: strings.TrimSpace(t[bestLen:])}
	if d.Kind.NeedsTarget() && d.Target == "" {
		return Decision{}, fmt.Errorf("%s: missing target", d.Kind)
	}
	if !d.Kind.NeedsTarget() {
		d.Target = ""
	}
	return d, nil
}
