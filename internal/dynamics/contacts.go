package dynamics

import (
	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/engine"
)

// ContactKey identifies an unordered entity pair. A is always the lower
// id, so both orderings of a pair map to the same key.
type ContactKey struct {
	A, B engine.Entity
}

func MakeContactKey(a, b engine.Entity) ContactKey {
	if b < a {
		a, b = b, a
	}
	return ContactKey{A: a, B: b}
}

// Other returns the pair member that is not e.
func (k ContactKey) Other(e engine.Entity) engine.Entity {
	if k.A == e {
		return k.B
	}
	return k.A
}

// ContactPoint is one narrow-phase contact. The normal points from B
// toward A under the key's canonical ordering.
type ContactPoint struct {
	WorldPosition mgl32.Vec3
	Normal        mgl32.Vec3
	Depth         float32
}

// Manifold is the set of contact points for one pair during one step.
type Manifold struct {
	Key    ContactKey
	Points []ContactPoint
}

// ContactTracker diffs the contact set between consecutive simulation
// steps to produce enter and exit notifications. Observe is called for
// every manifold the step produced, then Flush compares against the
// previous step and swaps the sets.
type ContactTracker struct {
	current  map[ContactKey]struct{}
	previous map[ContactKey]struct{}
}

func NewContactTracker() *ContactTracker {
	return &ContactTracker{
		current:  make(map[ContactKey]struct{}),
		previous: make(map[ContactKey]struct{}),
	}
}

// Observe records that a pair is touching this step. Manifolds that carry
// no points are kept by some broad phases for caching; they do not
// constitute contact and are skipped.
func (t *ContactTracker) Observe(m *Manifold) {
	if m == nil || len(m.Points) == 0 {
		return
	}
	t.current[m.Key] = struct{}{}
}

// Flush reports pairs present now but not last step to enter, and pairs
// present last step but not now to exit, then promotes the current set.
// Either callback may be nil.
func (t *ContactTracker) Flush(enter, exit func(ContactKey)) {
	for key := range t.current {
		if _, ok := t.previous[key]; !ok && enter != nil {
			enter(key)
		}
	}
	for key := range t.previous {
		if _, ok := t.current[key]; !ok && exit != nil {
			exit(key)
		}
	}
	t.previous, t.current = t.current, t.previous
	clear(t.current)
}

// InContact reports whether the pair was touching as of the last Flush.
func (t *ContactTracker) InContact(a, b engine.Entity) bool {
	_, ok := t.previous[MakeContactKey(a, b)]
	return ok
}

// Contacts returns every pair touching as of the last Flush.
func (t *ContactTracker) Contacts() []ContactKey {
	out := make([]ContactKey, 0, len(t.previous))
	for key := range t.previous {
		out = append(out, key)
	}
	return out
}

// ContactsOf returns the entities touching e as of the last Flush.
func (t *ContactTracker) ContactsOf(e engine.Entity) []engine.Entity {
	var out []engine.Entity
	for key := range t.previous {
		if key.A == e || key.B == e {
			out = append(out, key.Other(e))
		}
	}
	return out
}

// Forget drops every pair involving e from both sets without firing exit
// notifications. Used when an entity is destroyed mid-frame.
func (t *ContactTracker) Forget(e engine.Entity) {
	for key := range t.current {
		if key.A == e || key.B == e {
			delete(t.current, key)
		}
	}
	for key := range t.previous {
		if key.A == e || key.B == e {
			delete(t.previous, key)
		}
	}
}
