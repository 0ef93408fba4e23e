package dynamics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/engine"
)

func TestContactKeyCanonicalization(t *testing.T) {
	a, b := engine.Entity(7), engine.Entity(3)

	k1 := MakeContactKey(a, b)
	k2 := MakeContactKey(b, a)

	if k1 != k2 {
		t.Errorf("Expected identical keys, got %v and %v", k1, k2)
	}
	if k1.A != 3 || k1.B != 7 {
		t.Errorf("Expected key ordered (3,7), got (%v,%v)", k1.A, k1.B)
	}
}

func TestContactKeyOther(t *testing.T) {
	k := MakeContactKey(3, 7)
	if k.Other(3) != 7 || k.Other(7) != 3 {
		t.Error("Other should return the opposite member of the pair")
	}
}

func manifold(a, b engine.Entity, points int) *Manifold {
	m := &Manifold{Key: MakeContactKey(a, b)}
	for i := 0; i < points; i++ {
		m.Points = append(m.Points, ContactPoint{Normal: mgl32.Vec3{0, 1, 0}})
	}
	return m
}

func TestTrackerEnterExit(t *testing.T) {
	tracker := NewContactTracker()

	var enters, exits []ContactKey
	enter := func(k ContactKey) { enters = append(enters, k) }
	exit := func(k ContactKey) { exits = append(exits, k) }

	tracker.Observe(manifold(1, 2, 1))
	tracker.Flush(enter, exit)

	if len(enters) != 1 || len(exits) != 0 {
		t.Fatalf("Expected 1 enter and 0 exits, got %d and %d", len(enters), len(exits))
	}
	if !tracker.InContact(1, 2) {
		t.Error("pair should be in contact after flush")
	}

	// Pair separates.
	tracker.Flush(enter, exit)

	if len(enters) != 1 || len(exits) != 1 {
		t.Errorf("Expected 1 enter and 1 exit, got %d and %d", len(enters), len(exits))
	}
	if tracker.InContact(1, 2) {
		t.Error("pair should no longer be in contact")
	}
}

func TestTrackerNoDuplicateEnters(t *testing.T) {
	tracker := NewContactTracker()

	enters := 0
	enter := func(ContactKey) { enters++ }

	for i := 0; i < 50; i++ {
		tracker.Observe(manifold(1, 2, 1))
		tracker.Flush(enter, nil)
	}

	if enters != 1 {
		t.Errorf("Expected exactly 1 enter across continuous contact, got %d", enters)
	}
}

func TestTrackerMultipleManifoldsSameKey(t *testing.T) {
	tracker := NewContactTracker()

	enters := 0
	tracker.Observe(manifold(1, 2, 1))
	tracker.Observe(manifold(2, 1, 2))
	tracker.Flush(func(ContactKey) { enters++ }, nil)

	if enters != 1 {
		t.Errorf("Expected multiple manifolds of one pair to produce 1 enter, got %d", enters)
	}
}

func TestTrackerSkipsEmptyManifolds(t *testing.T) {
	tracker := NewContactTracker()

	enters := 0
	tracker.Observe(manifold(1, 2, 0))
	tracker.Flush(func(ContactKey) { enters++ }, nil)

	if enters != 0 {
		t.Errorf("Expected zero-point manifold to be ignored, got %d enters", enters)
	}
}

func TestTrackerForget(t *testing.T) {
	tracker := NewContactTracker()

	tracker.Observe(manifold(1, 2, 1))
	tracker.Observe(manifold(1, 3, 1))
	tracker.Flush(nil, nil)

	tracker.Forget(2)

	exits := 0
	tracker.Observe(manifold(1, 3, 1))
	tracker.Flush(nil, func(ContactKey) { exits++ })

	if exits != 0 {
		t.Errorf("Expected no exits after Forget, got %d", exits)
	}

	others := tracker.ContactsOf(1)
	if len(others) != 1 || others[0] != 3 {
		t.Errorf("Expected entity 1 touching only 3, got %v", others)
	}
}
