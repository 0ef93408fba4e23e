package physics

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/dynamics"
	"phys3d/internal/engine"
)

const frame = 17 * time.Millisecond

func newTestSystem() (*engine.Scene, *engine.Dispatcher, *System) {
	scene := engine.NewScene("Test")
	dispatcher := engine.NewDispatcher()
	logger := log.New(io.Discard, "", 0)
	return scene, dispatcher, NewSystem(scene, dispatcher, dynamics.DefaultConfig(), logger)
}

func addFloor(t *testing.T, scene *engine.Scene, sys *System) engine.Entity {
	t.Helper()
	floor := scene.CreateEntity("floor")
	if err := sys.SetShape(floor, []dynamics.ShapePart{dynamics.BoxPart(mgl32.Vec3{10, 0.5, 10})}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if err := sys.SetRigidBodyParams(floor, dynamics.RigidBodyParams{Motion: dynamics.MotionStatic}); err != nil {
		t.Fatalf("SetRigidBodyParams failed: %v", err)
	}
	return floor
}

func addBall(t *testing.T, scene *engine.Scene, sys *System, y float32) engine.Entity {
	t.Helper()
	ball := scene.CreateEntity("ball")
	scene.SetTransform(ball, engine.Transform{
		Position: mgl32.Vec3{0, y, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	})
	if err := sys.SetShape(ball, []dynamics.ShapePart{dynamics.SpherePart(0.5)}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if err := sys.SetRigidBodyParams(ball, dynamics.RigidBodyParams{Motion: dynamics.MotionDynamic, Mass: 1}); err != nil {
		t.Fatalf("SetRigidBodyParams failed: %v", err)
	}
	return ball
}

func TestContactLifecycle(t *testing.T) {
	scene, dispatcher, sys := newTestSystem()
	floor := addFloor(t, scene, sys)
	ball := addBall(t, scene, sys, 3)

	var ballEnters, ballExits, floorEnters, floorExits int
	engine.Connect(dispatcher, ball, func(ev CollisionEnterEvent) {
		if ev.Self != ball || ev.Other != floor {
			t.Errorf("Bad enter event %+v", ev)
		}
		ballEnters++
	})
	engine.Connect(dispatcher, ball, func(ev CollisionExitEvent) { ballExits++ })
	engine.Connect(dispatcher, floor, func(ev CollisionEnterEvent) {
		if ev.Self != floor || ev.Other != ball {
			t.Errorf("Bad enter event %+v", ev)
		}
		floorEnters++
	})
	engine.Connect(dispatcher, floor, func(ev CollisionExitEvent) { floorExits++ })

	for i := 0; i < 120; i++ {
		sys.AdvanceFrame(frame)
	}

	if ballEnters != 1 || floorEnters != 1 {
		t.Fatalf("Expected 1 enter on each side, got ball=%d floor=%d", ballEnters, floorEnters)
	}
	if ballExits != 0 || floorExits != 0 {
		t.Fatalf("Expected no exits while resting, got ball=%d floor=%d", ballExits, floorExits)
	}
	if !sys.AreInContact(ball, floor) {
		t.Error("ball should be resting on the floor")
	}

	// Teleport the ball away through the scene graph.
	tr := scene.Transform(ball)
	tr.Position = mgl32.Vec3{50, 50, 50}
	scene.SetTransform(ball, tr)

	for i := 0; i < 5; i++ {
		sys.AdvanceFrame(frame)
	}

	if ballExits != 1 || floorExits != 1 {
		t.Errorf("Expected 1 exit on each side after teleport, got ball=%d floor=%d", ballExits, floorExits)
	}
	if ballEnters != 1 || floorEnters != 1 {
		t.Errorf("Expected no further enters while separated, got ball=%d floor=%d", ballEnters, floorEnters)
	}
	if sys.AreInContact(ball, floor) {
		t.Error("teleported ball should not be in contact")
	}
}

func TestDynamicTransformWrittenBack(t *testing.T) {
	scene, _, sys := newTestSystem()
	ball := addBall(t, scene, sys, 10)

	scene.SetTransform(ball, engine.Transform{
		Position: mgl32.Vec3{0, 10, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{2, 2, 2},
	})

	for i := 0; i < 30; i++ {
		sys.AdvanceFrame(frame)
	}

	tr := scene.Transform(ball)
	if tr.Position.Y() >= 10 {
		t.Errorf("Expected falling ball's scene transform to drop below 10, got %v", tr.Position.Y())
	}
	if !tr.Scale.ApproxEqual(mgl32.Vec3{2, 2, 2}) {
		t.Errorf("Expected scale untouched by write-back, got %v", tr.Scale)
	}
}

func TestShapeFallbackFollowsAabb(t *testing.T) {
	scene, _, sys := newTestSystem()

	crate := scene.CreateEntity("crate")
	scene.SetAabb(crate, engine.Aabb{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}})

	if err := sys.SetShape(crate, nil); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if err := sys.SetRigidBodyParams(crate, dynamics.RigidBodyParams{Motion: dynamics.MotionStatic}); err != nil {
		t.Fatalf("SetRigidBodyParams failed: %v", err)
	}

	probe := addBall(t, scene, sys, 1.2)
	sys.AdvanceFrame(frame)
	if !sys.AreInContact(crate, probe) {
		t.Fatal("probe at y=1.2 should touch the 2x2x2 fallback box")
	}

	// Shrink the bounding box; the shape follows without the body being
	// reconstructed.
	scene.DestroyEntity(probe)
	scene.SetAabb(crate, engine.Aabb{Min: mgl32.Vec3{-0.2, -0.2, -0.2}, Max: mgl32.Vec3{0.2, 0.2, 0.2}})

	probe2 := addBall(t, scene, sys, 1.2)
	for i := 0; i < 3; i++ {
		sys.AdvanceFrame(frame)
	}
	if sys.AreInContact(crate, probe2) {
		t.Error("probe should clear the shrunken fallback box")
	}
}

func TestKinematicDrive(t *testing.T) {
	scene, _, sys := newTestSystem()

	wall := scene.CreateEntity("wall")
	scene.SetTransform(wall, engine.Transform{
		Position: mgl32.Vec3{10, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	})
	if err := sys.SetShape(wall, []dynamics.ShapePart{dynamics.BoxPart(mgl32.Vec3{1, 1, 1})}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if err := sys.SetRigidBodyParams(wall, dynamics.RigidBodyParams{Motion: dynamics.MotionStatic}); err != nil {
		t.Fatalf("SetRigidBodyParams failed: %v", err)
	}

	mover := scene.CreateEntity("mover")
	if err := sys.SetShape(mover, []dynamics.ShapePart{dynamics.BoxPart(mgl32.Vec3{1, 1, 1})}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if err := sys.SetRigidBodyParams(mover, dynamics.RigidBodyParams{Motion: dynamics.MotionKinematic}); err != nil {
		t.Fatalf("SetRigidBodyParams failed: %v", err)
	}

	sys.AdvanceFrame(frame)
	if sys.AreInContact(wall, mover) {
		t.Fatal("mover at the origin should not touch the wall at x=10")
	}

	// Drive the mover into the wall through the scene graph.
	want := engine.Transform{
		Position: mgl32.Vec3{9, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
	scene.SetTransform(mover, want)
	sys.AdvanceFrame(frame)

	if !sys.AreInContact(wall, mover) {
		t.Error("contact query should reflect the externally set position")
	}
	got := scene.Transform(mover)
	if got != want {
		t.Errorf("kinematic scene transform must not be overwritten: want %+v, got %+v", want, got)
	}
}

func TestDynamicMassClamped(t *testing.T) {
	scene, _, sys := newTestSystem()

	ball := scene.CreateEntity("ball")
	if err := sys.SetShape(ball, []dynamics.ShapePart{dynamics.SpherePart(0.5)}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if err := sys.SetRigidBodyParams(ball, dynamics.RigidBodyParams{Motion: dynamics.MotionDynamic, Mass: 0}); err != nil {
		t.Fatalf("Expected clamp, not error: %v", err)
	}
	if !sys.HasRigidBody(ball) {
		t.Fatal("body should be constructed with clamped mass")
	}

	// A clamped body still simulates.
	sys.AdvanceFrame(frame)
	if sys.LinearVelocity(ball).Y() >= 0 {
		t.Error("clamped dynamic body should fall under gravity")
	}
}

func TestDynamicBodyWithParentRejected(t *testing.T) {
	scene, _, sys := newTestSystem()

	parent := scene.CreateEntity("parent")
	child := scene.CreateEntity("child")
	scene.SetParent(child, parent)

	if err := sys.SetShape(child, []dynamics.ShapePart{dynamics.SpherePart(0.5)}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	err := sys.SetRigidBodyParams(child, dynamics.RigidBodyParams{Motion: dynamics.MotionDynamic, Mass: 1})
	if err == nil {
		t.Error("Expected error for a dynamic body under a parent")
	}
}

func TestReparentDynamicBodyPanics(t *testing.T) {
	scene, _, sys := newTestSystem()
	ball := addBall(t, scene, sys, 5)
	parent := scene.CreateEntity("parent")

	defer func() {
		if recover() == nil {
			t.Error("Expected panic when reparenting a dynamic body")
		}
	}()
	scene.SetParent(ball, parent)
}

func TestDeferredConstruction(t *testing.T) {
	scene, _, sys := newTestSystem()

	e := scene.CreateEntity("late")
	if err := sys.SetRigidBodyParams(e, dynamics.RigidBodyParams{Motion: dynamics.MotionDynamic, Mass: 1}); err != nil {
		t.Fatalf("SetRigidBodyParams failed: %v", err)
	}
	if sys.HasRigidBody(e) {
		t.Fatal("construction should wait for a shape")
	}

	if err := sys.SetShape(e, []dynamics.ShapePart{dynamics.SpherePart(0.5)}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if !sys.HasRigidBody(e) {
		t.Error("shape arriving should complete the deferred construction")
	}
}

func TestSharedShapeBodyAndTrigger(t *testing.T) {
	scene, _, sys := newTestSystem()

	e := scene.CreateEntity("sensor-crate")
	if err := sys.SetShape(e, []dynamics.ShapePart{dynamics.BoxPart(mgl32.Vec3{1, 1, 1})}); err != nil {
		t.Fatalf("SetShape failed: %v", err)
	}
	if err := sys.SetRigidBodyParams(e, dynamics.RigidBodyParams{Motion: dynamics.MotionStatic}); err != nil {
		t.Fatalf("SetRigidBodyParams failed: %v", err)
	}
	sys.SetTriggerVolumeParams(e, dynamics.TriggerVolumeParams{})

	if !sys.HasRigidBody(e) {
		t.Error("rigid body missing")
	}
	if !sys.HasTriggerVolume(e) {
		t.Error("trigger volume should coexist with the rigid body")
	}
}

func TestEntityDestroyedCleansUp(t *testing.T) {
	scene, dispatcher, sys := newTestSystem()
	floor := addFloor(t, scene, sys)
	ball := addBall(t, scene, sys, 0.9)

	exits := 0
	engine.Connect(dispatcher, floor, func(ev CollisionExitEvent) {
		if ev.Other != ball {
			t.Errorf("Bad exit event %+v", ev)
		}
		exits++
	})

	for i := 0; i < 30; i++ {
		sys.AdvanceFrame(frame)
	}
	if !sys.AreInContact(floor, ball) {
		t.Fatal("ball should be resting on the floor")
	}

	scene.DestroyEntity(ball)

	if exits != 1 {
		t.Errorf("Expected the floor to get 1 exit when its partner died, got %d", exits)
	}
	if sys.HasRigidBody(ball) {
		t.Error("destroyed entity should have no rigid body")
	}
	if sys.AreInContact(floor, ball) {
		t.Error("destroyed entity should have no contacts")
	}

	// The floor keeps simulating without incident.
	sys.AdvanceFrame(frame)
}

func TestDisableEnablePhysics(t *testing.T) {
	scene, dispatcher, sys := newTestSystem()
	floor := addFloor(t, scene, sys)
	ball := addBall(t, scene, sys, 0.9)

	exits, enters := 0, 0
	engine.Connect(dispatcher, ball, func(CollisionExitEvent) { exits++ })
	engine.Connect(dispatcher, ball, func(CollisionEnterEvent) { enters++ })

	for i := 0; i < 30; i++ {
		sys.AdvanceFrame(frame)
	}
	if enters != 1 {
		t.Fatalf("Expected 1 enter, got %d", enters)
	}

	scene.SetEnabled(ball, false)
	sys.AdvanceFrame(frame)
	if exits != 1 {
		t.Errorf("Expected 1 exit after disable, got %d", exits)
	}

	scene.SetEnabled(ball, true)
	for i := 0; i < 30; i++ {
		sys.AdvanceFrame(frame)
	}
	if enters != 2 {
		t.Errorf("Expected re-enter after enable, got %d", enters)
	}
	if !sys.AreInContact(floor, ball) {
		t.Error("re-enabled ball should contact the floor again")
	}
}

func TestVelocityLookupMisses(t *testing.T) {
	scene, _, sys := newTestSystem()
	ghost := scene.CreateEntity("ghost")

	// None of these may panic on an entity without a body.
	sys.SetLinearVelocity(ghost, mgl32.Vec3{1, 0, 0})
	sys.SetAngularVelocity(ghost, mgl32.Vec3{0, 1, 0})
	sys.ApplyImpulse(ghost, mgl32.Vec3{0, 0, 1})

	if v := sys.LinearVelocity(ghost); v != (mgl32.Vec3{}) {
		t.Errorf("Expected zero velocity for missing body, got %v", v)
	}
	if pts := sys.ActiveContacts(ghost, 99); pts != nil {
		t.Errorf("Expected nil contacts for unknown pair, got %v", pts)
	}
}
