package physics

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/dynamics"
	"phys3d/internal/engine"
)

// writtenTransform remembers the transform the system last wrote to (or
// read from) a dynamic body, so externally teleported entities can be
// detected before the next step.
type writtenTransform struct {
	position mgl32.Vec3
	rotation mgl32.Quat
}

type pendingEvent struct {
	key   dynamics.ContactKey
	enter bool
}

// System bridges scene entities onto the dynamics simulation. It owns the
// entity to shape and entity to body maps, keeps transforms synchronized
// in both directions around each step, and converts contact transitions
// into per-entity collision events.
//
// All methods must be called from the thread that calls AdvanceFrame.
type System struct {
	scene      *engine.Scene
	dispatcher *engine.Dispatcher
	sim        *dynamics.Engine
	logger     *log.Logger

	shapes   map[engine.Entity]*dynamics.CollisionShape
	bodies   map[engine.Entity]*dynamics.RigidBody
	triggers map[engine.Entity]*dynamics.TriggerVolume

	// Component params are kept even while construction is deferred or
	// the entity is disabled, so either half arriving later completes
	// the pair.
	bodyParams    map[engine.Entity]dynamics.RigidBodyParams
	triggerParams map[engine.Entity]dynamics.TriggerVolumeParams

	disabled    map[engine.Entity]struct{}
	lastWritten map[engine.Entity]writtenTransform

	// Contact transitions reported during the step, dispatched after the
	// post-step sync so listeners observe settled transforms.
	pending []pendingEvent
}

func NewSystem(scene *engine.Scene, dispatcher *engine.Dispatcher, cfg dynamics.Config, logger *log.Logger) *System {
	if logger == nil {
		logger = log.Default()
	}
	s := &System{
		scene:      scene,
		dispatcher: dispatcher,
		sim:        dynamics.NewEngine(cfg),
		logger:     logger,

		shapes:   make(map[engine.Entity]*dynamics.CollisionShape),
		bodies:   make(map[engine.Entity]*dynamics.RigidBody),
		triggers: make(map[engine.Entity]*dynamics.TriggerVolume),

		bodyParams:    make(map[engine.Entity]dynamics.RigidBodyParams),
		triggerParams: make(map[engine.Entity]dynamics.TriggerVolumeParams),

		disabled:    make(map[engine.Entity]struct{}),
		lastWritten: make(map[engine.Entity]writtenTransform),
	}

	s.sim.SetOnEnterCollisionCallback(func(key dynamics.ContactKey) {
		s.pending = append(s.pending, pendingEvent{key: key, enter: true})
	})
	s.sim.SetOnExitCollisionCallback(func(key dynamics.ContactKey) {
		s.pending = append(s.pending, pendingEvent{key: key})
	})

	scene.OnDestroyed.AddListener(s.OnEntityDestroyed)
	scene.OnAabbChanged.AddListener(s.onAabbChanged)
	scene.OnEnabled.AddListener(s.EnablePhysics)
	scene.OnDisabled.AddListener(s.DisablePhysics)
	scene.OnParentChanged.AddListener(s.onParentChanged)
	return s
}

// Sim exposes the underlying dynamics engine for configuration that the
// bridge does not mediate.
func (s *System) Sim() *dynamics.Engine {
	return s.sim
}

// SetShape builds a collision shape for the entity from declared parts
// and attaches it to any rigid body or trigger volume already configured.
// An empty part list produces a refittable box matching the entity's
// bounding box, kept in sync with later bounding box changes.
func (s *System) SetShape(e engine.Entity, parts []dynamics.ShapePart) error {
	shape, err := s.sim.CreateShape(parts, s.scene.Aabb(e))
	if err != nil {
		return fmt.Errorf("physics: build shape for %s: %w", s.scene.NameOf(e), err)
	}
	s.shapes[e] = shape

	// Live objects are rebuilt on the new geometry.
	if body, ok := s.bodies[e]; ok {
		s.sim.Deactivate(body)
		delete(s.bodies, e)
	}
	if trig, ok := s.triggers[e]; ok {
		s.sim.DeactivateTrigger(trig)
		delete(s.triggers, e)
	}
	s.tryCreateRigidBody(e)
	s.tryCreateTriggerVolume(e)
	return nil
}

// SetRigidBodyParams upserts the entity's rigid body configuration.
// Construction happens once both params and a shape exist; until then
// the params are held. Dynamic bodies must have positive mass, which is
// clamped with a warning, and must be scene roots, which is an error.
func (s *System) SetRigidBodyParams(e engine.Entity, params dynamics.RigidBodyParams) error {
	if params.Motion == dynamics.MotionDynamic {
		if params.Mass <= 0 {
			s.logger.Printf("physics: dynamic body %q has mass %v, clamping to 1", s.scene.NameOf(e), params.Mass)
			params.Mass = 1
		}
		if s.scene.Parent(e) != engine.InvalidEntity {
			return fmt.Errorf("physics: dynamic body %q cannot have a parent transform", s.scene.NameOf(e))
		}
	}
	s.bodyParams[e] = params

	if body, ok := s.bodies[e]; ok {
		s.sim.Deactivate(body)
		delete(s.bodies, e)
	}
	s.tryCreateRigidBody(e)
	return nil
}

// SetTriggerVolumeParams upserts the entity's trigger configuration.
// Construction is deferred until a shape exists.
func (s *System) SetTriggerVolumeParams(e engine.Entity, params dynamics.TriggerVolumeParams) {
	s.triggerParams[e] = params
	if trig, ok := s.triggers[e]; ok {
		s.sim.DeactivateTrigger(trig)
		delete(s.triggers, e)
	}
	s.tryCreateTriggerVolume(e)
}

func (s *System) tryCreateRigidBody(e engine.Entity) {
	params, haveParams := s.bodyParams[e]
	shape, haveShape := s.shapes[e]
	if !haveParams || !haveShape {
		return
	}
	if _, ok := s.bodies[e]; ok {
		return
	}
	body, err := s.sim.CreateRigidBody(e, shape, params)
	if err != nil {
		s.logger.Printf("physics: create rigid body for %q: %v", s.scene.NameOf(e), err)
		return
	}
	s.bodies[e] = body
	s.pushBodyTransform(e, body)
	if _, off := s.disabled[e]; off {
		s.sim.Deactivate(body)
	}
}

func (s *System) tryCreateTriggerVolume(e engine.Entity) {
	params, haveParams := s.triggerParams[e]
	shape, haveShape := s.shapes[e]
	if !haveParams || !haveShape {
		return
	}
	if _, ok := s.triggers[e]; ok {
		return
	}
	trig, err := s.sim.CreateTriggerVolume(e, shape, params)
	if err != nil {
		s.logger.Printf("physics: create trigger volume for %q: %v", s.scene.NameOf(e), err)
		return
	}
	s.triggers[e] = trig
	s.pushTriggerTransform(e, trig)
	if _, off := s.disabled[e]; off {
		s.sim.DeactivateTrigger(trig)
	}
}

func (s *System) pushBodyTransform(e engine.Entity, body *dynamics.RigidBody) {
	t := s.scene.WorldTransform(e)
	s.sim.SetBodyTransform(body, t.Position, t.Rotation, t.Scale)
	s.lastWritten[e] = writtenTransform{position: t.Position, rotation: t.Rotation}
}

func (s *System) pushTriggerTransform(e engine.Entity, trig *dynamics.TriggerVolume) {
	t := s.scene.WorldTransform(e)
	s.sim.SetTriggerTransform(trig, t.Position, t.Rotation, t.Scale)
}

// AdvanceFrame drives one frame: scene transforms are pushed into the
// simulation, the simulation steps, resulting transforms are pulled back
// out, and the step's contact transitions are dispatched. The order is a
// correctness requirement; events always observe post-step transforms.
func (s *System) AdvanceFrame(dt time.Duration) {
	s.preStepSync()
	s.sim.AdvanceFrame(dt)
	s.postStepSync()
	s.dispatchPending()
}

// preStepSync pushes scene transforms into every externally driven
// object. Kinematic bodies and triggers follow the scene each frame.
// Dynamic bodies are pushed only when something moved them since the
// last step, which is how teleports reach the solver. Static bodies are
// never touched after creation.
func (s *System) preStepSync() {
	for e, trig := range s.triggers {
		if _, off := s.disabled[e]; off {
			continue
		}
		s.pushTriggerTransform(e, trig)
	}
	for e, body := range s.bodies {
		if _, off := s.disabled[e]; off {
			continue
		}
		switch body.Motion() {
		case dynamics.MotionKinematic:
			s.pushBodyTransform(e, body)
		case dynamics.MotionDynamic:
			t := s.scene.Transform(e)
			last, ok := s.lastWritten[e]
			if !ok || !t.Position.ApproxEqual(last.position) ||
				t.Rotation.Dot(last.rotation) < 1-1e-6 {
				s.pushBodyTransform(e, body)
			}
		}
	}
}

// postStepSync writes the transforms of moved dynamic bodies back to the
// scene. Moved entities are sorted and deduplicated so write-back order
// does not depend on map iteration. Scale always stays the scene's.
func (s *System) postStepSync() {
	moved := s.sim.DrainMoved()
	sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })
	var prev engine.Entity
	for _, e := range moved {
		if e == prev {
			continue
		}
		prev = e
		body, ok := s.bodies[e]
		if !ok || body.Motion() != dynamics.MotionDynamic {
			continue
		}
		pos, rot := s.sim.BodyTransform(body)
		t := s.scene.Transform(e)
		t.Position = pos
		t.Rotation = rot
		s.scene.SetTransform(e, t)
		s.lastWritten[e] = writtenTransform{position: pos, rotation: rot}
	}
}

func (s *System) dispatchPending() {
	pending := s.pending
	s.pending = nil
	for _, ev := range pending {
		s.sendBoth(ev.key.A, ev.key.B, ev.enter)
	}
}

func (s *System) sendBoth(a, b engine.Entity, enter bool) {
	if enter {
		if s.scene.Exists(a) {
			s.dispatcher.SendToEntity(a, CollisionEnterEvent{Self: a, Other: b})
		}
		if s.scene.Exists(b) {
			s.dispatcher.SendToEntity(b, CollisionEnterEvent{Self: b, Other: a})
		}
		return
	}
	if s.scene.Exists(a) {
		s.dispatcher.SendToEntity(a, CollisionExitEvent{Self: a, Other: b})
	}
	if s.scene.Exists(b) {
		s.dispatcher.SendToEntity(b, CollisionExitEvent{Self: b, Other: a})
	}
}

// OnEntityDestroyed tears down the entity's physics state. Pairs the
// entity was touching receive an exit event immediately, since the
// simulation will never report them again.
func (s *System) OnEntityDestroyed(e engine.Entity) {
	for _, other := range s.sim.ContactsOf(e) {
		s.sendBoth(e, other, false)
	}
	s.sim.Remove(e)
	delete(s.bodies, e)
	delete(s.triggers, e)
	delete(s.shapes, e)
	delete(s.bodyParams, e)
	delete(s.triggerParams, e)
	delete(s.disabled, e)
	delete(s.lastWritten, e)
}

// EnablePhysics returns the entity's objects to the simulation and
// re-seeds them from the current scene transform.
func (s *System) EnablePhysics(e engine.Entity) {
	delete(s.disabled, e)
	if body, ok := s.bodies[e]; ok {
		s.pushBodyTransform(e, body)
		s.sim.Activate(body)
	}
	if trig, ok := s.triggers[e]; ok {
		s.pushTriggerTransform(e, trig)
		s.sim.ActivateTrigger(trig)
	}
}

// DisablePhysics removes the entity's objects from the simulation without
// destroying them. Contacts they held end on the next step.
func (s *System) DisablePhysics(e engine.Entity) {
	s.disabled[e] = struct{}{}
	if body, ok := s.bodies[e]; ok {
		s.sim.Deactivate(body)
	}
	if trig, ok := s.triggers[e]; ok {
		s.sim.DeactivateTrigger(trig)
	}
}

func (s *System) onAabbChanged(e engine.Entity) {
	shape, ok := s.shapes[e]
	if !ok || !shape.AabbBacked() {
		return
	}
	shape.FitAabb(s.scene.Aabb(e))
}

// onParentChanged rejects reparenting of dynamic bodies. The solver has
// no notion of hierarchical composition, so a dynamic body under a
// parent transform would silently desynchronize.
func (s *System) onParentChanged(ev engine.ParentChangedEvent) {
	if ev.NewParent == engine.InvalidEntity {
		return
	}
	if body, ok := s.bodies[ev.Target]; ok && body.Motion() == dynamics.MotionDynamic {
		panic(fmt.Sprintf("physics: dynamic body %q reparented under %q",
			s.scene.NameOf(ev.Target), s.scene.NameOf(ev.NewParent)))
	}
}

// SetMotionType changes how the solver drives an existing body, then
// re-applies its configured mass. Missing bodies are a no-op.
func (s *System) SetMotionType(e engine.Entity, motion dynamics.MotionType) {
	body, ok := s.bodies[e]
	if !ok {
		return
	}
	s.sim.SetMotionType(body, motion)
	if params, ok := s.bodyParams[e]; ok {
		params.Motion = motion
		s.bodyParams[e] = params
		if motion == dynamics.MotionDynamic {
			s.sim.SetMass(body, params.Mass)
		}
	}
}

// SetLinearVelocity sets a body's linear velocity. No-op without a body.
func (s *System) SetLinearVelocity(e engine.Entity, v mgl32.Vec3) {
	if body, ok := s.bodies[e]; ok {
		s.sim.SetLinearVelocity(body, v)
	}
}

// SetAngularVelocity sets a body's angular velocity. No-op without a
// body.
func (s *System) SetAngularVelocity(e engine.Entity, v mgl32.Vec3) {
	if body, ok := s.bodies[e]; ok {
		s.sim.SetAngularVelocity(body, v)
	}
}

// ApplyImpulse applies an instantaneous momentum change to a dynamic
// body. No-op without a body.
func (s *System) ApplyImpulse(e engine.Entity, impulse mgl32.Vec3) {
	if body, ok := s.bodies[e]; ok {
		s.sim.ApplyImpulse(body, impulse)
	}
}

// LinearVelocity returns a body's linear velocity, zero without a body.
func (s *System) LinearVelocity(e engine.Entity) mgl32.Vec3 {
	if body, ok := s.bodies[e]; ok {
		return body.LinearVelocity()
	}
	return mgl32.Vec3{}
}

// AreInContact reports whether two entities were touching as of the last
// step.
func (s *System) AreInContact(a, b engine.Entity) bool {
	return s.sim.AreInContact(a, b)
}

// ActiveContacts returns the contact points between two entities from
// the last step, or nil when they are not touching.
func (s *System) ActiveContacts(a, b engine.Entity) []dynamics.ContactPoint {
	return s.sim.GetActiveContacts(a, b)
}

// SetGravity changes the world gravity for subsequent steps.
func (s *System) SetGravity(gravity mgl32.Vec3) {
	s.sim.SetGravity(gravity)
}

// HasRigidBody reports whether the entity has a constructed rigid body.
func (s *System) HasRigidBody(e engine.Entity) bool {
	_, ok := s.bodies[e]
	return ok
}

// HasTriggerVolume reports whether the entity has a constructed trigger.
func (s *System) HasTriggerVolume(e engine.Entity) bool {
	_, ok := s.triggers[e]
	return ok
}
