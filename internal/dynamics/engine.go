package dynamics

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/engine"
)

// Config tunes the simulation.
type Config struct {
	Gravity       mgl32.Vec3
	FixedTimestep float32
	MaxSubsteps   int
	CellSize      float32

	SleepLinearThreshold  float32
	SleepAngularThreshold float32
	SleepTime             float32
}

func DefaultConfig() Config {
	return Config{
		Gravity:       mgl32.Vec3{0, -9.81, 0},
		FixedTimestep: 1.0 / 60.0,
		MaxSubsteps:   4,
		CellSize:      5.0,

		SleepLinearThreshold:  0.3,
		SleepAngularThreshold: 1.0,
		SleepTime:             0.5,
	}
}

// Engine is the public face of the dynamics simulation. It owns the
// world, tracks contact pairs across steps, and serializes all mutation:
// calls arriving while a simulation step is in flight are queued and run
// after the step, so contact callbacks can safely mutate the world.
type Engine struct {
	world   *world
	tracker *ContactTracker
	cfg     Config

	onEnter func(ContactKey)
	onExit  func(ContactKey)

	// Shape templates cached by key for reuse across entities.
	shapeCache map[string][]ShapePart

	inTick bool
	queued []func()
}

func NewEngine(cfg Config) *Engine {
	if cfg.FixedTimestep <= 0 {
		cfg.FixedTimestep = 1.0 / 60.0
	}
	w := newWorld(cfg.Gravity, cfg.CellSize)
	if cfg.SleepLinearThreshold > 0 {
		w.sleepLinearThreshold = cfg.SleepLinearThreshold
	}
	if cfg.SleepAngularThreshold > 0 {
		w.sleepAngularThreshold = cfg.SleepAngularThreshold
	}
	if cfg.SleepTime > 0 {
		w.sleepTime = cfg.SleepTime
	}
	e := &Engine{
		world:      w,
		tracker:    NewContactTracker(),
		cfg:        cfg,
		shapeCache: make(map[string][]ShapePart),
	}
	w.onSubstep = e.onSubstep
	return e
}

// run executes fn now, or after the current simulation step when one is
// in flight.
func (e *Engine) run(fn func()) {
	if e.inTick {
		e.queued = append(e.queued, fn)
		return
	}
	fn()
}

// CreateShape builds a collision shape from declared parts, falling back
// to a refittable unit box around the given bounds when parts is empty.
func (e *Engine) CreateShape(parts []ShapePart, fallback engine.Aabb) (*CollisionShape, error) {
	return BuildShape(parts, fallback)
}

// CacheShapeData stores a part list under a key so shapes can be rebuilt
// without re-declaring geometry.
func (e *Engine) CacheShapeData(key string, parts []ShapePart) {
	e.shapeCache[key] = parts
}

// CreateCachedShape builds a shape from a previously cached part list.
func (e *Engine) CreateCachedShape(key string) (*CollisionShape, error) {
	parts, ok := e.shapeCache[key]
	if !ok {
		return nil, fmt.Errorf("dynamics: no cached shape data for %q", key)
	}
	return BuildShape(parts, engine.Aabb{})
}

// ReleaseShapeData drops a cached part list. Shapes already built from it
// are unaffected.
func (e *Engine) ReleaseShapeData(key string) {
	delete(e.shapeCache, key)
}

// CreateRigidBody adds a contact-responding body for the entity. The
// entity must not already have an object in the world.
func (e *Engine) CreateRigidBody(entity engine.Entity, shape *CollisionShape, params RigidBodyParams) (*RigidBody, error) {
	if e.world.contains(entity) {
		return nil, fmt.Errorf("dynamics: entity %d already has a physics object", entity)
	}
	body := newRigidBody(entity, shape, params)
	body.world = e.world
	e.run(func() { e.world.add(&body.collisionObject) })
	return body, nil
}

// CreateTriggerVolume adds an overlap-only object for the entity.
func (e *Engine) CreateTriggerVolume(entity engine.Entity, shape *CollisionShape, params TriggerVolumeParams) (*TriggerVolume, error) {
	if e.world.contains(entity) {
		return nil, fmt.Errorf("dynamics: entity %d already has a physics object", entity)
	}
	trig := newTriggerVolume(entity, shape, params)
	trig.world = e.world
	e.run(func() { e.world.add(&trig.collisionObject) })
	return trig, nil
}

// SetMass changes a body's simulated mass. Has no lasting effect on
// non-dynamic bodies, whose mass is pinned to zero.
func (e *Engine) SetMass(body *RigidBody, mass float32) {
	e.run(func() { body.setMass(mass) })
}

// SetMotionType switches how the simulation drives a body.
func (e *Engine) SetMotionType(body *RigidBody, motion MotionType) {
	e.run(func() { body.setMotionType(motion) })
}

// SetBodyTransform pushes an entity world transform onto a body.
func (e *Engine) SetBodyTransform(body *RigidBody, position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) {
	e.run(func() { body.setWorldTransform(position, rotation, scale) })
}

// SetTriggerTransform pushes an entity world transform onto a trigger.
func (e *Engine) SetTriggerTransform(trig *TriggerVolume, position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) {
	e.run(func() { trig.setWorldTransform(position, rotation, scale) })
}

// BodyTransform reads back a body's entity-origin world transform.
func (e *Engine) BodyTransform(body *RigidBody) (mgl32.Vec3, mgl32.Quat) {
	return body.worldTransform()
}

// SetLinearVelocity sets a body's linear velocity and wakes it.
func (e *Engine) SetLinearVelocity(body *RigidBody, v mgl32.Vec3) {
	e.run(func() { body.setLinearVelocity(v) })
}

// SetAngularVelocity sets a body's angular velocity and wakes it.
func (e *Engine) SetAngularVelocity(body *RigidBody, v mgl32.Vec3) {
	e.run(func() { body.setAngularVelocity(v) })
}

// ApplyImpulse applies an instantaneous momentum change to a dynamic
// body.
func (e *Engine) ApplyImpulse(body *RigidBody, impulse mgl32.Vec3) {
	e.run(func() { body.applyImpulse(impulse) })
}

// ApplyForce accumulates a force on a dynamic body for the next step.
// Forces are cleared once the step consumes them.
func (e *Engine) ApplyForce(body *RigidBody, force mgl32.Vec3) {
	e.run(func() { body.applyForce(force) })
}

// ApplyTorque accumulates a torque on a dynamic body for the next step.
func (e *Engine) ApplyTorque(body *RigidBody, torque mgl32.Vec3) {
	e.run(func() { body.applyTorque(torque) })
}

// Activate returns a body's object to the simulation world after a
// Deactivate. Newly created bodies are already active.
func (e *Engine) Activate(body *RigidBody) {
	e.run(func() {
		if !body.inWorld {
			e.world.add(&body.collisionObject)
		}
		body.wake()
	})
}

// Deactivate removes a body's object from the world without destroying
// it. Tracked contacts are left alone so the pairs it was touching get
// exit notifications on the next step.
func (e *Engine) Deactivate(body *RigidBody) {
	e.run(func() {
		if body.inWorld {
			e.world.remove(body.entity)
		}
	})
}

// ActivateTrigger returns a trigger's object to the simulation world.
func (e *Engine) ActivateTrigger(trig *TriggerVolume) {
	e.run(func() {
		if !trig.inWorld {
			e.world.add(&trig.collisionObject)
		}
	})
}

// DeactivateTrigger removes a trigger's object from the world without
// destroying it.
func (e *Engine) DeactivateTrigger(trig *TriggerVolume) {
	e.run(func() {
		if trig.inWorld {
			e.world.remove(trig.entity)
		}
	})
}

// Remove takes the entity's object out of the world and drops its
// tracked contacts without firing exit notifications.
func (e *Engine) Remove(entity engine.Entity) {
	e.run(func() {
		e.world.remove(entity)
		e.tracker.Forget(entity)
	})
}

// Contains reports whether the entity has an object in the world.
func (e *Engine) Contains(entity engine.Entity) bool {
	return e.world.contains(entity)
}

// SetOnEnterCollisionCallback installs the callback fired once per pair
// when contact begins. Fired from inside the simulation step; mutations
// made by the callback are deferred until the step completes.
func (e *Engine) SetOnEnterCollisionCallback(fn func(ContactKey)) {
	e.onEnter = fn
}

// SetOnExitCollisionCallback installs the callback fired once per pair
// when contact ends.
func (e *Engine) SetOnExitCollisionCallback(fn func(ContactKey)) {
	e.onExit = fn
}

// AdvanceFrame steps the simulation by dt using the fixed timestep and
// substep cap from the config, then runs any mutations deferred by the
// contact callbacks. Returns the number of substeps taken.
func (e *Engine) AdvanceFrame(dt time.Duration) int {
	e.inTick = true
	steps := e.world.stepSimulation(float32(dt.Seconds()), e.cfg.MaxSubsteps, e.cfg.FixedTimestep)
	e.inTick = false
	for len(e.queued) > 0 {
		queued := e.queued
		e.queued = nil
		for _, fn := range queued {
			fn()
		}
	}
	return steps
}

// onSubstep runs after every fixed substep: the step's manifolds are fed
// to the tracker and the enter/exit diff fires the callbacks.
func (e *Engine) onSubstep() {
	for _, m := range e.world.manifolds {
		e.tracker.Observe(m)
	}
	e.tracker.Flush(e.onEnter, e.onExit)
}

// GetActiveContacts returns the contact points between two entities from
// the last completed substep, or nil when they are not touching. Normals
// point from the higher-id entity toward the lower.
func (e *Engine) GetActiveContacts(a, b engine.Entity) []ContactPoint {
	m, ok := e.world.manifolds[MakeContactKey(a, b)]
	if !ok {
		return nil
	}
	return m.Points
}

// ActivePairs returns every touching pair as of the last completed
// substep.
func (e *Engine) ActivePairs() []ContactKey {
	return e.tracker.Contacts()
}

// ContactsOf returns the entities currently touching e.
func (e *Engine) ContactsOf(entity engine.Entity) []engine.Entity {
	return e.tracker.ContactsOf(entity)
}

// AreInContact reports whether two entities are currently touching.
func (e *Engine) AreInContact(a, b engine.Entity) bool {
	return e.tracker.InContact(a, b)
}

// SetGravity changes the world gravity and wakes every dynamic body so
// the change takes hold immediately.
func (e *Engine) SetGravity(gravity mgl32.Vec3) {
	e.run(func() {
		e.world.gravity = gravity
		for _, obj := range e.world.objects {
			if obj.isDynamic() {
				obj.wake()
			}
		}
	})
}

// Gravity returns the current world gravity.
func (e *Engine) Gravity() mgl32.Vec3 {
	return e.world.gravity
}

// DrainMoved returns the entities the simulation has moved since the
// last call, in the order they first moved.
func (e *Engine) DrainMoved() []engine.Entity {
	return e.world.drainMoved()
}
