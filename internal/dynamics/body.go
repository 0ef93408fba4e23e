package dynamics

import (
	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/engine"
)

// MotionType selects how the simulation drives an object.
type MotionType int

const (
	// MotionStatic objects never move and never collide with each other.
	MotionStatic MotionType = iota
	// MotionKinematic objects are driven externally; the simulation reads
	// their transform but never writes it.
	MotionKinematic
	// MotionDynamic objects are fully simulated.
	MotionDynamic
)

func (m MotionType) String() string {
	switch m {
	case MotionStatic:
		return "static"
	case MotionKinematic:
		return "kinematic"
	case MotionDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// ColliderType selects whether an object responds to contacts or only
// reports them.
type ColliderType int

const (
	// ColliderStandard resolves contacts with impulses.
	ColliderStandard ColliderType = iota
	// ColliderTrigger detects overlaps without affecting motion.
	ColliderTrigger
)

// Collision object flags, mirrored onto every object each time its
// configuration changes. Mass assignment clears the static and kinematic
// bits as a side effect, so flags are always re-derived afterwards.
const (
	flagStatic uint32 = 1 << iota
	flagKinematic
	flagNoContactResponse
	flagDisableGravity
)

// Collision filter groups.
const (
	GroupDefault   uint16 = 1 << 0
	GroupStatic    uint16 = 1 << 1
	GroupKinematic uint16 = 1 << 2
	GroupTrigger   uint16 = 1 << 3
	MaskAll        uint16 = 0xffff
)

// collisionObject is the simulation-side state shared by rigid bodies and
// trigger volumes. Position and rotation are the world-space transform of
// the collision shape origin, which for dynamic bodies is the center of
// mass rather than the entity origin.
type collisionObject struct {
	entity engine.Entity
	shape  *CollisionShape
	flags  uint32
	group  uint16
	mask   uint16

	position mgl32.Vec3
	rotation mgl32.Quat

	mass    float32
	invMass float32

	linearVelocity  mgl32.Vec3
	angularVelocity mgl32.Vec3

	// Accumulated over a frame, cleared after the step that consumes
	// them.
	force  mgl32.Vec3
	torque mgl32.Vec3

	restitution      float32
	friction         float32
	rollingFriction  float32
	spinningFriction float32
	linearDamping    float32
	angularDamping   float32

	centerOfMass mgl32.Vec3

	inWorld    bool
	sleeping   bool
	sleepTimer float32
}

func (o *collisionObject) isStatic() bool    { return o.flags&flagStatic != 0 }
func (o *collisionObject) isKinematic() bool { return o.flags&flagKinematic != 0 }
func (o *collisionObject) isDynamic() bool {
	return o.flags&(flagStatic|flagKinematic) == 0
}
func (o *collisionObject) respondsToContact() bool {
	return o.flags&flagNoContactResponse == 0
}

func (o *collisionObject) wake() {
	o.sleeping = false
	o.sleepTimer = 0
}

// worldAabb is the object's shape bounds at its current transform.
func (o *collisionObject) worldAabb() engine.Aabb {
	local := o.shape.localBounds()
	obb := NewOBB(o.position.Add(o.rotation.Rotate(local.Center())), local.Size().Mul(0.5), o.rotation)
	return obb.EnclosingAabb()
}

// RigidBodyParams configures a contact-responding physics object.
type RigidBodyParams struct {
	Type        ColliderType
	Motion      MotionType
	Mass        float32
	Restitution float32
	// Friction is the sliding friction for the tangential impulse.
	// Rolling and spinning friction damp rotation while in contact.
	Friction         float32
	RollingFriction  float32
	SpinningFriction float32
	// Velocity damping per second, 0 for none.
	LinearDamping  float32
	AngularDamping float32
	// Offset of the center of mass from the entity origin, in local space.
	CenterOfMass mgl32.Vec3
	// Collision filtering. Zero group means "derive from motion type".
	Group uint16
	Mask  uint16
}

// RigidBody is a simulated physics object bound to one entity. All
// mutation goes through the owning Engine, which defers it when called
// from inside a simulation step.
type RigidBody struct {
	collisionObject
	world  *world
	motion MotionType
	ctype  ColliderType
	// Entity scale currently folded into the shape's local scaling,
	// together with the shape's own primary scale.
	entityScale mgl32.Vec3
}

func newRigidBody(entity engine.Entity, shape *CollisionShape, params RigidBodyParams) *RigidBody {
	body := &RigidBody{
		collisionObject: collisionObject{
			entity:           entity,
			shape:            shape,
			rotation:         mgl32.QuatIdent(),
			mass:             params.Mass,
			restitution:      params.Restitution,
			friction:         params.Friction,
			rollingFriction:  params.RollingFriction,
			spinningFriction: params.SpinningFriction,
			linearDamping:    params.LinearDamping,
			angularDamping:   params.AngularDamping,
			centerOfMass:     params.CenterOfMass,
			group:            params.Group,
			mask:             params.Mask,
		},
		motion:      params.Motion,
		ctype:       params.Type,
		entityScale: mgl32.Vec3{1, 1, 1},
	}
	if params.Motion != MotionDynamic {
		body.collisionObject.mass = 0
	}
	body.applyMass()
	body.updateFlags()
	return body
}

// updateFlags re-derives the flag word from motion and collider type.
// Must run after every mass assignment since that clears motion bits.
func (b *RigidBody) updateFlags() {
	var flags uint32
	switch b.motion {
	case MotionStatic:
		flags |= flagStatic
	case MotionKinematic:
		flags |= flagKinematic
	}
	if b.ctype == ColliderTrigger {
		flags |= flagNoContactResponse
	}
	b.flags = flags
	if b.group == 0 {
		switch b.motion {
		case MotionStatic:
			b.group = GroupStatic
		case MotionKinematic:
			b.group = GroupKinematic
		default:
			b.group = GroupDefault
		}
	}
	if b.mask == 0 {
		b.mask = MaskAll
	}
}

// applyMass installs the mass and inverse mass. Assigning mass resets the
// motion flag bits, matching the shape of the underlying contract where
// mass properties and body flags are coupled; updateFlags restores them.
func (b *RigidBody) applyMass() {
	mass := b.collisionObject.mass
	if b.motion != MotionDynamic {
		mass = 0
	}
	b.collisionObject.mass = mass
	if mass > 0 {
		b.invMass = 1 / mass
	} else {
		b.invMass = 0
	}
	b.flags &^= flagStatic | flagKinematic
}

// Entity returns the owning entity.
func (b *RigidBody) Entity() engine.Entity { return b.entity }

// Motion returns the current motion type.
func (b *RigidBody) Motion() MotionType { return b.motion }

// Mass returns the simulated mass; zero for non-dynamic bodies.
func (b *RigidBody) Mass() float32 { return b.collisionObject.mass }

// setMass changes the simulated mass. The flag word is re-derived
// afterwards because mass assignment clears the motion bits.
func (b *RigidBody) setMass(mass float32) {
	b.collisionObject.mass = mass
	b.applyMass()
	b.updateFlags()
	b.wake()
}

// setMotionType switches how the simulation drives the body. A body
// becoming non-dynamic loses its velocities.
func (b *RigidBody) setMotionType(motion MotionType) {
	if b.motion == motion {
		return
	}
	b.motion = motion
	if motion != MotionDynamic {
		b.linearVelocity = mgl32.Vec3{}
		b.angularVelocity = mgl32.Vec3{}
	}
	b.group = 0
	b.applyMass()
	b.updateFlags()
	b.wake()
}

// setWorldTransform moves the collision object to match an entity world
// transform. The center of mass offset is rotated and scaled into world
// space so the shape origin lands on the center of mass. When the entity
// scale changed, the shape is rescaled and dynamic bodies get their mass
// re-applied, since mass properties depend on the collision extents.
func (b *RigidBody) setWorldTransform(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) {
	rotation = orIdentity(rotation).Normalize()
	offset := rotation.Rotate(mulElem(b.centerOfMass, scale))
	b.position = position.Add(offset)
	b.rotation = rotation
	if !scale.ApproxEqual(b.entityScale) {
		b.entityScale = scale
		if b.shape.SetLocalScaling(mulElem(scale, b.shape.PrimaryScale())) && b.isDynamic() {
			b.applyMass()
			b.updateFlags()
		}
	}
	b.wake()
}

// worldTransform returns the entity-origin world transform, un-applying
// the center of mass offset.
func (b *RigidBody) worldTransform() (mgl32.Vec3, mgl32.Quat) {
	offset := b.rotation.Rotate(mulElem(b.centerOfMass, b.entityScale))
	return b.position.Sub(offset), b.rotation
}

func (b *RigidBody) setLinearVelocity(v mgl32.Vec3) {
	b.linearVelocity = v
	b.wake()
}

func (b *RigidBody) setAngularVelocity(v mgl32.Vec3) {
	b.angularVelocity = v
	b.wake()
}

func (b *RigidBody) applyForce(force mgl32.Vec3) {
	if !b.isDynamic() {
		return
	}
	b.force = b.force.Add(force)
	b.wake()
}

func (b *RigidBody) applyTorque(torque mgl32.Vec3) {
	if !b.isDynamic() {
		return
	}
	b.torque = b.torque.Add(torque)
	b.wake()
}

func (b *RigidBody) applyImpulse(impulse mgl32.Vec3) {
	if !b.isDynamic() || b.invMass == 0 {
		return
	}
	b.linearVelocity = b.linearVelocity.Add(impulse.Mul(b.invMass))
	b.wake()
}

// LinearVelocity returns the current linear velocity.
func (b *RigidBody) LinearVelocity() mgl32.Vec3 { return b.linearVelocity }

// AngularVelocity returns the current angular velocity in radians per
// second around each axis.
func (b *RigidBody) AngularVelocity() mgl32.Vec3 { return b.angularVelocity }

// TriggerVolumeParams configures an overlap-only physics object.
type TriggerVolumeParams struct {
	Group uint16
	Mask  uint16
}

// TriggerVolume detects overlaps without participating in the dynamics
// response. It never moves on its own; the scene drives its transform.
type TriggerVolume struct {
	collisionObject
	world       *world
	entityScale mgl32.Vec3
}

func newTriggerVolume(entity engine.Entity, shape *CollisionShape, params TriggerVolumeParams) *TriggerVolume {
	group := params.Group
	if group == 0 {
		group = GroupTrigger
	}
	mask := params.Mask
	if mask == 0 {
		mask = MaskAll
	}
	// Static and kinematic bits stay clear so two overlapping triggers
	// still report contact against each other.
	return &TriggerVolume{
		collisionObject: collisionObject{
			entity:   entity,
			shape:    shape,
			rotation: mgl32.QuatIdent(),
			flags:    flagNoContactResponse | flagDisableGravity,
			group:    group,
			mask:     mask,
		},
		entityScale: mgl32.Vec3{1, 1, 1},
	}
}

// Entity returns the owning entity.
func (t *TriggerVolume) Entity() engine.Entity { return t.entity }

func (t *TriggerVolume) setWorldTransform(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) {
	t.position = position
	t.rotation = orIdentity(rotation).Normalize()
	if !scale.ApproxEqual(t.entityScale) {
		t.entityScale = scale
		t.shape.SetLocalScaling(mulElem(scale, t.shape.PrimaryScale()))
	}
}
