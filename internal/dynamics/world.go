package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/engine"
)

type cellKey struct {
	X, Y, Z int32
}

// world owns the collision objects and advances them with a fixed
// timestep. Broad phase is a spatial hash grid rebuilt each step; narrow
// phase runs sphere and box tests against the realized primitives of each
// shape.
type world struct {
	gravity  mgl32.Vec3
	objects  map[engine.Entity]*collisionObject
	cellSize float32

	// Manifolds for the most recent substep, keyed by canonical pair.
	manifolds map[ContactKey]*Manifold
	// Entities the dynamics moved this frame, in insertion order.
	moved      []engine.Entity
	movedSet   map[engine.Entity]struct{}
	accum      float32
	onSubstep  func()
	cells      map[cellKey][]*collisionObject
	candidates map[ContactKey]struct{}

	sleepLinearThreshold  float32
	sleepAngularThreshold float32
	sleepTime             float32
}

func newWorld(gravity mgl32.Vec3, cellSize float32) *world {
	if cellSize <= 0 {
		cellSize = 5.0
	}
	return &world{
		gravity:    gravity,
		objects:    make(map[engine.Entity]*collisionObject),
		cellSize:   cellSize,
		manifolds:  make(map[ContactKey]*Manifold),
		movedSet:   make(map[engine.Entity]struct{}),
		cells:      make(map[cellKey][]*collisionObject),
		candidates: make(map[ContactKey]struct{}),

		sleepLinearThreshold:  0.3,
		sleepAngularThreshold: 1.0,
		sleepTime:             0.5,
	}
}

func (w *world) add(obj *collisionObject) {
	w.objects[obj.entity] = obj
	obj.inWorld = true
}

func (w *world) remove(entity engine.Entity) {
	if obj, ok := w.objects[entity]; ok {
		obj.inWorld = false
		delete(w.objects, entity)
	}
	for key := range w.manifolds {
		if key.A == entity || key.B == entity {
			delete(w.manifolds, key)
		}
	}
}

func (w *world) contains(entity engine.Entity) bool {
	_, ok := w.objects[entity]
	return ok
}

// stepSimulation advances the world by dt, running up to maxSubsteps
// fixed substeps and carrying any remainder in an accumulator. With
// maxSubsteps <= 0, dt is taken as a single variable-length step.
func (w *world) stepSimulation(dt float32, maxSubsteps int, fixedStep float32) int {
	if maxSubsteps <= 0 {
		if dt > 0 {
			w.singleStep(dt)
			w.clearForces()
			return 1
		}
		return 0
	}
	w.accum += dt
	steps := int(w.accum / fixedStep)
	if steps == 0 {
		return 0
	}
	w.accum -= float32(steps) * fixedStep
	if steps > maxSubsteps {
		// Simulation time is lost here rather than spiraling.
		steps = maxSubsteps
	}
	for i := 0; i < steps; i++ {
		w.singleStep(fixedStep)
	}
	w.clearForces()
	return steps
}

func (w *world) clearForces() {
	for _, obj := range w.objects {
		obj.force = mgl32.Vec3{}
		obj.torque = mgl32.Vec3{}
	}
}

func (w *world) singleStep(dt float32) {
	w.integrate(dt)
	w.broadPhase()
	w.narrowPhase()
	w.resolveContacts(dt)
	if w.onSubstep != nil {
		w.onSubstep()
	}
}

func (w *world) integrate(dt float32) {
	for _, obj := range w.objects {
		if !obj.isDynamic() || obj.sleeping {
			continue
		}
		if obj.flags&flagDisableGravity == 0 {
			obj.linearVelocity = obj.linearVelocity.Add(w.gravity.Mul(dt))
		}
		if obj.invMass > 0 {
			obj.linearVelocity = obj.linearVelocity.Add(obj.force.Mul(obj.invMass * dt))
			obj.angularVelocity = obj.angularVelocity.Add(obj.torque.Mul(obj.invMass * dt))
		}
		// Gravity-exempt objects with no velocity (triggers) never move
		// and must not be reported as moved.
		if obj.linearVelocity.Len() < 1e-9 && obj.angularVelocity.Len() < 1e-9 {
			w.trySleep(obj, dt)
			continue
		}
		if obj.linearDamping > 0 {
			obj.linearVelocity = obj.linearVelocity.Mul(damping(obj.linearDamping, dt))
		}
		if obj.angularDamping > 0 {
			obj.angularVelocity = obj.angularVelocity.Mul(damping(obj.angularDamping, dt))
		}
		obj.position = obj.position.Add(obj.linearVelocity.Mul(dt))
		if speed := obj.angularVelocity.Len(); speed > 1e-6 {
			axis := obj.angularVelocity.Mul(1 / speed)
			dq := mgl32.QuatRotate(speed*dt, axis)
			obj.rotation = dq.Mul(obj.rotation).Normalize()
		}
		w.trySleep(obj, dt)
		w.markMoved(obj.entity)
	}
}

func damping(rate, dt float32) float32 {
	f := 1 - rate*dt
	if f < 0 {
		return 0
	}
	return f
}

func (w *world) trySleep(obj *collisionObject, dt float32) {
	if obj.linearVelocity.Len() < w.sleepLinearThreshold &&
		obj.angularVelocity.Len() < w.sleepAngularThreshold {
		obj.sleepTimer += dt
		if obj.sleepTimer >= w.sleepTime {
			obj.sleeping = true
			obj.linearVelocity = mgl32.Vec3{}
			obj.angularVelocity = mgl32.Vec3{}
		}
	} else {
		obj.sleepTimer = 0
	}
}

func (w *world) markMoved(entity engine.Entity) {
	if _, ok := w.movedSet[entity]; ok {
		return
	}
	w.movedSet[entity] = struct{}{}
	w.moved = append(w.moved, entity)
}

// drainMoved returns the entities moved by the simulation since the last
// call, in the order they first moved.
func (w *world) drainMoved() []engine.Entity {
	out := w.moved
	w.moved = nil
	clear(w.movedSet)
	return out
}

// broadPhase rebuilds the spatial hash and collects candidate pairs.
// Objects are inserted into every grid cell their world AABB overlaps, so
// pairs straddling cell borders are still found; the canonical key map
// dedupes pairs sharing several cells.
func (w *world) broadPhase() {
	clear(w.cells)
	clear(w.candidates)
	for _, obj := range w.objects {
		aabb := obj.worldAabb()
		minCell := w.cellOf(aabb.Min)
		maxCell := w.cellOf(aabb.Max)
		for x := minCell.X; x <= maxCell.X; x++ {
			for y := minCell.Y; y <= maxCell.Y; y++ {
				for z := minCell.Z; z <= maxCell.Z; z++ {
					key := cellKey{x, y, z}
					for _, other := range w.cells[key] {
						if w.pairEligible(obj, other) {
							w.candidates[MakeContactKey(obj.entity, other.entity)] = struct{}{}
						}
					}
					w.cells[key] = append(w.cells[key], obj)
				}
			}
		}
	}
}

func (w *world) cellOf(p mgl32.Vec3) cellKey {
	return cellKey{
		X: int32(math.Floor(float64(p.X() / w.cellSize))),
		Y: int32(math.Floor(float64(p.Y() / w.cellSize))),
		Z: int32(math.Floor(float64(p.Z() / w.cellSize))),
	}
}

func (w *world) pairEligible(a, b *collisionObject) bool {
	if a.entity == b.entity {
		return false
	}
	// Two objects that never move cannot start or stop touching.
	if a.isStatic() && b.isStatic() {
		return false
	}
	if a.group&b.mask == 0 || b.group&a.mask == 0 {
		return false
	}
	return true
}

// narrowPhase rebuilds the manifold map from the candidate pairs. Every
// realized primitive of one shape is tested against every primitive of
// the other; a pair's manifold aggregates the points from all of them.
func (w *world) narrowPhase() {
	clear(w.manifolds)
	for key := range w.candidates {
		a := w.objects[key.A]
		b := w.objects[key.B]
		if a == nil || b == nil {
			continue
		}
		if !a.worldAabb().Intersects(b.worldAabb()) {
			continue
		}
		var points []ContactPoint
		for _, pa := range a.shape.instances(a.position, a.rotation) {
			for _, pb := range b.shape.instances(b.position, b.rotation) {
				if pt, ok := collidePrims(pa, pb); ok {
					points = append(points, pt)
				}
			}
		}
		if len(points) > 0 {
			w.manifolds[key] = &Manifold{Key: key, Points: points}
		}
	}
}

// collidePrims tests two world-space primitives. The returned normal
// points from b toward a.
func collidePrims(a, b primInstance) (ContactPoint, bool) {
	aSphere := a.kind == ShapeSphere
	bSphere := b.kind == ShapeSphere
	switch {
	case aSphere && bSphere:
		return sphereSphere(a, b)
	case aSphere:
		return sphereBox(a, b, false)
	case bSphere:
		return sphereBox(b, a, true)
	default:
		return boxBox(a, b)
	}
}

func sphereSphere(a, b primInstance) (ContactPoint, bool) {
	delta := a.center.Sub(b.center)
	dist := delta.Len()
	sum := a.radius + b.radius
	if dist >= sum {
		return ContactPoint{}, false
	}
	normal := mgl32.Vec3{0, 1, 0}
	if dist > 1e-6 {
		normal = delta.Mul(1 / dist)
	}
	return ContactPoint{
		WorldPosition: b.center.Add(normal.Mul(b.radius)),
		Normal:        normal,
		Depth:         sum - dist,
	}, true
}

// sphereBox collides a sphere with a box via the box's closest point.
// flip is set when the caller swapped the operands to put the sphere
// first, so the normal is negated back to the b-toward-a convention.
func sphereBox(sphere, box primInstance, flip bool) (ContactPoint, bool) {
	obb := NewOBB(box.center, box.halfExtents, box.rotation)
	closest := obb.ClosestPoint(sphere.center)
	delta := sphere.center.Sub(closest)
	dist := delta.Len()
	if dist >= sphere.radius {
		return ContactPoint{}, false
	}
	normal := mgl32.Vec3{0, 1, 0}
	if dist > 1e-6 {
		normal = delta.Mul(1 / dist)
	} else {
		// Sphere center inside the box; push out along the cheapest face.
		normal = obb.FaceNormalToward(sphere.center)
	}
	if flip {
		normal = normal.Mul(-1)
	}
	return ContactPoint{
		WorldPosition: closest,
		Normal:        normal,
		Depth:         sphere.radius - dist,
	}, true
}

func boxBox(a, b primInstance) (ContactPoint, bool) {
	obbA := NewOBB(a.center, a.halfExtents, a.rotation)
	obbB := NewOBB(b.center, b.halfExtents, b.rotation)
	mtv := obbA.Resolve(obbB)
	depth := mtv.Len()
	if depth < 1e-6 {
		return ContactPoint{}, false
	}
	normal := mtv.Mul(1 / depth)
	// Approximate the contact point as the midpoint of the closest
	// points on each box toward the other's center.
	onA := obbA.ClosestPoint(b.center)
	onB := obbB.ClosestPoint(a.center)
	return ContactPoint{
		WorldPosition: onA.Add(onB).Mul(0.5),
		Normal:        normal,
		Depth:         depth,
	}, true
}

// resolveContacts applies positional correction and an impulse response
// for every manifold whose pair responds to contact. Triggers and other
// no-response objects keep their manifolds for the callbacks but are
// skipped here.
func (w *world) resolveContacts(dt float32) {
	for key, manifold := range w.manifolds {
		a := w.objects[key.A]
		b := w.objects[key.B]
		if a == nil || b == nil {
			continue
		}
		if !a.respondsToContact() || !b.respondsToContact() {
			continue
		}
		invMassSum := a.invMass + b.invMass
		if invMassSum == 0 {
			continue
		}
		for i := range manifold.Points {
			w.resolvePoint(a, b, &manifold.Points[i], invMassSum, dt)
		}
	}
}

func (w *world) resolvePoint(a, b *collisionObject, pt *ContactPoint, invMassSum, dt float32) {
	// Positional correction split by inverse mass ratio, with a small
	// slop so resting contacts do not jitter.
	const slop = 0.005
	depth := pt.Depth - slop
	if depth > 0 {
		correction := pt.Normal.Mul(depth / invMassSum)
		a.position = a.position.Add(correction.Mul(a.invMass))
		b.position = b.position.Sub(correction.Mul(b.invMass))
	}

	relVel := a.linearVelocity.Sub(b.linearVelocity)
	velAlongNormal := relVel.Dot(pt.Normal)
	if velAlongNormal > 0 {
		return
	}
	restitution := a.restitution * b.restitution
	j := -(1 + restitution) * velAlongNormal / invMassSum
	impulse := pt.Normal.Mul(j)
	a.linearVelocity = a.linearVelocity.Add(impulse.Mul(a.invMass))
	b.linearVelocity = b.linearVelocity.Sub(impulse.Mul(b.invMass))

	// Coulomb friction on the tangential velocity, clamped by the
	// normal impulse magnitude.
	relVel = a.linearVelocity.Sub(b.linearVelocity)
	tangent := relVel.Sub(pt.Normal.Mul(relVel.Dot(pt.Normal)))
	if tLen := tangent.Len(); tLen > 1e-6 {
		tangent = tangent.Mul(1 / tLen)
		jt := -relVel.Dot(tangent) / invMassSum
		mu := (a.friction + b.friction) * 0.5
		jt = clampf(jt, -j*mu, j*mu)
		frictionImpulse := tangent.Mul(jt)
		a.linearVelocity = a.linearVelocity.Add(frictionImpulse.Mul(a.invMass))
		b.linearVelocity = b.linearVelocity.Sub(frictionImpulse.Mul(b.invMass))
	}

	// Rolling friction dampens all rotation while in contact, spinning
	// friction only the component about the contact normal.
	if rf := a.rollingFriction + b.rollingFriction; rf > 0 {
		factor := damping(rf, dt)
		if a.isDynamic() {
			a.angularVelocity = a.angularVelocity.Mul(factor)
		}
		if b.isDynamic() {
			b.angularVelocity = b.angularVelocity.Mul(factor)
		}
	}
	if sf := a.spinningFriction + b.spinningFriction; sf > 0 {
		factor := 1 - damping(sf, dt)
		if a.isDynamic() {
			spin := pt.Normal.Mul(a.angularVelocity.Dot(pt.Normal))
			a.angularVelocity = a.angularVelocity.Sub(spin.Mul(factor))
		}
		if b.isDynamic() {
			spin := pt.Normal.Mul(b.angularVelocity.Dot(pt.Normal))
			b.angularVelocity = b.angularVelocity.Sub(spin.Mul(factor))
		}
	}

	if absf(velAlongNormal) > w.sleepLinearThreshold {
		a.wake()
		b.wake()
	}
	if a.isDynamic() {
		w.markMoved(a.entity)
	}
	if b.isDynamic() {
		w.markMoved(b.entity)
	}
}
