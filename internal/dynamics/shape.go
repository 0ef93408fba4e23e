package dynamics

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/engine"
)

// ShapeKind discriminates the closed set of collision shape part kinds.
type ShapeKind int

const (
	ShapeBox ShapeKind = iota
	ShapeSphere
	ShapeMesh
)

// ShapePart is one declarative piece of collision geometry, placed at a
// local transform relative to the owning entity. Use the BoxPart /
// SpherePart / MeshPart constructors; the zero value has a degenerate
// rotation and scale.
type ShapePart struct {
	Kind ShapeKind

	// Box payload.
	HalfExtents mgl32.Vec3
	// Sphere payload.
	Radius float32
	// Mesh payload. The buffers are borrowed during shape construction
	// only; the built shape keeps its own derived data.
	Vertices []mgl32.Vec3
	Indices  []uint32

	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

func BoxPart(halfExtents mgl32.Vec3) ShapePart {
	return ShapePart{
		Kind:        ShapeBox,
		HalfExtents: halfExtents,
		Rotation:    mgl32.QuatIdent(),
		Scale:       mgl32.Vec3{1, 1, 1},
	}
}

func SpherePart(radius float32) ShapePart {
	return ShapePart{
		Kind:     ShapeSphere,
		Radius:   radius,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

func MeshPart(vertices []mgl32.Vec3, indices []uint32) ShapePart {
	return ShapePart{
		Kind:     ShapeMesh,
		Vertices: vertices,
		Indices:  indices,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// At returns a copy of the part placed at the given local translation and
// rotation.
func (p ShapePart) At(translation mgl32.Vec3, rotation mgl32.Quat) ShapePart {
	p.Translation = translation
	p.Rotation = rotation
	return p
}

// Scaled returns a copy of the part with the given local scale.
func (p ShapePart) Scaled(scale mgl32.Vec3) ShapePart {
	p.Scale = scale
	return p
}

// hasIdentityPlacement reports whether the part sits at the origin with no
// rotation. Scale is deliberately excluded: a scaled primitive at the
// origin still avoids the compound wrapper.
func (p ShapePart) hasIdentityPlacement() bool {
	if p.Translation.Len() > 1e-6 {
		return false
	}
	rot := orIdentity(p.Rotation)
	return absf(rot.Dot(mgl32.QuatIdent())) > 1-1e-6
}

// primitive is the engine-side, transform-free core of a shape part.
// Meshes are collided through their local bounds.
type primitive struct {
	kind        ShapeKind
	halfExtents mgl32.Vec3
	radius      float32
	// Mesh-only: offset of the mesh bounds center in part-local space,
	// and the triangle count for introspection.
	meshCenter mgl32.Vec3
	triangles  int
}

// childShape is a primitive placed within a shape at a local transform.
type childShape struct {
	prim        primitive
	translation mgl32.Vec3
	rotation    mgl32.Quat
	scale       mgl32.Vec3
}

// CollisionShape is the built collision geometry for one entity. It is
// shared: a rigid body and a trigger volume on the same entity reference
// the same shape, as may cached shape templates.
//
// A shape is either a single primitive (one child at the identity
// placement, with the part's scale recorded in primaryScale) or a
// compound of children each at its own local transform. AABB-backed
// shapes (built with no parts) stay refittable via FitAabb.
type CollisionShape struct {
	compound     bool
	children     []childShape
	primaryScale mgl32.Vec3
	localScaling mgl32.Vec3
	aabbBacked   bool
}

// ErrEmptyMesh is returned for a mesh part with no vertices or triangles.
var ErrEmptyMesh = errors.New("dynamics: mesh shape part has no triangles")

// BuildShape turns a declarative part list into a single collision shape.
//
// With no parts, a unit box is wrapped in a one-child compound (so it can
// be repositioned and rescaled independently) and fitted to fallback.
// A single part at the identity placement is used directly with its scale
// recorded separately, since that scale must stack with the entity's own
// scale without double application. Anything else becomes a compound.
func BuildShape(parts []ShapePart, fallback engine.Aabb) (*CollisionShape, error) {
	if len(parts) == 0 {
		shape := &CollisionShape{
			compound: true,
			children: []childShape{{
				prim:     primitive{kind: ShapeBox, halfExtents: mgl32.Vec3{0.5, 0.5, 0.5}},
				rotation: mgl32.QuatIdent(),
				scale:    mgl32.Vec3{1, 1, 1},
			}},
			primaryScale: mgl32.Vec3{1, 1, 1},
			localScaling: mgl32.Vec3{1, 1, 1},
			aabbBacked:   true,
		}
		shape.FitAabb(fallback)
		return shape, nil
	}

	if len(parts) == 1 && parts[0].hasIdentityPlacement() {
		prim, err := makePrimitive(parts[0])
		if err != nil {
			return nil, err
		}
		scale := orOnes(parts[0].Scale)
		return &CollisionShape{
			children: []childShape{{
				prim:     prim,
				rotation: mgl32.QuatIdent(),
				scale:    mgl32.Vec3{1, 1, 1},
			}},
			primaryScale: scale,
			localScaling: scale,
		}, nil
	}

	shape := &CollisionShape{
		compound:     true,
		children:     make([]childShape, 0, len(parts)),
		primaryScale: mgl32.Vec3{1, 1, 1},
		localScaling: mgl32.Vec3{1, 1, 1},
	}
	for _, part := range parts {
		prim, err := makePrimitive(part)
		if err != nil {
			return nil, err
		}
		shape.children = append(shape.children, childShape{
			prim:        prim,
			translation: part.Translation,
			rotation:    orIdentity(part.Rotation),
			scale:       orOnes(part.Scale),
		})
	}
	return shape, nil
}

func makePrimitive(part ShapePart) (primitive, error) {
	switch part.Kind {
	case ShapeBox:
		return primitive{kind: ShapeBox, halfExtents: part.HalfExtents}, nil
	case ShapeSphere:
		return primitive{kind: ShapeSphere, radius: part.Radius}, nil
	case ShapeMesh:
		if len(part.Vertices) == 0 || len(part.Indices) < 3 {
			return primitive{}, ErrEmptyMesh
		}
		bounds := meshBounds(part.Vertices)
		return primitive{
			kind:        ShapeMesh,
			halfExtents: bounds.Size().Mul(0.5),
			meshCenter:  bounds.Center(),
			triangles:   len(part.Indices) / 3,
		}, nil
	default:
		return primitive{}, errors.New("dynamics: unknown shape part kind")
	}
}

func meshBounds(vertices []mgl32.Vec3) engine.Aabb {
	min := mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	max := min.Mul(-1)
	for _, v := range vertices {
		for i := 0; i < 3; i++ {
			if v[i] < min[i] {
				min[i] = v[i]
			}
			if v[i] > max[i] {
				max[i] = v[i]
			}
		}
	}
	return engine.Aabb{Min: min, Max: max}
}

// IsCompound reports whether the shape wraps its children in a compound.
// A non-compound shape has exactly one child at the identity placement.
func (s *CollisionShape) IsCompound() bool {
	return s.compound
}

// ChildCount returns the number of child primitives.
func (s *CollisionShape) ChildCount() int {
	return len(s.children)
}

// PrimaryScale is the scale a single-primitive shape carries from its
// part, applied on top of the entity's scale. Compounds report unit scale.
func (s *CollisionShape) PrimaryScale() mgl32.Vec3 {
	return s.primaryScale
}

// SetLocalScaling applies a new scaling to the whole shape. Returns true
// when the scale actually changed; rescaling collision geometry is
// expensive, so callers skip downstream work on false.
func (s *CollisionShape) SetLocalScaling(scale mgl32.Vec3) bool {
	if scale.ApproxEqual(s.localScaling) {
		return false
	}
	s.localScaling = scale
	return true
}

// LocalScaling returns the current whole-shape scaling.
func (s *CollisionShape) LocalScaling() mgl32.Vec3 {
	return s.localScaling
}

// AabbBacked reports whether the shape was built from a fallback bounding
// box rather than declared parts.
func (s *CollisionShape) AabbBacked() bool {
	return s.aabbBacked
}

// FitAabb re-derives an AABB-backed shape from a new bounding box: the
// unit box child is rescaled to the box size and re-centered at its
// center. No-op for shapes built from declared parts.
func (s *CollisionShape) FitAabb(aabb engine.Aabb) {
	if !s.aabbBacked || len(s.children) == 0 {
		return
	}
	s.children[0].scale = aabb.Size()
	s.children[0].translation = aabb.Center()
}

// localBounds returns the union of the children's bounds in shape-local
// space, with the current local scaling applied.
func (s *CollisionShape) localBounds() engine.Aabb {
	bounds := engine.Aabb{
		Min: mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: mgl32.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
	for _, inst := range s.instances(mgl32.Vec3{}, mgl32.QuatIdent()) {
		var child engine.Aabb
		switch inst.kind {
		case ShapeSphere:
			r := mgl32.Vec3{inst.radius, inst.radius, inst.radius}
			child = engine.Aabb{Min: inst.center.Sub(r), Max: inst.center.Add(r)}
		default:
			child = NewOBB(inst.center, inst.halfExtents, inst.rotation).EnclosingAabb()
		}
		for i := 0; i < 3; i++ {
			if child.Min[i] < bounds.Min[i] {
				bounds.Min[i] = child.Min[i]
			}
			if child.Max[i] > bounds.Max[i] {
				bounds.Max[i] = child.Max[i]
			}
		}
	}
	return bounds
}

// primInstance is a primitive realized in world space, ready for the
// narrow phase. Meshes appear as their bounds box.
type primInstance struct {
	kind        ShapeKind
	center      mgl32.Vec3
	rotation    mgl32.Quat
	halfExtents mgl32.Vec3
	radius      float32
}

// instances realizes the shape's primitives at a world position and
// rotation, with local scaling folded into extents, radii, and child
// offsets.
func (s *CollisionShape) instances(position mgl32.Vec3, rotation mgl32.Quat) []primInstance {
	out := make([]primInstance, 0, len(s.children))
	for _, child := range s.children {
		scale := mulElem(child.scale, s.localScaling)
		offset := mulElem(child.translation, s.localScaling)
		if child.prim.kind == ShapeMesh {
			offset = offset.Add(child.rotation.Rotate(mulElem(child.prim.meshCenter, scale)))
		}
		inst := primInstance{
			kind:     child.prim.kind,
			center:   position.Add(rotation.Rotate(offset)),
			rotation: rotation.Mul(child.rotation),
		}
		switch child.prim.kind {
		case ShapeSphere:
			inst.radius = child.prim.radius * maxComponent(scale)
		default:
			inst.halfExtents = mulElem(child.prim.halfExtents, scale)
		}
		out = append(out, inst)
	}
	return out
}

func orIdentity(q mgl32.Quat) mgl32.Quat {
	if q.Len() < 1e-6 {
		return mgl32.QuatIdent()
	}
	return q
}

func orOnes(v mgl32.Vec3) mgl32.Vec3 {
	if v == (mgl32.Vec3{}) {
		return mgl32.Vec3{1, 1, 1}
	}
	return v
}

func mulElem(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a.X() * b.X(), a.Y() * b.Y(), a.Z() * b.Z()}
}

func maxComponent(v mgl32.Vec3) float32 {
	m := v.X()
	if v.Y() > m {
		m = v.Y()
	}
	if v.Z() > m {
		m = v.Z()
	}
	return m
}
