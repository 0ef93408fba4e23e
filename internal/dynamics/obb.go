package dynamics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"phys3d/internal/engine"
)

// OBB is an oriented bounding box: a world-space center, half-extents
// along its local axes, and the rotated axes themselves.
type OBB struct {
	Center   mgl32.Vec3
	HalfSize mgl32.Vec3
	Axes     [3]mgl32.Vec3
}

// NewOBB creates an OBB from a world-space center, half-extents, and a
// rotation.
func NewOBB(center, halfSize mgl32.Vec3, rotation mgl32.Quat) OBB {
	return OBB{
		Center:   center,
		HalfSize: halfSize,
		Axes: [3]mgl32.Vec3{
			rotation.Rotate(mgl32.Vec3{1, 0, 0}),
			rotation.Rotate(mgl32.Vec3{0, 1, 0}),
			rotation.Rotate(mgl32.Vec3{0, 0, 1}),
		},
	}
}

// Intersects tests two OBBs using the separating axis theorem: the 3 face
// normals of each box plus the 9 edge cross products.
func (a OBB) Intersects(b OBB) bool {
	t := b.Center.Sub(a.Center)

	for i := 0; i < 3; i++ {
		if !overlapOnAxis(a, b, a.Axes[i], t) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		if !overlapOnAxis(a, b, b.Axes[i], t) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			axis := a.Axes[i].Cross(b.Axes[j])
			// Skip near-zero axes (parallel edges).
			if axis.Len() > 1e-4 {
				if !overlapOnAxis(a, b, axis.Normalize(), t) {
					return false
				}
			}
		}
	}
	return true
}

func projectOnAxis(o OBB, axis mgl32.Vec3) float32 {
	return o.HalfSize.X()*absf(o.Axes[0].Dot(axis)) +
		o.HalfSize.Y()*absf(o.Axes[1].Dot(axis)) +
		o.HalfSize.Z()*absf(o.Axes[2].Dot(axis))
}

func overlapOnAxis(a, b OBB, axis, t mgl32.Vec3) bool {
	return absf(t.Dot(axis)) <= projectOnAxis(a, axis)+projectOnAxis(b, axis)
}

// Resolve returns the minimum translation vector that pushes a out of b,
// or the zero vector when the boxes do not overlap.
func (a OBB) Resolve(b OBB) mgl32.Vec3 {
	if !a.Intersects(b) {
		return mgl32.Vec3{}
	}

	t := b.Center.Sub(a.Center)
	minPenetration := float32(math.MaxFloat32)
	var mtv mgl32.Vec3

	testAxis := func(axis mgl32.Vec3) {
		if axis.Len() < 1e-4 {
			return
		}
		axis = axis.Normalize()
		dist := t.Dot(axis)
		penetration := projectOnAxis(a, axis) + projectOnAxis(b, axis) - absf(dist)
		if penetration < minPenetration {
			minPenetration = penetration
			// Push away from b.
			if dist < 0 {
				mtv = axis.Mul(penetration)
			} else {
				mtv = axis.Mul(-penetration)
			}
		}
	}

	for i := 0; i < 3; i++ {
		testAxis(a.Axes[i])
	}
	for i := 0; i < 3; i++ {
		testAxis(b.Axes[i])
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			testAxis(a.Axes[i].Cross(b.Axes[j]))
		}
	}

	return mtv
}

// ClosestPoint returns the closest point on the OBB surface (or interior)
// to the given world-space point.
func (o OBB) ClosestPoint(point mgl32.Vec3) mgl32.Vec3 {
	local := point.Sub(o.Center)
	result := o.Center
	half := [3]float32{o.HalfSize.X(), o.HalfSize.Y(), o.HalfSize.Z()}
	for i := 0; i < 3; i++ {
		d := clampf(local.Dot(o.Axes[i]), -half[i], half[i])
		result = result.Add(o.Axes[i].Mul(d))
	}
	return result
}

// FaceNormalToward returns the outward face normal of the face nearest
// the given point, for points at or inside the box surface.
func (o OBB) FaceNormalToward(point mgl32.Vec3) mgl32.Vec3 {
	local := point.Sub(o.Center)
	half := [3]float32{o.HalfSize.X(), o.HalfSize.Y(), o.HalfSize.Z()}
	best := 0
	bestDist := float32(math.MaxFloat32)
	sign := float32(1)
	for i := 0; i < 3; i++ {
		d := local.Dot(o.Axes[i])
		dist := half[i] - absf(d)
		if dist < bestDist {
			bestDist = dist
			best = i
			if d < 0 {
				sign = -1
			} else {
				sign = 1
			}
		}
	}
	return o.Axes[best].Mul(sign)
}

// EnclosingAabb returns the tightest axis-aligned box containing the OBB.
func (o OBB) EnclosingAabb() engine.Aabb {
	extent := mgl32.Vec3{
		o.HalfSize.X()*absf(o.Axes[0].X()) + o.HalfSize.Y()*absf(o.Axes[1].X()) + o.HalfSize.Z()*absf(o.Axes[2].X()),
		o.HalfSize.X()*absf(o.Axes[0].Y()) + o.HalfSize.Y()*absf(o.Axes[1].Y()) + o.HalfSize.Z()*absf(o.Axes[2].Y()),
		o.HalfSize.X()*absf(o.Axes[0].Z()) + o.HalfSize.Y()*absf(o.Axes[1].Z()) + o.HalfSize.Z()*absf(o.Axes[2].Z()),
	}
	return engine.Aabb{Min: o.Center.Sub(extent), Max: o.Center.Add(extent)}
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func clampf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
