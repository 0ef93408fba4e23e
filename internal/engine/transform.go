package engine

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a translation + rotation + scale triple.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// IdentityTransform returns a transform with no translation, no rotation
// and unit scale.
func IdentityTransform() Transform {
	return Transform{
		Position: mgl32.Vec3{},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix composes the transform into a column-major matrix (T * R * S).
func (t Transform) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(t.Rotation.Mat4()).Mul4(scale)
}

// Aabb is an axis-aligned bounding box.
type Aabb struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// AabbFromCenterSize creates an Aabb from a center point and full size.
func AabbFromCenterSize(center, size mgl32.Vec3) Aabb {
	half := size.Mul(0.5)
	return Aabb{Min: center.Sub(half), Max: center.Add(half)}
}

func (a Aabb) Center() mgl32.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

func (a Aabb) Size() mgl32.Vec3 {
	return a.Max.Sub(a.Min)
}

func (a Aabb) Intersects(b Aabb) bool {
	return a.Min.X() <= b.Max.X() && a.Max.X() >= b.Min.X() &&
		a.Min.Y() <= b.Max.Y() && a.Max.Y() >= b.Min.Y() &&
		a.Min.Z() <= b.Max.Z() && a.Max.Z() >= b.Min.Z()
}

// mulElem multiplies two vectors component-wise.
func mulElem(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a.X() * b.X(), a.Y() * b.Y(), a.Z() * b.Z()}
}
