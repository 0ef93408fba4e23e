package engine

import (
	"github.com/go-gl/mathgl/mgl32"
)

// node is the scene's internal record for one entity.
type node struct {
	name      string
	tags      []string
	transform Transform
	parent    Entity
	children  []Entity
	enabled   bool
	aabb      Aabb
}

// ParentChangedEvent fires when an entity is moved under a new parent.
// NewParent is InvalidEntity when the entity becomes a root.
type ParentChangedEvent struct {
	Target    Entity
	NewParent Entity
}

// Scene is a hierarchy of entities, each with a local transform, an
// enabled flag and a local-space bounding box. Entity ids are stable for
// the lifetime of the scene and never reused.
type Scene struct {
	Name   string
	nodes  map[Entity]*node
	nextID Entity

	OnParentChanged EventWithArg[ParentChangedEvent]
	OnAabbChanged   EventWithArg[Entity]
	OnEnabled       EventWithArg[Entity]
	OnDisabled      EventWithArg[Entity]
	OnDestroyed     EventWithArg[Entity]
}

func NewScene(name string) *Scene {
	return &Scene{
		Name:   name,
		nodes:  make(map[Entity]*node),
		nextID: 1,
	}
}

// CreateEntity allocates a new root entity with an identity transform.
func (s *Scene) CreateEntity(name string) Entity {
	e := s.nextID
	s.nextID++
	s.nodes[e] = &node{
		name:      name,
		transform: IdentityTransform(),
		enabled:   true,
	}
	return e
}

// DestroyEntity removes an entity and detaches its children (they become
// roots). Fires OnDestroyed before the node is dropped so listeners can
// still query it.
func (s *Scene) DestroyEntity(e Entity) {
	n, ok := s.nodes[e]
	if !ok {
		return
	}
	s.OnDestroyed.Invoke(e)
	if n.parent != InvalidEntity {
		s.detachFromParent(e, n)
	}
	for _, child := range n.children {
		if cn, ok := s.nodes[child]; ok {
			cn.parent = InvalidEntity
		}
	}
	delete(s.nodes, e)
}

// Exists reports whether the entity is live in this scene.
func (s *Scene) Exists(e Entity) bool {
	_, ok := s.nodes[e]
	return ok
}

func (s *Scene) NameOf(e Entity) string {
	if n, ok := s.nodes[e]; ok {
		return n.name
	}
	return ""
}

// FindByName returns the first entity with the given name, or InvalidEntity.
func (s *Scene) FindByName(name string) Entity {
	for e, n := range s.nodes {
		if n.name == name {
			return e
		}
	}
	return InvalidEntity
}

// Transform returns the entity's local transform. Unknown entities get the
// identity transform.
func (s *Scene) Transform(e Entity) Transform {
	if n, ok := s.nodes[e]; ok {
		return n.transform
	}
	return IdentityTransform()
}

func (s *Scene) SetTransform(e Entity, t Transform) {
	if n, ok := s.nodes[e]; ok {
		n.transform = t
	}
}

// SetParent reparents an entity. Passing InvalidEntity makes it a root.
// Fires OnParentChanged after the hierarchy is updated.
func (s *Scene) SetParent(e, parent Entity) {
	n, ok := s.nodes[e]
	if !ok {
		return
	}
	if n.parent == parent {
		return
	}
	if n.parent != InvalidEntity {
		s.detachFromParent(e, n)
	}
	n.parent = parent
	if parent != InvalidEntity {
		if pn, ok := s.nodes[parent]; ok {
			pn.children = append(pn.children, e)
		}
	}
	s.OnParentChanged.Invoke(ParentChangedEvent{Target: e, NewParent: parent})
}

func (s *Scene) detachFromParent(e Entity, n *node) {
	pn, ok := s.nodes[n.parent]
	if !ok {
		n.parent = InvalidEntity
		return
	}
	for i, c := range pn.children {
		if c == e {
			pn.children = append(pn.children[:i], pn.children[i+1:]...)
			break
		}
	}
	n.parent = InvalidEntity
}

func (s *Scene) Parent(e Entity) Entity {
	if n, ok := s.nodes[e]; ok {
		return n.parent
	}
	return InvalidEntity
}

func (s *Scene) Children(e Entity) []Entity {
	if n, ok := s.nodes[e]; ok {
		return n.children
	}
	return nil
}

// SetEnabled toggles the entity. Fires OnEnabled/OnDisabled only on an
// actual state change.
func (s *Scene) SetEnabled(e Entity, enabled bool) {
	n, ok := s.nodes[e]
	if !ok || n.enabled == enabled {
		return
	}
	n.enabled = enabled
	if enabled {
		s.OnEnabled.Invoke(e)
	} else {
		s.OnDisabled.Invoke(e)
	}
}

func (s *Scene) Enabled(e Entity) bool {
	if n, ok := s.nodes[e]; ok {
		return n.enabled
	}
	return false
}

// Aabb returns the entity's local-space bounding box.
func (s *Scene) Aabb(e Entity) Aabb {
	if n, ok := s.nodes[e]; ok {
		return n.aabb
	}
	return Aabb{}
}

// SetAabb updates the entity's local-space bounding box and fires
// OnAabbChanged.
func (s *Scene) SetAabb(e Entity, aabb Aabb) {
	n, ok := s.nodes[e]
	if !ok {
		return
	}
	n.aabb = aabb
	s.OnAabbChanged.Invoke(e)
}

// WorldPosition returns the entity's position in world space. Local
// translation is scaled and rotated by the parent chain.
func (s *Scene) WorldPosition(e Entity) mgl32.Vec3 {
	n, ok := s.nodes[e]
	if !ok {
		return mgl32.Vec3{}
	}
	if n.parent == InvalidEntity {
		return n.transform.Position
	}
	parentPos := s.WorldPosition(n.parent)
	parentRot := s.WorldRotation(n.parent)
	parentScale := s.WorldScale(n.parent)
	scaled := mulElem(n.transform.Position, parentScale)
	return parentPos.Add(parentRot.Rotate(scaled))
}

// WorldRotation composes rotations down the parent chain.
func (s *Scene) WorldRotation(e Entity) mgl32.Quat {
	n, ok := s.nodes[e]
	if !ok {
		return mgl32.QuatIdent()
	}
	if n.parent == InvalidEntity {
		return n.transform.Rotation
	}
	return s.WorldRotation(n.parent).Mul(n.transform.Rotation)
}

// WorldScale multiplies scales down the parent chain.
func (s *Scene) WorldScale(e Entity) mgl32.Vec3 {
	n, ok := s.nodes[e]
	if !ok {
		return mgl32.Vec3{1, 1, 1}
	}
	if n.parent == InvalidEntity {
		return n.transform.Scale
	}
	return mulElem(s.WorldScale(n.parent), n.transform.Scale)
}

// WorldTransform returns the entity's world-space TRS.
func (s *Scene) WorldTransform(e Entity) Transform {
	return Transform{
		Position: s.WorldPosition(e),
		Rotation: s.WorldRotation(e),
		Scale:    s.WorldScale(e),
	}
}

// WorldFromEntity returns the world-from-entity matrix.
func (s *Scene) WorldFromEntity(e Entity) mgl32.Mat4 {
	return s.WorldTransform(e).Matrix()
}
