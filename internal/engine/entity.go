package engine

// Entity is a stable opaque identifier for a scene object. The zero value
// is never assigned to a real object.
type Entity uint32

// InvalidEntity is the null entity. Parent queries return it for roots.
const InvalidEntity Entity = 0
