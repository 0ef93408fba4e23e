package physics

import "phys3d/internal/engine"

// CollisionEnterEvent is sent to an entity when it starts touching
// another. Both entities of a pair receive one, each naming the other.
type CollisionEnterEvent struct {
	Self  engine.Entity
	Other engine.Entity
}

// CollisionExitEvent is sent to an entity when it stops touching another.
type CollisionExitEvent struct {
	Self  engine.Entity
	Other engine.Entity
}
