package engine

import "reflect"

// Dispatcher routes typed events to per-entity listeners. It is the
// delivery channel for gameplay-facing notifications such as collision
// enter/exit.
type Dispatcher struct {
	handlers map[Entity]map[reflect.Type][]func(any)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Entity]map[reflect.Type][]func(any)),
	}
}

// Connect registers fn to receive events of type T sent to entity e.
func Connect[T any](d *Dispatcher, e Entity, fn func(T)) {
	if fn == nil {
		return
	}
	byType, ok := d.handlers[e]
	if !ok {
		byType = make(map[reflect.Type][]func(any))
		d.handlers[e] = byType
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	byType[t] = append(byType[t], func(event any) {
		fn(event.(T))
	})
}

// SendToEntity delivers an event to every listener registered for the
// event's concrete type on that entity. Entities with no listeners are a
// no-op.
func (d *Dispatcher) SendToEntity(e Entity, event any) {
	byType, ok := d.handlers[e]
	if !ok {
		return
	}
	for _, fn := range byType[reflect.TypeOf(event)] {
		fn(event)
	}
}

// ConnectionCount returns the number of listeners for event type T on e.
func ConnectionCount[T any](d *Dispatcher, e Entity) int {
	byType, ok := d.handlers[e]
	if !ok {
		return 0
	}
	return len(byType[reflect.TypeOf((*T)(nil)).Elem()])
}

// Disconnect drops every listener registered for the entity.
func (d *Dispatcher) Disconnect(e Entity) {
	delete(d.handlers, e)
}
