package engine

import "testing"

type pingEvent struct{ Value int }
type pongEvent struct{ Value int }

func TestDispatcherSendToEntity(t *testing.T) {
	d := NewDispatcher()
	e := Entity(1)

	var got int
	Connect(d, e, func(ev pingEvent) { got = ev.Value })

	d.SendToEntity(e, pingEvent{Value: 42})

	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}

func TestDispatcherTypeIsolation(t *testing.T) {
	d := NewDispatcher()
	e := Entity(1)

	pings, pongs := 0, 0
	Connect(d, e, func(pingEvent) { pings++ })
	Connect(d, e, func(pongEvent) { pongs++ })

	d.SendToEntity(e, pingEvent{})

	if pings != 1 || pongs != 0 {
		t.Errorf("Expected 1 ping and 0 pongs, got %d and %d", pings, pongs)
	}
}

func TestDispatcherEntityIsolation(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	Connect(d, Entity(1), func(pingEvent) { calls++ })

	d.SendToEntity(Entity(2), pingEvent{})

	if calls != 0 {
		t.Error("listener on entity 1 should not receive entity 2's events")
	}
}

func TestDispatcherDisconnect(t *testing.T) {
	d := NewDispatcher()
	e := Entity(1)

	calls := 0
	Connect(d, e, func(pingEvent) { calls++ })

	if ConnectionCount[pingEvent](d, e) != 1 {
		t.Errorf("Expected 1 connection, got %d", ConnectionCount[pingEvent](d, e))
	}

	d.Disconnect(e)
	d.SendToEntity(e, pingEvent{})

	if calls != 0 {
		t.Error("disconnected listener should not be invoked")
	}
}
