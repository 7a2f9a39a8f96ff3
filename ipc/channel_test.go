// https://github.com/nucleus-os/nucleus
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ipc

import "testing"

func TestBoundedChannelRoundTrip(t *testing.T) {
	c := NewBounded[int](2)
	c.Send(1)
	c.Send(2)

	if v := c.Receive(); v != 1 {
		t.Fatalf("Receive() = %d, want 1", v)
	}
	if v := c.Receive(); v != 2 {
		t.Fatalf("Receive() = %d, want 2", v)
	}
}

func TestUnboundedChannelNeverBlocksSend(t *testing.T) {
	c := NewUnbounded[int]()
	for i := 0; i < 64; i++ {
		c.Send(i)
	}
	for i := 0; i < 64; i++ {
		if v := c.Receive(); v != i {
			t.Fatalf("Receive() = %d, want %d", v, i)
		}
	}
}

func TestTryReceiveOnEmptyChannel(t *testing.T) {
	c := NewBounded[int](1)
	if _, ok := c.TryReceive(); ok {
		t.Fatalf("TryReceive on empty channel should return ok=false")
	}
}

func TestEventListenerLatchesSignal(t *testing.T) {
	e := NewEventListener()
	e.Signal()
	e.Wait() // should not block, the signal was latched before Wait

	if e.TryWait() {
		t.Fatalf("TryWait should find nothing after the latched signal was consumed")
	}

	e.Signal()
	if !e.TryWait() {
		t.Fatalf("TryWait should consume the new signal")
	}
}
