package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPumpCloseReleasesBlockedEmit(t *testing.T) {
	p := NewPump(1)
	p.Emit(Event{Kind: EventConnect})

	emitted := make(chan struct{})
	go func() {
		p.Emit(Event{Kind: EventError})
		close(emitted)
	}()

	select {
	case <-emitted:
		t.Fatal("emit into a full buffer returned")
	case <-time.After(50 * time.Millisecond):
	}

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	for _, ch := range []chan struct{}{closed, emitted} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("close blocked on a pending emit")
		}
	}

	// Buffered events stay readable after Close.
	ev, ok := <-p.Events()
	require.True(t, ok)
	require.Equal(t, EventConnect, ev.Kind)
	_, ok = <-p.Events()
	require.False(t, ok)

	p.Emit(Event{Kind: EventConnect})
	p.Close()
}
