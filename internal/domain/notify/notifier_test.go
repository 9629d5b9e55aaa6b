package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_SignalReachesSubscribers(t *testing.T) {
	n := NewToolChangeNotifier()
	ch, unsub := n.Subscribe()
	defer unsub()

	n.Signal()

	select {
	case gen := <-ch:
		assert.Equal(t, uint64(1), gen)
	default:
		t.Fatal("expected a pending notification")
	}
}

func TestNotifier_SignalsCoalesce(t *testing.T) {
	n := NewToolChangeNotifier()
	ch, unsub := n.Subscribe()
	defer unsub()

	n.Signal()
	n.Signal()
	n.Signal()

	<-ch
	select {
	case <-ch:
		t.Fatal("signals while a wakeup is pending must coalesce")
	default:
	}
	assert.Equal(t, uint64(3), n.Generation())
}

func TestNotifier_UnsubscribeStopsDelivery(t *testing.T) {
	n := NewToolChangeNotifier()
	ch, unsub := n.Subscribe()
	unsub()

	n.Signal()

	select {
	case <-ch:
		t.Fatal("unsubscribed channel must not receive")
	default:
	}
	require.Equal(t, uint64(1), n.Generation())
}
