// Package notify fans out tool-set change signals to gateway SSE
// connections.
package notify

import "sync"

// ToolChangeNotifier broadcasts "the exposed tool set changed". Signals
// are edge-triggered and coalesced: a subscriber with a wakeup already
// pending sees one notification for any number of signals.
type ToolChangeNotifier struct {
	mu         sync.Mutex
	generation uint64
	nextID     int
	subs       map[int]chan uint64
}

// NewToolChangeNotifier creates a notifier.
func NewToolChangeNotifier() *ToolChangeNotifier {
	return &ToolChangeNotifier{subs: make(map[int]chan uint64)}
}

// Signal records a change and pokes every subscriber without blocking.
func (n *ToolChangeNotifier) Signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.generation++
	for _, ch := range n.subs {
		select {
		case ch <- n.generation:
		default:
		}
	}
}

// Subscribe registers a listener and returns its channel plus an
// unsubscribe func. The channel has capacity one.
func (n *ToolChangeNotifier) Subscribe() (<-chan uint64, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	ch := make(chan uint64, 1)
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Generation returns the current change counter.
func (n *ToolChangeNotifier) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.generation
}
