// Package progress publishes per-generation statistics of a running
// evolution over HTTP and websockets.
//
// A Reporter plugs into a neat.Population and feeds a Hub; a Server exposes
// the hub's latest Snapshot at /snapshot and streams new ones to /ws clients.
package progress

import "sync"

// Snapshot summarises one finished generation.
type Snapshot struct {
	Generation     int     `json:"generation"`
	BestFitness    float64 `json:"best_fitness"`
	BestGenome     int     `json:"best_genome"`
	MeanFitness    float64 `json:"mean_fitness"`
	StdevFitness   float64 `json:"stdev_fitness"`
	PopulationSize int     `json:"population_size"`
	Species        int     `json:"species"`
	ElapsedMillis  int64   `json:"elapsed_ms"`
	Solved         bool    `json:"solved"`
}

// Hub fans snapshots out to subscribers. Slow subscribers only ever see the
// most recent snapshot; older ones are dropped.
type Hub struct {
	mu          sync.Mutex
	latest      *Snapshot
	subscribers map[chan Snapshot]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Snapshot]struct{})}
}

// Publish records s as the latest snapshot and offers it to every subscriber.
func (h *Hub) Publish(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &s
	for ch := range h.subscribers {
		offer(ch, s)
	}
}

// Latest returns the most recent snapshot, if any was published.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Snapshot{}, false
	}
	return *h.latest, true
}

// Subscribe returns a channel of snapshots, primed with the latest one, and
// a function that ends the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	if h.latest != nil {
		ch <- *h.latest
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// offer replaces any unread snapshot in ch with s. Only the hub sends on
// subscriber channels, under its lock, so the second send cannot block.
func offer(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}
