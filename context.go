package distepi

import (
	"sync"

	"github.com/pkg/errors"
)

// ThreadContext is per-thread slotted storage with a designated master slot
// used as a single-writer reduction target (§4.2). T is typically a small
// struct of counters or a local variable value.
type ThreadContext[T any] struct {
	mu         sync.Mutex
	slots      []T
	masterSlot int
}

// NewThreadContext allocates n per-thread slots, each initialized by init,
// with slot 0 designated the master slot.
func NewThreadContext[T any](n int, init func() T) *ThreadContext[T] {
	c := &ThreadContext[T]{slots: make([]T, n)}
	for i := range c.slots {
		c.slots[i] = init()
	}
	return c
}

// Active returns a pointer to the caller's own slot. Callers are expected
// to only touch the slot for their own thread index; the type itself does
// not enforce which goroutine calls with which index (§4.2 correctness
// rule: the caller must discipline itself to its own slot).
func (c *ThreadContext[T]) Active(threadIndex int) *T { return &c.slots[threadIndex] }

// Master returns a pointer to the master slot.
func (c *ThreadContext[T]) Master() *T { return &c.slots[c.masterSlot] }

// Each calls fn once per thread slot, in index order.
func (c *ThreadContext[T]) Each(fn func(i int, slot *T)) {
	for i := range c.slots {
		fn(i, &c.slots[i])
	}
}

// Len returns the number of thread slots.
func (c *ThreadContext[T]) Len() int { return len(c.slots) }

// ReduceToMaster runs fn(master, slot) for every non-master slot inside a
// single-writer critical section, matching §4.2's "master slot is a
// reduction target updated only within a single-writer region".
func (c *ThreadContext[T]) ReduceToMaster(fn func(master, slot *T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	master := &c.slots[c.masterSlot]
	for i := range c.slots {
		if i == c.masterSlot {
			continue
		}
		fn(master, &c.slots[i])
	}
}

// ProcessTopology describes this process's position among the run's
// processes, used to derive the round-robin message schedule (§4.2).
type ProcessTopology struct {
	Rank       int
	NumProcess int
}

// roundRobinSchedule returns, for each round, the peer rank this process is
// paired with (-1 if it sits out the round), following the standard
// circle/polygon method so that for P processes there are
// ceil(P/2)*(P-1 or P) total pairings and every unordered pair meets
// exactly once (§4.2).
func roundRobinSchedule(topo ProcessTopology) [][]int {
	p := topo.NumProcess
	if p <= 1 {
		return nil
	}
	// Pad to an even count with a sentinel "bye" rank (p itself) if P is odd.
	n := p
	odd := p%2 == 1
	if odd {
		n = p + 1
	}
	rounds := n - 1
	ring := make([]int, n)
	for i := range ring {
		ring[i] = i
	}
	schedule := make([][]int, rounds)
	for r := 0; r < rounds; r++ {
		pairOf := make([]int, n)
		for i := range pairOf {
			pairOf[i] = -1
		}
		for i := 0; i < n/2; i++ {
			a, b := ring[i], ring[n-1-i]
			if (odd && a == p) || (odd && b == p) {
				continue
			}
			pairOf[a], pairOf[b] = b, a
		}
		schedule[r] = pairOf
		// rotate all but the first element
		last := ring[n-1]
		copy(ring[2:], ring[1:n-1])
		ring[1] = last
	}
	return schedule
}

// PeerExchange is the symmetric round-robin messaging primitive (§4.2): for
// each round of the schedule, this process either sends-then-receives or
// receives-then-sends against its paired peer (by rank order, lower rank
// sends first), invoking decode on whatever bytes the transport layer hands
// back. Transport is abstracted behind Transport so the core has no socket
// or MPI dependency.
type PeerExchange struct {
	Topo      ProcessTopology
	Transport Transport
}

// Transport is the minimum cross-process communication primitive the core
// needs; a real deployment backs this with MPI, gRPC, or raw sockets.
type Transport interface {
	SendTo(peer int, data []byte) error
	ReceiveFrom(peer int) ([]byte, error)
	Barrier() error
}

// Round performs one full round-robin sweep: every process round executes
// build(peer) to produce its outgoing payload and decode(peer, data) for
// whatever it receives. A peer value of -1 means this process sits out the
// round (odd process count).
func (p *PeerExchange) Round(build func(peer int) []byte, decode func(peer int, data []byte)) error {
	schedule := roundRobinSchedule(p.Topo)
	for _, pairing := range schedule {
		peer := pairing[p.Topo.Rank]
		if peer < 0 || peer >= p.Topo.NumProcess {
			continue
		}
		payload := build(peer)
		if p.Topo.Rank < peer {
			if err := p.Transport.SendTo(peer, payload); err != nil {
				return errors.Wrap(err, "round-robin send")
			}
			data, err := p.Transport.ReceiveFrom(peer)
			if err != nil {
				return errors.Wrap(err, "round-robin receive")
			}
			decode(peer, data)
		} else {
			data, err := p.Transport.ReceiveFrom(peer)
			if err != nil {
				return errors.Wrap(err, "round-robin receive")
			}
			decode(peer, data)
			if err := p.Transport.SendTo(peer, payload); err != nil {
				return errors.Wrap(err, "round-robin send")
			}
		}
	}
	return nil
}

// BroadcastAll rotates the sender role across every process: on the
// sender's turn build(ownRank) supplies the payload; every other process
// calls decode(sender, data) (§4.2 "broadcast-all primitive").
func (p *PeerExchange) BroadcastAll(build func() []byte, decode func(sender int, data []byte)) error {
	for sender := 0; sender < p.Topo.NumProcess; sender++ {
		if sender == p.Topo.Rank {
			payload := build()
			for peer := 0; peer < p.Topo.NumProcess; peer++ {
				if peer == sender {
					continue
				}
				if err := p.Transport.SendTo(peer, payload); err != nil {
					return errors.Wrap(err, "broadcast send")
				}
			}
		} else {
			data, err := p.Transport.ReceiveFrom(sender)
			if err != nil {
				return errors.Wrap(err, "broadcast receive")
			}
			decode(sender, data)
		}
		if err := p.Transport.Barrier(); err != nil {
			return errors.Wrap(err, "broadcast barrier")
		}
	}
	return nil
}

// Sequential guarantees fn runs on one process at a time, in rank order
// (§4.2 "sequential primitive"), used for ordered CSV flushing (§4.11).
func (p *PeerExchange) Sequential(fn func()) error {
	for turn := 0; turn < p.Topo.NumProcess; turn++ {
		if turn == p.Topo.Rank {
			fn()
		}
		if err := p.Transport.Barrier(); err != nil {
			return errors.Wrap(err, "sequential barrier")
		}
	}
	return nil
}

// RMACounterStore is the remote-memory-access counter service hosted on
// process 0 (§4.2). Counters are fixed-size float64 slots addressed by a
// stable index, updated under a per-window exclusive lock.
type RMACounterStore struct {
	mu       sync.Mutex
	counters []float64
	fence    sync.WaitGroup
}

// NewRMACounterStore allocates n counters, all initialized to zero.
func NewRMACounterStore(n int) *RMACounterStore {
	return &RMACounterStore{counters: make([]float64, n)}
}

// Grow extends the counter table to accommodate index, if needed; used when
// a new global variable is registered after load.
func (s *RMACounterStore) Grow(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= len(s.counters) {
		grown := make([]float64, index+1)
		copy(grown, s.counters)
		s.counters = grown
	}
}

// Get returns the current value of counter index.
func (s *RMACounterStore) Get(index int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[index]
}

// Update performs an atomic get-modify-put against counter index using op,
// matching §4.2's "atomic get-modify-put under a per-window exclusive lock".
func (s *RMACounterStore) Update(index int, op WriteOperator, value float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.counters[index]
	updated, err := op.Apply(NumberValue(current), NumberValue(value))
	if err != nil {
		return 0, err
	}
	s.counters[index] = updated.Number
	return updated.Number, nil
}

// Set forces counter index to value, used by the reset phase (§4.4).
func (s *RMACounterStore) Set(index int, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[index] = value
}
