package distepi

import (
	"encoding/binary"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// priorityBucket maps a dense priority order to the actions scheduled at
// that order within one tick bucket (§4.9 "a map from priority → vector of
// actions").
type priorityBucket map[int][]*Action

// remoteEntry is a pending cross-owner action awaiting migration into its
// rightful thread's ring (§4.9 "locallyAdded ... actions that belong to
// another thread's or rank's node/edge").
type remoteEntry struct {
	delta  int
	action *Action
}

// ActionQueue is the full per-process action queue: one delay-indexed ring
// of priority buckets per thread, plus a parallel locallyAdded rings for
// cross-owner enqueues (§4.9 C9).
type ActionQueue struct {
	currentTick int
	numThreads  int

	ring         []map[int]priorityBucket // [threadIndex][absoluteTick]bucket
	locallyAdded []map[int][]remoteEntry  // [threadIndex][absoluteTick] pending migration

	// OwnerThread resolves which local thread owns target, for migrating a
	// locallyAdded entry into the correct ring; nil for a single-threaded
	// process (everything owned by thread 0).
	OwnerThread func(target ActionTarget) int
}

// NewActionQueue allocates an empty queue for numThreads worker threads
// starting at startTick.
func NewActionQueue(numThreads, startTick int) *ActionQueue {
	q := &ActionQueue{
		currentTick:  startTick,
		numThreads:   numThreads,
		ring:         make([]map[int]priorityBucket, numThreads),
		locallyAdded: make([]map[int][]remoteEntry, numThreads),
	}
	for i := range q.ring {
		q.ring[i] = make(map[int]priorityBucket)
		q.locallyAdded[i] = make(map[int][]remoteEntry)
	}
	return q
}

// CurrentTick returns the tick the queue is currently draining.
func (q *ActionQueue) CurrentTick() int { return q.currentTick }

// IncrementTick advances the queue to the next tick (§4.10 step 9).
func (q *ActionQueue) IncrementTick() { q.currentTick++ }

// Add appends action to threadIndex's ring at currentTick+deltaTick,
// creating the bucket as needed (§4.9 "addAction(deltaTick, action)").
func (q *ActionQueue) Add(threadIndex, deltaTick int, action *Action) {
	tick := q.currentTick + deltaTick
	bucket := q.ring[threadIndex][tick]
	if bucket == nil {
		bucket = make(priorityBucket)
		q.ring[threadIndex][tick] = bucket
	}
	bucket[action.Def.Order] = append(bucket[action.Def.Order], action)
}

// AddRemote records that action, scheduled deltaTick ticks from now, is
// owned by a different thread or process and must migrate during the next
// sync step rather than running on the calling thread (§4.9).
func (q *ActionQueue) AddRemote(threadIndex, deltaTick int, action *Action) {
	q.locallyAdded[threadIndex][q.currentTick+deltaTick] = append(
		q.locallyAdded[threadIndex][q.currentTick+deltaTick], remoteEntry{deltaTick, action})
}

// detachCurrent atomically removes and returns threadIndex's bucket for
// the current tick, leaving a clean slot so actions added during this
// drain round land in a fresh bucket (§4.9 drain step 1).
func (q *ActionQueue) detachCurrent(threadIndex int) priorityBucket {
	bucket := q.ring[threadIndex][q.currentTick]
	delete(q.ring[threadIndex], q.currentTick)
	return bucket
}

// DrainRound executes exactly one detach-and-run pass over threadIndex's
// current-tick bucket: priorities ascending, shuffled within a priority
// using rng to break ties fairly (§4.9 drain steps 1-2). fire executes one
// action and reports whether it actually ran (false for a stale no-op).
// It returns how many actions were processed this round.
func (q *ActionQueue) DrainRound(threadIndex int, rng *rand.Rand, fire func(*Action) (bool, error)) (int, error) {
	bucket := q.detachCurrent(threadIndex)
	if len(bucket) == 0 {
		return 0, nil
	}
	orders := make([]int, 0, len(bucket))
	for order := range bucket {
		orders = append(orders, order)
	}
	sort.Ints(orders)
	processed := 0
	for _, order := range orders {
		actions := bucket[order]
		rng.Shuffle(len(actions), func(i, j int) { actions[i], actions[j] = actions[j], actions[i] })
		for _, a := range actions {
			if _, err := fire(a); err != nil {
				return processed, errors.Wrapf(err, "action %s", a.ID)
			}
			processed++
		}
	}
	return processed, nil
}

// MigratePending moves every locallyAdded entry due at the current tick
// into its rightful thread's ring, using OwnerThread to resolve ownership
// (§4.9 drain step 3 "insert them into the correct thread's ring").
func (q *ActionQueue) MigratePending() {
	owner := q.OwnerThread
	if owner == nil {
		owner = func(ActionTarget) int { return 0 }
	}
	for threadIndex := range q.locallyAdded {
		entries := q.locallyAdded[threadIndex][q.currentTick]
		delete(q.locallyAdded[threadIndex], q.currentTick)
		for _, e := range entries {
			dest := owner(e.action.Target)
			q.Add(dest, e.delta, e.action)
		}
	}
}

// PendingAtCurrentTick reports how many actions sit in any thread's
// current-tick bucket, used as the per-process contribution to the global
// "total pending actions" count the drain loop reduces to decide whether
// to keep going (§4.9 drain step 4).
func (q *ActionQueue) PendingAtCurrentTick() int {
	total := 0
	for threadIndex := range q.ring {
		bucket := q.ring[threadIndex][q.currentTick]
		for _, actions := range bucket {
			total += len(actions)
		}
	}
	return total
}

// --- Remote-action wire encoding (§4.9 "Remote-action encoding") ---

const (
	remoteKindNode byte = 'N'
	remoteKindEdge byte = 'E'
)

// EncodeRemoteNodeAction serializes a pending action targeting a
// non-local node as (actionId, 'N', nodeId).
func EncodeRemoteNodeAction(defIndex int32, nodeID NodeID) []byte {
	buf := make([]byte, 4+1+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(defIndex))
	buf[4] = remoteKindNode
	binary.BigEndian.PutUint64(buf[5:13], nodeID)
	return buf
}

// EncodeRemoteEdgeAction serializes a pending action targeting a
// non-local edge as (actionId, 'E', targetId, sourceId).
func EncodeRemoteEdgeAction(defIndex int32, key EdgeKey) []byte {
	buf := make([]byte, 4+1+8+8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(defIndex))
	buf[4] = remoteKindEdge
	binary.BigEndian.PutUint64(buf[5:13], key.TargetID)
	binary.BigEndian.PutUint64(buf[13:21], key.SourceID)
	return buf
}

// DecodedRemoteAction is a parsed remote-action wire entry, resolved
// against the local definition table and node/edge arenas by the caller
// (§4.9 "look up the action definition by id, locate the node/edge
// (ignoring if not found), and enqueue with the definition's delay").
type DecodedRemoteAction struct {
	DefIndex int32
	Kind     byte
	NodeID   NodeID
	EdgeKey  EdgeKey
}

// DecodeRemoteAction parses one wire entry produced by either encoder
// above, reporting how many bytes it consumed.
func DecodeRemoteAction(data []byte) (DecodedRemoteAction, int, error) {
	if len(data) < 5 {
		return DecodedRemoteAction{}, 0, errors.New("remote action: truncated header")
	}
	defIndex := int32(binary.BigEndian.Uint32(data[0:4]))
	kind := data[4]
	switch kind {
	case remoteKindNode:
		if len(data) < 13 {
			return DecodedRemoteAction{}, 0, errors.New("remote action: truncated node payload")
		}
		return DecodedRemoteAction{
			DefIndex: defIndex, Kind: kind,
			NodeID: binary.BigEndian.Uint64(data[5:13]),
		}, 13, nil
	case remoteKindEdge:
		if len(data) < 21 {
			return DecodedRemoteAction{}, 0, errors.New("remote action: truncated edge payload")
		}
		return DecodedRemoteAction{
			DefIndex: defIndex, Kind: kind,
			EdgeKey: EdgeKey{
				TargetID: binary.BigEndian.Uint64(data[5:13]),
				SourceID: binary.BigEndian.Uint64(data[13:21]),
			},
		}, 21, nil
	default:
		return DecodedRemoteAction{}, 0, errors.Errorf("remote action: unknown kind %q", kind)
	}
}
