package distepi

import "sort"

// collector maintains a selector's result incrementally by watching
// property-change notifications instead of recomputing the full predicate
// every tick (§4.6). It is promoted into place after a set's first full
// pass and demoted back to full recompute if too much changed in one tick
// to make incremental replay worthwhile (§4.19).
type collector struct {
	property string

	enabled bool

	// fullPassSize is the membership size observed at the most recent full
	// recompute; disableThreshold is a fraction of it.
	fullPassSize     int
	disableThreshold float64

	// adds/removes are pending element-id deltas collected since the last
	// replay, in notification order; duplicates are possible and harmless
	// since replay operates on de-duplicated sorted slices.
	pendingAdds    []NodeID
	pendingRemoves []NodeID

	edgeAdds    []EdgeKey
	edgeRemoves []EdgeKey
}

const defaultCollectorDisableThreshold = 0.5

// newCollector creates a collector for property, already enabled, seeded
// with the set size observed at the full pass that triggered promotion
// (§4.19 "only promotes a selector to a collector after its full first
// pass").
func newCollector(property string, fullPassSize int) *collector {
	return &collector{
		property:         property,
		enabled:          true,
		fullPassSize:     fullPassSize,
		disableThreshold: defaultCollectorDisableThreshold,
	}
}

// Notify records that an element's watched property changed and whether it
// now satisfies (true) or no longer satisfies (false) the set's predicate.
// Called by the operation/action layer immediately after a write lands
// (§4.6 "property-change collectors").
func (c *collector) Notify(id NodeID, satisfies bool) {
	if !c.enabled {
		return
	}
	if satisfies {
		c.pendingAdds = append(c.pendingAdds, id)
	} else {
		c.pendingRemoves = append(c.pendingRemoves, id)
	}
}

// NotifyEdge is the edge analogue of Notify.
func (c *collector) NotifyEdge(key EdgeKey, satisfies bool) {
	if !c.enabled {
		return
	}
	if satisfies {
		c.edgeAdds = append(c.edgeAdds, key)
	} else {
		c.edgeRemoves = append(c.edgeRemoves, key)
	}
}

// shouldDisable reports whether this tick's delta volume exceeds
// disableThreshold of the last full-pass size, in which case the caller
// should fall back to a full recompute instead of replaying (§4.19).
func (c *collector) shouldDisable() bool {
	delta := len(c.pendingAdds) + len(c.pendingRemoves) + len(c.edgeAdds) + len(c.edgeRemoves)
	if c.fullPassSize == 0 {
		return delta > 0
	}
	return float64(delta) > c.disableThreshold*float64(c.fullPassSize)
}

// replayNodes applies pending deltas onto a sorted, duplicate-free node-id
// membership and clears them; if the delta volume crossed the disable
// threshold, it demotes the collector so the next Set.Compute falls back to
// a full ComputeNodes pass and a fresh promotion.
func (c *collector) replayNodes(current []NodeID) []NodeID {
	if c.shouldDisable() {
		c.enabled = false
		c.pendingAdds = nil
		c.pendingRemoves = nil
		return current
	}
	out := applyNodeDeltas(current, c.pendingAdds, c.pendingRemoves)
	c.pendingAdds = nil
	c.pendingRemoves = nil
	return out
}

// replayEdges is the edge analogue of replayNodes. Edge collectors are
// keyed the same way as node collectors; callers pass EdgeKey deltas
// through pendingAdds/pendingRemoves encoded as synthetic NodeIDs is not
// attempted — edge sets instead carry their own delta slices.
func (c *collector) replayEdges(current []EdgeKey) []EdgeKey {
	if c.shouldDisable() {
		c.enabled = false
		c.edgeAdds = nil
		c.edgeRemoves = nil
		return current
	}
	out := applyEdgeDeltas(current, c.edgeAdds, c.edgeRemoves)
	c.edgeAdds = nil
	c.edgeRemoves = nil
	return out
}

func applyNodeDeltas(current, adds, removes []NodeID) []NodeID {
	members := make(map[NodeID]bool, len(current)+len(adds))
	for _, id := range current {
		members[id] = true
	}
	for _, id := range removes {
		delete(members, id)
	}
	for _, id := range adds {
		members[id] = true
	}
	out := make([]NodeID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sortNodeIDs(out)
	return out
}

func applyEdgeDeltas(current, adds, removes []EdgeKey) []EdgeKey {
	members := make(map[EdgeKey]bool, len(current)+len(adds))
	for _, k := range current {
		members[k] = true
	}
	for _, k := range removes {
		delete(members, k)
	}
	for _, k := range adds {
		members[k] = true
	}
	out := make([]EdgeKey, 0, len(members))
	for k := range members {
		out = append(out, k)
	}
	sortEdgeKeys(out)
	return out
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortEdgeKeys(keys []EdgeKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
}
