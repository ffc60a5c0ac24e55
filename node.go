package distepi

// NodeID identifies a node across the whole network, stable across
// processes (§3 Node).
type NodeID = uint64

// EdgeRef is an index into the owning process's edge arena. Using an index
// rather than a pointer keeps the node/edge back-pointer cycle out of the
// ownership graph (§9 Design Notes: arena-backed storage, no ownership
// cycles).
type EdgeRef int32

// Node is a single member of the contact network, owned by exactly one
// process (§3 Node, §5 shared-resource policy).
type Node struct {
	ID NodeID

	HealthState int // dense index into DiseaseModel.States

	SusceptibilityFactor float64
	InfectivityFactor    float64
	Susceptibility       float64 // effective = state.BaseSusceptibility * factor
	Infectivity          float64 // effective = state.BaseInfectivity * factor

	Trait Trait

	// Incoming is the contiguous, process-owned array of edges whose
	// target is this node (§3 Edge invariant: edges sorted by target id,
	// contiguous per target). Indexes into the owning process's edge arena.
	Incoming []EdgeRef

	// outgoing holds pointers to local edges whose source is this node.
	// Built at load time; never mutated after. The transmission kernel and
	// the set selectors do not read it: they walk Incoming and the edge
	// arena.
	outgoing []*Edge
}

// RefreshDerived recomputes effective susceptibility/infectivity from the
// node's current health state and its factors (§4.1). It is called after
// every healthState or factor write. A healthState write made through an
// Operation only refreshes these fields: it does not update the state
// counters or schedule a progression, which happens only when a
// transmission/progression action fires.
func (n *Node) RefreshDerived(model *DiseaseModel) {
	st := model.States[n.HealthState]
	n.Susceptibility = st.BaseSusceptibility * n.SusceptibilityFactor
	n.Infectivity = st.BaseInfectivity * n.InfectivityFactor
}

// RemoteNode is a read-only, state-only mirror of a node owned by another
// process, held so global-scope reads can resolve without a round trip
// (§3 Node, glossary "Remote node"). Remote mirrors carry no edges.
type RemoteNode struct {
	ID             NodeID
	HealthState    int
	Susceptibility float64
	Infectivity    float64
	Trait          Trait
}

// Edge is a directed contact between a source and target node (§3 Edge).
// TargetID, SourceID, the two activity traits, Duration, and location are
// immutable after load; Active and Weight are mutable.
type Edge struct {
	TargetID       NodeID
	SourceID       NodeID
	TargetActivity Trait
	SourceActivity Trait
	Duration       float64
	LocationID     uint64
	HasLocation    bool
	EdgeTrait      Trait
	Active         bool
	Weight         float64

	target *Node
	source *Node
}

// Target returns the back-pointer to the edge's target node, resolved at
// load time from the arena (§9: back-pointers become arena indices/borrows,
// never pointer cycles owned by the edge itself — the arena owns both).
func (e *Edge) Target() *Node { return e.target }

// Source returns the back-pointer to the edge's source node, or nil when the
// source node is owned by another process; SourceState below resolves
// either case.
func (e *Edge) Source() *Node { return e.source }

// NodeArena owns every Node local to a process plus the RemoteNode mirrors
// needed for global-scope reads. All lookups are O(1) via the id index.
type NodeArena struct {
	nodes  []Node
	byID   map[NodeID]int
	remote map[NodeID]*RemoteNode
}

// NewNodeArena builds an arena over an already-sorted-by-id node slice.
func NewNodeArena(nodes []Node) *NodeArena {
	a := &NodeArena{nodes: nodes, byID: make(map[NodeID]int, len(nodes)), remote: make(map[NodeID]*RemoteNode)}
	for i := range a.nodes {
		a.byID[a.nodes[i].ID] = i
	}
	return a
}

// Len returns the number of local nodes.
func (a *NodeArena) Len() int { return len(a.nodes) }

// At returns the local node at arena position i.
func (a *NodeArena) At(i int) *Node { return &a.nodes[i] }

// ByID returns the local node with the given id, or nil if it is not local.
func (a *NodeArena) ByID(id NodeID) *Node {
	if i, ok := a.byID[id]; ok {
		return &a.nodes[i]
	}
	return nil
}

// Remote returns the remote mirror for id, or nil if none is registered.
func (a *NodeArena) Remote(id NodeID) *RemoteNode {
	return a.remote[id]
}

// UpsertRemote installs or refreshes a remote mirror, used by the
// post-drain synchronization step (§4.9) and global-scope set rebuilds.
func (a *NodeArena) UpsertRemote(r RemoteNode) {
	if existing, ok := a.remote[r.ID]; ok {
		*existing = r
		return
	}
	cp := r
	a.remote[r.ID] = &cp
}

// IsLocal reports whether id belongs to this process's owned nodes.
func (a *NodeArena) IsLocal(id NodeID) bool {
	_, ok := a.byID[id]
	return ok
}

// All returns every local node, in arena (id-sorted) order.
func (a *NodeArena) All() []Node { return a.nodes }

// EdgeArena owns every edge whose target is local to this process (§3 Edge
// invariant: "an edge belongs to the process that owns its target node").
type EdgeArena struct {
	edges []Edge
}

// NewEdgeArena builds an arena over an edge slice that is already sorted by
// TargetID and contiguous per target, resolving back-pointers against the
// given node arena.
func NewEdgeArena(edges []Edge, nodes *NodeArena) *EdgeArena {
	a := &EdgeArena{edges: edges}
	for i := range a.edges {
		e := &a.edges[i]
		e.target = nodes.ByID(e.TargetID)
		if e.target != nil {
			e.target.Incoming = append(e.target.Incoming, EdgeRef(i))
		}
		if src := nodes.ByID(e.SourceID); src != nil {
			e.source = src
			src.outgoing = append(src.outgoing, e)
		}
	}
	return a
}

// Len returns the number of local edges.
func (a *EdgeArena) Len() int { return len(a.edges) }

// At returns the edge at arena position i.
func (a *EdgeArena) At(i int) *Edge { return &a.edges[i] }

// Get resolves an EdgeRef to its edge.
func (a *EdgeArena) Get(ref EdgeRef) *Edge { return &a.edges[ref] }

// All returns every local edge.
func (a *EdgeArena) All() []Edge { return a.edges }

// SourceState resolves the (healthState, susceptibility, infectivity) of an
// edge's source node whether that node is locally owned or only known
// through a RemoteNode mirror, and reports whether it was found at all.
func (e *Edge) SourceState(nodes *NodeArena) (healthState int, susceptibility, infectivity float64, ok bool) {
	if e.source != nil {
		return e.source.HealthState, e.source.Susceptibility, e.source.Infectivity, true
	}
	if r := nodes.Remote(e.SourceID); r != nil {
		return r.HealthState, r.Susceptibility, r.Infectivity, true
	}
	return 0, 0, 0, false
}
