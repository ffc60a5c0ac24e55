package distepi

// ComputableKind distinguishes the four kinds of computable the graph
// tracks (§3 Dependency graph, glossary "Computable").
type ComputableKind int

const (
	KindObservable ComputableKind = iota
	KindVariableRef
	KindSetContent
	KindSizeOf
)

// Computable is one node in the dependency graph: anything whose value may
// depend on other computables (§3, §4.5).
type Computable struct {
	ID   string
	Kind ComputableKind

	Prereqs []string // ids of prerequisite computables

	Static    bool // true iff every prerequisite is static and nothing here is writable
	Changed   bool
	Requested bool
	Calculated bool

	// Recompute performs the actual (re)computation; left to the owning
	// subsystem (observable/variable/set-content) to supply.
	Recompute func()
}

// DependencyGraph is the directed prerequisite->dependent graph over every
// registered computable (§3, §4.5).
type DependencyGraph struct {
	nodes map[string]*Computable
	// dependents[p] = computables that list p as a prerequisite.
	dependents map[string][]string

	onceSequence   []string
	commonSequence []string
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:      make(map[string]*Computable),
		dependents: make(map[string][]string),
	}
}

// Register adds a computable to the graph. Call Build after every Register.
func (g *DependencyGraph) Register(c *Computable) {
	g.nodes[c.ID] = c
	for _, p := range c.Prereqs {
		g.dependents[p] = append(g.dependents[p], c.ID)
	}
}

// Get looks up a registered computable.
func (g *DependencyGraph) Get(id string) (*Computable, bool) {
	c, ok := g.nodes[id]
	return c, ok
}

// Build derives the once-sequence: computables with no prerequisites
// (§4.5). Static is computed by each computable's owner at registration
// time (static iff every prerequisite is static and the computable itself
// has no writable property), not rediscovered here.
func (g *DependencyGraph) Build() {
	g.onceSequence = g.onceSequence[:0]
	for id, c := range g.nodes {
		if len(c.Prereqs) == 0 {
			g.onceSequence = append(g.onceSequence, id)
		}
	}
}

// RunOnce executes every once-sequence computable exactly once (§4.5).
func (g *DependencyGraph) RunOnce() {
	for _, id := range g.onceSequence {
		c := g.nodes[id]
		if c.Recompute != nil {
			c.Recompute()
		}
		c.Calculated = true
	}
}

// BuildCommonSequence derives the topo-sorted set of computables reachable
// from the union of prerequisites of every condition-side and action-side
// accessor (§4.5 "common update sequence"). accessedIDs is the set of
// computable ids directly read by conditions or operations at load time.
func (g *DependencyGraph) BuildCommonSequence(accessedIDs []string) {
	visited := make(map[string]bool)
	var order []string
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		c, ok := g.nodes[id]
		if !ok {
			return
		}
		for _, p := range c.Prereqs {
			visit(p)
		}
		order = append(order, id)
	}
	for _, id := range accessedIDs {
		visit(id)
	}
	g.commonSequence = order
}

// CommonSequence returns the topo-sorted common update sequence.
func (g *DependencyGraph) CommonSequence() []string { return g.commonSequence }

// ApplyUpdateOrder runs the three-pass per-tick algorithm (§4.5): mark
// descendants of changed as Changed, mark already-calculated nodes as not
// Changed (so recomputation doesn't redundantly repeat within the same
// pass), mark ancestors of Requested as Requested, then execute the
// Changed∧Requested subset in the graph's topological (registration-order-
// stable) sequence. Graph per-computable flags are reset after the query,
// per §4.5's "Graph state is reset after each query."
func (g *DependencyGraph) ApplyUpdateOrder(changedIDs map[string]bool, requestedIDs []string) int {
	// Pass 1: forward-mark descendants of changed as Changed.
	var markChanged func(id string)
	markChanged = func(id string) {
		c, ok := g.nodes[id]
		if !ok || c.Changed {
			return
		}
		c.Changed = true
		for _, dep := range g.dependents[id] {
			markChanged(dep)
		}
	}
	for id := range changedIDs {
		if c, ok := g.nodes[id]; ok {
			c.Changed = true
		}
		for _, dep := range g.dependents[id] {
			markChanged(dep)
		}
	}

	// Pass 2: clear Changed on every computable already Calculated going
	// in, so it does not re-fire even if something upstream also changed
	// after it was computed. Only that computable's own flag is cleared;
	// its dependents keep the Changed mark pass 1 gave them.
	for _, c := range g.nodes {
		if c.Calculated {
			c.Changed = false
		}
	}

	// Pass 3: backward-mark ancestors of Requested computables.
	requestedSet := make(map[string]bool, len(requestedIDs))
	for _, id := range requestedIDs {
		requestedSet[id] = true
	}
	var markRequested func(id string)
	markRequested = func(id string) {
		c, ok := g.nodes[id]
		if !ok || c.Requested {
			return
		}
		c.Requested = true
		for _, p := range c.Prereqs {
			markRequested(p)
		}
	}
	for id := range requestedSet {
		markRequested(id)
	}

	// Execute the Changed∧Requested subset in topological order.
	recomputed := 0
	for _, id := range g.commonSequence {
		c := g.nodes[id]
		if c.Changed && c.Requested && c.Recompute != nil {
			c.Recompute()
			recomputed++
		}
	}

	// Reset flags for the next query.
	for _, c := range g.nodes {
		c.Changed = false
		c.Requested = false
		c.Calculated = false
	}
	return recomputed
}
