package distepi

import "sort"

// Scope is visibility of a variable or set — process-local vs process-
// global (§3 Variable, §3 Set, glossary "Scope"). Shared between Variable
// and Set so selector scope-promotion (§4.6) and variable scope share one
// vocabulary.
type Scope int

const (
	ScopeLocal Scope = iota
	ScopeGlobal
)

// SetElementKind distinguishes node-sets from edge-sets (§3 Set).
type SetElementKind int

const (
	SetOfNodes SetElementKind = iota
	SetOfEdges
)

// SetEnv is the read-only environment a set-content expression evaluates
// against: the local node/edge arenas plus enough of the simulation to
// resolve nested set references by name.
type SetEnv struct {
	Nodes *NodeArena
	Edges *EdgeArena
	Sets  map[string]*Set // named sets, for selectors that reference another set
}

// NodeSetContent produces a sorted, duplicate-free []NodeID (§3 Set
// content invariant: "set contents are always sorted ... so set algebra
// uses merge-style union/difference/intersection"). IDs stand in for
// "element address" here — portable across local and remote elements,
// still a total order, still supports merge-style algebra.
type NodeSetContent interface {
	ComputeNodes(env *SetEnv, scope Scope) []NodeID
	// FilterProperty returns the single writable node property this
	// content's predicate depends on, and true, if it is collector-
	// eligible (§4.6); otherwise ("", false).
	FilterProperty() (string, bool)
}

// EdgeSetContent is the edge-set analogue of NodeSetContent.
type EdgeSetContent interface {
	ComputeEdges(env *SetEnv, scope Scope) []EdgeKey
	FilterProperty() (string, bool)
}

// EdgeKey uniquely identifies an edge by (target,source) pair, since edge
// arena indices are process-local and not a stable cross-process identity;
// sorting by this key gives a total order usable in merge algebra.
type EdgeKey struct {
	TargetID NodeID
	SourceID NodeID
}

func (k EdgeKey) less(o EdgeKey) bool {
	if k.TargetID != o.TargetID {
		return k.TargetID < o.TargetID
	}
	return k.SourceID < o.SourceID
}

// Set is a named node-set or edge-set wrapping a set-content expression
// (§3 Set).
type Set struct {
	ID    string
	Kind  SetElementKind
	Scope Scope

	NodeContent NodeSetContent
	EdgeContent EdgeSetContent

	collector *collector

	nodeResult []NodeID
	edgeResult []EdgeKey
}

// Compute (re)evaluates the set, preferring the incremental collector path
// once one has been enabled (§4.6).
func (s *Set) Compute(env *SetEnv) {
	switch s.Kind {
	case SetOfNodes:
		if s.collector != nil && s.collector.enabled {
			s.nodeResult = s.collector.replayNodes(s.nodeResult)
			return
		}
		s.nodeResult = s.NodeContent.ComputeNodes(env, s.Scope)
		if prop, ok := s.NodeContent.FilterProperty(); ok {
			s.collector = newCollector(prop, len(s.nodeResult))
		}
	case SetOfEdges:
		if s.collector != nil && s.collector.enabled {
			s.edgeResult = s.collector.replayEdges(s.edgeResult)
			return
		}
		s.edgeResult = s.EdgeContent.ComputeEdges(env, s.Scope)
		if prop, ok := s.EdgeContent.FilterProperty(); ok {
			s.collector = newCollector(prop, len(s.edgeResult))
		}
	}
}

// Size returns the current cached cardinality (§3 "size-of a set").
func (s *Set) Size() int {
	if s.Kind == SetOfNodes {
		return len(s.nodeResult)
	}
	return len(s.edgeResult)
}

// Nodes returns the current cached node membership.
func (s *Set) Nodes() []NodeID { return s.nodeResult }

// Edges returns the current cached edge membership.
func (s *Set) Edges() []EdgeKey { return s.edgeResult }

// WatchedProperty reports the property this set's collector (if any)
// watches, so a write to that property on any element can be routed here.
func (s *Set) WatchedProperty() (string, bool) {
	if s.collector == nil {
		return "", false
	}
	return s.collector.property, true
}

type nodeMatcher interface{ MatchesNode(n *Node) bool }
type edgeMatcher interface{ MatchesEdge(e *Edge) bool }

// NotifyNodeWrite informs this set's collector (if enabled and watching
// property) that n's watched property just changed, so it can record an
// add or remove for the next incremental replay (§4.6).
func (s *Set) NotifyNodeWrite(property string, n *Node) {
	if s.Kind != SetOfNodes || s.collector == nil || !s.collector.enabled || s.collector.property != property {
		return
	}
	m, ok := s.NodeContent.(nodeMatcher)
	if !ok {
		return
	}
	s.collector.Notify(n.ID, m.MatchesNode(n))
}

// NotifyEdgeWrite is the edge analogue of NotifyNodeWrite.
func (s *Set) NotifyEdgeWrite(property string, e *Edge) {
	if s.Kind != SetOfEdges || s.collector == nil || !s.collector.enabled || s.collector.property != property {
		return
	}
	m, ok := s.EdgeContent.(edgeMatcher)
	if !ok {
		return
	}
	s.collector.NotifyEdge(EdgeKey{e.TargetID, e.SourceID}, m.MatchesEdge(e))
}

// --- Node selectors (§4.6) ---

// AllNodes selects every node in scope.
type AllNodes struct{}

func (AllNodes) ComputeNodes(env *SetEnv, scope Scope) []NodeID {
	out := make([]NodeID, 0, env.Nodes.Len())
	for i := 0; i < env.Nodes.Len(); i++ {
		out = append(out, env.Nodes.At(i).ID)
	}
	if scope == ScopeGlobal {
		for id := range env.Nodes.remote {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
func (AllNodes) FilterProperty() (string, bool) { return "", false }

// NodePropertyComparison selects nodes whose property compares true
// against a literal value (§4.6).
type NodePropertyComparison struct {
	Property string
	Op       Operator
	Operand  Value
}

func (c NodePropertyComparison) ComputeNodes(env *SetEnv, scope Scope) []NodeID {
	var out []NodeID
	for i := 0; i < env.Nodes.Len(); i++ {
		n := env.Nodes.At(i)
		v, err := GetNodeProperty(n, c.Property)
		if err != nil {
			continue
		}
		if ok, _ := Compare(v, c.Op, c.Operand); ok {
			out = append(out, n.ID)
		}
	}
	if scope == ScopeGlobal {
		for id, r := range env.Nodes.remote {
			v, err := getRemoteNodeProperty(r, c.Property)
			if err != nil {
				continue
			}
			if ok, _ := Compare(v, c.Op, c.Operand); ok {
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
func (c NodePropertyComparison) FilterProperty() (string, bool) {
	return c.Property, isWritableNodeProperty(c.Property)
}

// MatchesNode re-evaluates this selector's predicate against a single node,
// used by collector notification to decide add-vs-remove without a full
// pass (§4.6).
func (c NodePropertyComparison) MatchesNode(n *Node) bool {
	v, err := GetNodeProperty(n, c.Property)
	if err != nil {
		return false
	}
	ok, _ := Compare(v, c.Op, c.Operand)
	return ok
}

// NodePropertyInList selects nodes whose property is a member of a literal
// value list (§4.6).
type NodePropertyInList struct {
	Property string
	List     ValueList
}

func (c NodePropertyInList) ComputeNodes(env *SetEnv, scope Scope) []NodeID {
	var out []NodeID
	for i := 0; i < env.Nodes.Len(); i++ {
		n := env.Nodes.At(i)
		v, err := GetNodeProperty(n, c.Property)
		if err != nil {
			continue
		}
		if c.List.contains(v) {
			out = append(out, n.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
func (c NodePropertyInList) FilterProperty() (string, bool) {
	return c.Property, isWritableNodeProperty(c.Property)
}

// MatchesNode is the NodePropertyInList analogue of
// NodePropertyComparison.MatchesNode.
func (c NodePropertyInList) MatchesNode(n *Node) bool {
	v, err := GetNodeProperty(n, c.Property)
	if err != nil {
		return false
	}
	return c.List.contains(v)
}

// WithIncomingEdgeIn selects nodes that own at least one incoming edge
// present in the given edge-set (§4.6).
type WithIncomingEdgeIn struct {
	EdgeSet *Set
}

func (c WithIncomingEdgeIn) ComputeNodes(env *SetEnv, scope Scope) []NodeID {
	edgeSet := make(map[EdgeKey]bool, len(c.EdgeSet.edgeResult))
	for _, k := range c.EdgeSet.edgeResult {
		edgeSet[k] = true
	}
	var out []NodeID
	for i := 0; i < env.Nodes.Len(); i++ {
		n := env.Nodes.At(i)
		for _, ref := range n.Incoming {
			e := env.Edges.Get(ref)
			if edgeSet[EdgeKey{e.TargetID, e.SourceID}] {
				out = append(out, n.ID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
func (WithIncomingEdgeIn) FilterProperty() (string, bool) { return "", false }

// --- Edge selectors (§4.6) ---

// AllEdges selects every local edge.
type AllEdges struct{}

func (AllEdges) ComputeEdges(env *SetEnv, scope Scope) []EdgeKey {
	out := make([]EdgeKey, 0, env.Edges.Len())
	for i := 0; i < env.Edges.Len(); i++ {
		e := env.Edges.At(i)
		out = append(out, EdgeKey{e.TargetID, e.SourceID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
func (AllEdges) FilterProperty() (string, bool) { return "", false }

// EdgePropertyComparison selects edges whose property compares true
// against a literal value.
type EdgePropertyComparison struct {
	Property string
	Op       Operator
	Operand  Value
}

func (c EdgePropertyComparison) ComputeEdges(env *SetEnv, scope Scope) []EdgeKey {
	var out []EdgeKey
	for i := 0; i < env.Edges.Len(); i++ {
		e := env.Edges.At(i)
		v, err := GetEdgeProperty(e, c.Property)
		if err != nil {
			continue
		}
		if ok, _ := Compare(v, c.Op, c.Operand); ok {
			out = append(out, EdgeKey{e.TargetID, e.SourceID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
func (c EdgePropertyComparison) FilterProperty() (string, bool) {
	return c.Property, isWritableEdgeProperty(c.Property)
}

// MatchesEdge re-evaluates this selector's predicate against a single
// edge, used by collector notification (§4.6).
func (c EdgePropertyComparison) MatchesEdge(e *Edge) bool {
	v, err := GetEdgeProperty(e, c.Property)
	if err != nil {
		return false
	}
	ok, _ := Compare(v, c.Op, c.Operand)
	return ok
}

// EdgePropertyInList selects edges whose property is a member of a literal
// value list.
type EdgePropertyInList struct {
	Property string
	List     ValueList
}

func (c EdgePropertyInList) ComputeEdges(env *SetEnv, scope Scope) []EdgeKey {
	var out []EdgeKey
	for i := 0; i < env.Edges.Len(); i++ {
		e := env.Edges.At(i)
		v, err := GetEdgeProperty(e, c.Property)
		if err != nil {
			continue
		}
		if c.List.contains(v) {
			out = append(out, EdgeKey{e.TargetID, e.SourceID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
func (c EdgePropertyInList) FilterProperty() (string, bool) {
	return c.Property, isWritableEdgeProperty(c.Property)
}

// MatchesEdge is the EdgePropertyInList analogue of
// EdgePropertyComparison.MatchesEdge.
func (c EdgePropertyInList) MatchesEdge(e *Edge) bool {
	v, err := GetEdgeProperty(e, c.Property)
	if err != nil {
		return false
	}
	return c.List.contains(v)
}

// WithTargetNodeIn selects edges whose target node belongs to nodeSet.
type WithTargetNodeIn struct {
	NodeSet *Set
}

func (c WithTargetNodeIn) ComputeEdges(env *SetEnv, scope Scope) []EdgeKey {
	members := make(map[NodeID]bool, len(c.NodeSet.nodeResult))
	for _, id := range c.NodeSet.nodeResult {
		members[id] = true
	}
	var out []EdgeKey
	for i := 0; i < env.Edges.Len(); i++ {
		e := env.Edges.At(i)
		if members[e.TargetID] {
			out = append(out, EdgeKey{e.TargetID, e.SourceID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
func (WithTargetNodeIn) FilterProperty() (string, bool) { return "", false }

// WithSourceNodeIn selects local edges whose source node belongs to
// nodeSet. Since a source node may live on another process, BuildSets
// promotes nodeSet to global scope when it builds this selector (§4.6).
type WithSourceNodeIn struct {
	NodeSet *Set
}

func (c WithSourceNodeIn) ComputeEdges(env *SetEnv, scope Scope) []EdgeKey {
	members := make(map[NodeID]bool, len(c.NodeSet.nodeResult))
	for _, id := range c.NodeSet.nodeResult {
		members[id] = true
	}
	var out []EdgeKey
	for i := 0; i < env.Edges.Len(); i++ {
		e := env.Edges.At(i)
		if members[e.SourceID] {
			out = append(out, EdgeKey{e.TargetID, e.SourceID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
func (WithSourceNodeIn) FilterProperty() (string, bool) { return "", false }

// --- Set algebra (specified by analogy per §4.6) ---

// UnionNodes merges two sorted, duplicate-free NodeID slices.
func UnionNodes(a, b []NodeID) []NodeID {
	out := make([]NodeID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// IntersectNodes returns the sorted intersection of two sorted NodeID
// slices.
func IntersectNodes(a, b []NodeID) []NodeID {
	var out []NodeID
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// DifferenceNodes returns a minus b, both sorted.
func DifferenceNodes(a, b []NodeID) []NodeID {
	var out []NodeID
	i, j := 0, 0
	for i < len(a) {
		if j >= len(b) || a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else if a[i] > b[j] {
			j++
		} else {
			i++
			j++
		}
	}
	return out
}
