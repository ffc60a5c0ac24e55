package distepi

import "testing"

type recordingRecorder struct {
	nodeChanges int
	edgeChanges int
	stateChanges int
}

func (r *recordingRecorder) RecordNodeChange(threadIndex int, node *Node)  { r.nodeChanges++ }
func (r *recordingRecorder) RecordEdgeChange(threadIndex int, edge *Edge)  { r.edgeChanges++ }
func (r *recordingRecorder) RecordStateChange(threadIndex int, node *Node, meta ChangeMeta) {
	r.stateChanges++
}

func TestOperation_Execute_NodeProperty_NotifiesRecorderAndSet(t *testing.T) {
	model := newSIRModel(t, 1.0, 5)
	// Three already-infected nodes plus one susceptible node, so a single
	// newly-infected node stays under the collector's 50%-of-full-pass
	// disable threshold and the set replays incrementally rather than
	// demoting back to a full recompute.
	rawNodes := []Node{
		{ID: 1, HealthState: 0},
		{ID: 2, HealthState: 1},
		{ID: 3, HealthState: 1},
		{ID: 4, HealthState: 1},
	}
	nodes := NewNodeArena(rawNodes)
	for i := 0; i < nodes.Len(); i++ {
		nodes.At(i).RefreshDerived(model)
	}
	node := nodes.ByID(1)

	s := &Set{ID: "infected", Kind: SetOfNodes, NodeContent: NodePropertyComparison{Property: "healthState", Op: OpEqual, Operand: IntValue(1)}}
	setEnv := &SetEnv{Nodes: nodes, Sets: map[string]*Set{"infected": s}}
	s.Compute(setEnv) // first full pass promotes the collector

	rec := &recordingRecorder{}
	env := &ExecEnv{EvalEnv: &EvalEnv{Nodes: nodes, Model: model, ThreadIndex: 0, Sets: map[string]*Set{"infected": s}}, Recorder: rec}
	env.BoundNode = node

	op := Operation{
		Target: OperationTarget{Kind: TargetNodeProperty, Property: "healthState"},
		Op:     WriteAssign,
		Source: LiteralValue{V: IntValue(1)},
	}
	if err := op.Execute(env); err != nil {
		t.Fatalf("Execute: %s", err)
	}
	if node.HealthState != 1 {
		t.Errorf("expected node healthState 1, got %d", node.HealthState)
	}
	if rec.nodeChanges != 1 {
		t.Errorf("expected 1 recorded node change, got %d", rec.nodeChanges)
	}

	s.Compute(setEnv) // incremental replay should now include node 1
	found := false
	for _, id := range s.Nodes() {
		if id == node.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected the collector-backed set to include the newly-infected node after replay")
	}
}

func TestOperation_ExecNode_NoBoundNodeReturnsError(t *testing.T) {
	op := Operation{Target: OperationTarget{Kind: TargetNodeProperty, Property: "healthState"}, Op: WriteAssign, Source: LiteralValue{V: IntValue(1)}}
	env := &ExecEnv{EvalEnv: &EvalEnv{}}
	if err := op.Execute(env); err == nil {
		t.Error("expected an error executing a node operation with no node bound")
	}
}

func TestOperation_ExecEdge_NoBoundEdgeReturnsError(t *testing.T) {
	op := Operation{Target: OperationTarget{Kind: TargetEdgeProperty, Property: "weight"}, Op: WriteAssign, Source: LiteralValue{V: NumberValue(1)}}
	env := &ExecEnv{EvalEnv: &EvalEnv{}}
	if err := op.Execute(env); err == nil {
		t.Error("expected an error executing an edge operation with no edge bound")
	}
}

func TestOperationList_StopsAtFirstError(t *testing.T) {
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeLocal, Initial: IntValue(0)}}, 1, NewRMACounterStore(0))
	ops := OperationList{
		{Target: OperationTarget{Kind: TargetNodeProperty, Property: "healthState"}, Op: WriteAssign, Source: LiteralValue{V: IntValue(1)}}, // fails: no node bound
		{Target: OperationTarget{Kind: TargetVariable, VariableID: "v"}, Op: WriteAssign, Source: LiteralValue{V: IntValue(99)}},
	}
	env := &ExecEnv{EvalEnv: &EvalEnv{Vars: vars, ThreadIndex: 0}}
	if err := ops.Execute(env); err == nil {
		t.Fatal("expected the operation list to fail on its first operation")
	}
	if got := vars.Value(0, "v").Int; got != 0 {
		t.Errorf("expected the second operation to never run, v stayed %d", got)
	}
}
