package distepi

import "testing"

func newTransmissionAction(def *ActionDefinition, nodeID NodeID, stateAtSchedule int, exitState int) *Action {
	return newStateAction(def, nodeID, stateAtSchedule, &StateOutcome{ExitState: exitState})
}

func TestAction_Fire_TransmissionProgression_AppliesOutcomeAndCounters(t *testing.T) {
	model := newSIRModel(t, 1.0, 5)
	model.InitThreadCounters(1)
	nodes, _ := newTwoNodeNetwork(t, model)
	node := nodes.ByID(1) // currently susceptible (state 0)

	def := &ActionDefinition{ID: "__state_change", Priority: 1.0, Order: 0}
	action := newTransmissionAction(def, node.ID, node.HealthState, 1 /* -> I */)

	env := &ExecEnv{EvalEnv: &EvalEnv{Nodes: nodes, Model: model, ThreadIndex: 0}, Recorder: nil}
	env.BoundNode = node

	var changedTo *Node
	ran, err := action.Fire(env, model, func(n *Node) { changedTo = n })
	if err != nil {
		t.Fatalf("Fire: %s", err)
	}
	if !ran {
		t.Fatal("expected action to run")
	}
	if node.HealthState != 1 {
		t.Errorf("expected node state 1 (I), got %d", node.HealthState)
	}
	if changedTo != node {
		t.Error("expected onStateChanged callback invoked with the node")
	}

	sSlot := model.States[0].Local.Active(0)
	iSlot := model.States[1].Local.Active(0)
	if sSlot.Current != -1 || sSlot.Out != 1 {
		t.Errorf("expected S state current=-1 out=1, got %+v", *sSlot)
	}
	if iSlot.Current != 1 || iSlot.In != 1 {
		t.Errorf("expected I state current=1 in=1, got %+v", *iSlot)
	}
}

// TestAction_Fire_TransmissionProgression_StaleGuardNoOp exercises the
// single-node half of scenario S4: a transmission/progression action whose
// captured schedule-time state no longer matches the node's current state
// must silently no-op (invariant 5).
func TestAction_Fire_TransmissionProgression_StaleGuardNoOp(t *testing.T) {
	model := newSIRModel(t, 1.0, 5)
	model.InitThreadCounters(1)
	nodes, _ := newTwoNodeNetwork(t, model)
	node := nodes.ByID(2) // scheduled while infectious (state 1)

	def := &ActionDefinition{ID: "__state_change", Priority: 1.0, Order: 0}
	action := newTransmissionAction(def, node.ID, 1 /* I, captured at schedule time */, 2 /* -> R */)

	// Node's state changed to S (0) between scheduling and firing.
	node.HealthState = 0

	env := &ExecEnv{EvalEnv: &EvalEnv{Nodes: nodes, Model: model, ThreadIndex: 0}}
	env.BoundNode = node

	ran, err := action.Fire(env, model, nil)
	if err != nil {
		t.Fatalf("Fire: %s", err)
	}
	if ran {
		t.Error("expected stale action to be a no-op")
	}
	if node.HealthState != 0 {
		t.Errorf("expected node to stay in state 0 (S), got %d", node.HealthState)
	}
}

func TestAction_Fire_Variable_DelegatesToDefinition(t *testing.T) {
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeLocal, Initial: IntValue(0)}}, 1, NewRMACounterStore(0))
	def := &ActionDefinition{
		ID: "bump", Priority: 1.0,
		Ops: OperationList{{Target: OperationTarget{Kind: TargetVariable, VariableID: "v"}, Op: WriteAdd, Source: LiteralValue{V: IntValue(1)}}},
	}
	action := newAction(def, ActionTarget{VariableID: "v"})
	if action.Kind != ActionVariable {
		t.Fatalf("expected ActionVariable kind, got %v", action.Kind)
	}

	env := &ExecEnv{EvalEnv: &EvalEnv{Vars: vars, ThreadIndex: 0}}
	ran, err := action.Fire(env, nil, nil)
	if err != nil {
		t.Fatalf("Fire: %s", err)
	}
	if !ran {
		t.Fatal("expected variable action to run")
	}
	if got := vars.Value(0, "v"); got.Int != 1 {
		t.Errorf("expected v == 1, got %+v", got)
	}
}

func TestAction_Stale_NoGuardNeverStale(t *testing.T) {
	def := &ActionDefinition{ID: "d"}
	action := newAction(def, ActionTarget{NodeID: 1})
	if action.stale(&Node{HealthState: 99}) {
		t.Error("expected an action without a state guard to never be considered stale")
	}
}
