package distepi

import "github.com/segmentio/ksuid"

// ActionKind distinguishes the four concrete action variants (§3 Action:
// "one of {variable-action, node-action, edge-action,
// transmission-progression-action}").
type ActionKind int

const (
	ActionVariable ActionKind = iota
	ActionNode
	ActionEdge
	ActionTransmissionProgression
)

// ActionTarget names what a materialized Action acts on. Exactly one of
// NodeID/EdgeKey/VariableID is meaningful, selected by the owning Action's
// Kind.
type ActionTarget struct {
	NodeID     NodeID
	EdgeKey    EdgeKey
	VariableID string
}

// Action is a materialized, scheduled unit of work (§3 Action). Every
// action carries a globally unique, k-sortable id that names it in logged
// failures (§4.17); the remote-action wire encoding carries the definition
// index and target, not this id — and, for transmission/progression
// actions, the health state the target held at schedule time so a state
// change between scheduling and execution makes it silently no-op
// (§3 "stale actions silently no-op", §5 "stale-action discard").
type Action struct {
	ID     ksuid.KSUID
	Def    *ActionDefinition
	Kind   ActionKind
	Target ActionTarget

	// StateAtSchedule is the target's health-state index when this action
	// was created; meaningful only for ActionTransmissionProgression.
	StateAtSchedule int
	HasStateGuard   bool

	// Outcome carries what a transmission/progression action applies on
	// fire: the new health state and any factor operations (§4.3 "apply
	// set(transmission)"/"apply set(progression)").
	Outcome *StateOutcome
}

// StateOutcome is the state change a transmission or progression action
// applies when it fires (§4.3).
type StateOutcome struct {
	ExitState            int
	SusceptibilityFactor  *FactorOp
	InfectivityFactor     *FactorOp

	// ContactNodeID is the source node responsible for a transmission
	// (§4.11 CSV format "contact_pid"); HasContact is false for
	// progression outcomes, which have no contact.
	ContactNodeID NodeID
	HasContact    bool
	LocationID    uint64
	HasLocation   bool
}

func newAction(def *ActionDefinition, target ActionTarget) *Action {
	kind := ActionVariable
	switch {
	case target.VariableID != "":
		kind = ActionVariable
	case target.EdgeKey != (EdgeKey{}):
		kind = ActionEdge
	default:
		kind = ActionNode
	}
	return &Action{ID: ksuid.New(), Def: def, Kind: kind, Target: target}
}

// newStateAction builds a transmission/progression action with its
// stale-guard state captured at schedule time (§4.3 state-progression
// selection / transmission kernel, both "enqueue a ... action").
func newStateAction(def *ActionDefinition, nodeID NodeID, stateAtSchedule int, outcome *StateOutcome) *Action {
	return &Action{
		ID:              ksuid.New(),
		Def:             def,
		Kind:            ActionTransmissionProgression,
		Target:          ActionTarget{NodeID: nodeID},
		StateAtSchedule: stateAtSchedule,
		HasStateGuard:   true,
		Outcome:         outcome,
	}
}

// stale reports whether node's current health state no longer matches the
// state captured when this action was scheduled (§5 "stale-action
// discard").
func (a *Action) stale(node *Node) bool {
	return a.HasStateGuard && node.HealthState != a.StateAtSchedule
}

// Fire executes this action against the given execution environment,
// honoring the stale-action guard and, for state-change actions, applying
// the outcome and invoking the disease model's stateChanged hook (§4.3
// "Action execution"). env.BoundNode/BoundEdge must already be positioned
// on this action's target by the caller (the queue drain loop), since
// resolving a remote/cross-thread target is the caller's responsibility.
func (a *Action) Fire(env *ExecEnv, model *DiseaseModel, onStateChanged func(n *Node)) (bool, error) {
	switch a.Kind {
	case ActionVariable:
		return a.Def.Execute(env)
	case ActionNode:
		return a.Def.Execute(env)
	case ActionEdge:
		return a.Def.Execute(env)
	case ActionTransmissionProgression:
		n := env.BoundNode
		if n == nil {
			return false, nil
		}
		if a.stale(n) {
			return false, nil
		}
		oldState := n.HealthState
		n.HealthState = a.Outcome.ExitState
		applyFactors(n, model, a.Outcome.SusceptibilityFactor, a.Outcome.InfectivityFactor)
		if old := model.States[oldState].Local; old != nil {
			slot := old.Active(env.ThreadIndex)
			slot.Current--
			slot.Out++
		}
		if next := model.States[n.HealthState].Local; next != nil {
			slot := next.Active(env.ThreadIndex)
			slot.Current++
			slot.In++
		}
		for _, s := range env.Sets {
			s.NotifyNodeWrite("healthState", n)
		}
		if env.Recorder != nil {
			env.Recorder.RecordStateChange(env.ThreadIndex, n, ChangeMeta{
				StateChange: true,
				ContactNode: a.Outcome.ContactNodeID,
				HasContact:  a.Outcome.HasContact,
				LocationID:  a.Outcome.LocationID,
				HasLocation: a.Outcome.HasLocation,
			})
		}
		if onStateChanged != nil {
			onStateChanged(n)
		}
		return true, nil
	default:
		return false, nil
	}
}
