package distepi

import "fmt"

// EvalEnv is the read-only context a ValueInstance, Condition, or Operation
// resolves against: the local arenas, the variable table, named sets, the
// disease model (for observables), the current tick, and — for node/edge-
// bound evaluation — the element currently in scope (§4.1, §4.7).
type EvalEnv struct {
	Nodes *NodeArena
	Edges *EdgeArena
	Vars  *VariableList
	Sets  map[string]*Set
	Model *DiseaseModel

	ThreadIndex int
	Tick        int

	BoundNode *Node
	BoundEdge *Edge
}

// ValueInstance is a read-expression that resolves to a Value (§3 Value
// instance). Every variant but the node/edge-property ones works whether or
// not an element is bound; node/edge-property variants require a matching
// bound element.
type ValueInstance interface {
	Resolve(env *EvalEnv) (Value, error)
	// Prereq names the dependency-graph computable id this value instance
	// depends on, or "" if it has none (e.g. a literal) (§3 "carries a
	// prerequisite pointer").
	Prereq() string
}

// LiteralValue is a constant ValueInstance.
type LiteralValue struct{ V Value }

func (l LiteralValue) Resolve(*EvalEnv) (Value, error) { return l.V, nil }
func (LiteralValue) Prereq() string                    { return "" }

// LiteralList is a constant ValueList wrapped as a right-hand in/not-in
// operand; it is not itself a ValueInstance (the spec distinguishes
// ValueInstance from ValueList on the right of in/not-in). Comparison does
// not use it: it carries its list operand directly as a ValueList in
// RightList.
type LiteralList struct{ L ValueList }

// ObservableKind enumerates the built-in run-level observables (§3 Value
// instance: "current tick, health-state absolute/relative count, total
// population").
type ObservableKind int

const (
	ObsCurrentTick ObservableKind = iota
	ObsHealthStateAbsoluteCount
	ObsHealthStateRelativeCount
	ObsTotalPopulation
)

// Observable resolves a run-level aggregate. StateIndex is meaningful only
// for the two health-state-count kinds.
type Observable struct {
	Kind       ObservableKind
	StateIndex int
	id         string // dependency-graph computable id, set at registration
}

func (o Observable) Resolve(env *EvalEnv) (Value, error) {
	switch o.Kind {
	case ObsCurrentTick:
		return IntValue(int64(env.Tick)), nil
	case ObsTotalPopulation:
		return IntValue(int64(env.Nodes.Len())), nil
	case ObsHealthStateAbsoluteCount:
		if o.StateIndex < 0 || o.StateIndex >= len(env.Model.States) {
			return Value{}, fmt.Errorf(IntKeyNotFoundError, o.StateIndex)
		}
		return IntValue(env.Model.States[o.StateIndex].Global.Current), nil
	case ObsHealthStateRelativeCount:
		if o.StateIndex < 0 || o.StateIndex >= len(env.Model.States) {
			return Value{}, fmt.Errorf(IntKeyNotFoundError, o.StateIndex)
		}
		total := env.Nodes.Len()
		if total == 0 {
			return NumberValue(0), nil
		}
		count := env.Model.States[o.StateIndex].Global.Current
		return NumberValue(float64(count) / float64(total)), nil
	default:
		return Value{}, fmt.Errorf("unknown observable kind %v", o.Kind)
	}
}
func (o Observable) Prereq() string { return o.id }

// NodePropertyRef reads a property off the bound node (§4.1, §4.7: "node
// variant evaluates with an element bound").
type NodePropertyRef struct{ Property string }

func (r NodePropertyRef) Resolve(env *EvalEnv) (Value, error) {
	if env.BoundNode == nil {
		return Value{}, fmt.Errorf("node property %q read with no node bound", r.Property)
	}
	return GetNodeProperty(env.BoundNode, r.Property)
}
func (NodePropertyRef) Prereq() string { return "" }

// EdgePropertyRef reads a property off the bound edge.
type EdgePropertyRef struct{ Property string }

func (r EdgePropertyRef) Resolve(env *EvalEnv) (Value, error) {
	if env.BoundEdge == nil {
		return Value{}, fmt.Errorf("edge property %q read with no edge bound", r.Property)
	}
	return GetEdgeProperty(env.BoundEdge, r.Property)
}
func (EdgePropertyRef) Prereq() string { return "" }

// VariableRef reads a named variable's current value for the calling
// thread (§3 Value instance: "variable reference").
type VariableRef struct{ ID string }

func (r VariableRef) Resolve(env *EvalEnv) (Value, error) {
	if _, ok := env.Vars.Get(r.ID); !ok {
		return Value{}, fmt.Errorf(IntKeyNotFoundError, 0)
	}
	return env.Vars.Value(env.ThreadIndex, r.ID), nil
}
func (r VariableRef) Prereq() string { return "var:" + r.ID }

// SizeOfSet resolves to the cardinality of a named set (§3 Value instance:
// "size-of a set").
type SizeOfSet struct{ SetID string }

func (r SizeOfSet) Resolve(env *EvalEnv) (Value, error) {
	s, ok := env.Sets[r.SetID]
	if !ok {
		return Value{}, fmt.Errorf(IntKeyNotFoundError, 0)
	}
	return IntValue(int64(s.Size())), nil
}
func (r SizeOfSet) Prereq() string { return "set:" + r.SetID }
