package distepi

import "fmt"

// nodeProperty describes one named, typed node field: how to read it as a
// Value and, for writable properties, how to write a Value back (§4.1
// "property access"). Properties absent from this table are unknown and
// every read/write on them fails per §7 UnknownPropertyError.
type nodeProperty struct {
	get      func(n *Node) Value
	getRemote func(r *RemoteNode) Value
	set      func(n *Node, model *DiseaseModel, v Value) error // nil = read-only
}

var nodeProperties = map[string]nodeProperty{
	"id": {
		get:       func(n *Node) Value { return IDValue(n.ID) },
		getRemote: func(r *RemoteNode) Value { return IDValue(r.ID) },
	},
	"healthState": {
		get:       func(n *Node) Value { return IntValue(int64(n.HealthState)) },
		getRemote: func(r *RemoteNode) Value { return IntValue(int64(r.HealthState)) },
		set: func(n *Node, model *DiseaseModel, v Value) error {
			if v.Kind != KindInt {
				return fmt.Errorf(PropertyValueKindError, "healthState", "int")
			}
			n.HealthState = int(v.Int)
			n.RefreshDerived(model)
			return nil
		},
	},
	"susceptibilityFactor": {
		get:       func(n *Node) Value { return NumberValue(n.SusceptibilityFactor) },
		getRemote: func(r *RemoteNode) Value { return NumberValue(0) },
		set: func(n *Node, model *DiseaseModel, v Value) error {
			n.SusceptibilityFactor = v.asFloat()
			n.RefreshDerived(model)
			return nil
		},
	},
	"infectivityFactor": {
		get:       func(n *Node) Value { return NumberValue(n.InfectivityFactor) },
		getRemote: func(r *RemoteNode) Value { return NumberValue(0) },
		set: func(n *Node, model *DiseaseModel, v Value) error {
			n.InfectivityFactor = v.asFloat()
			n.RefreshDerived(model)
			return nil
		},
	},
	"susceptibility": {
		get:       func(n *Node) Value { return NumberValue(n.Susceptibility) },
		getRemote: func(r *RemoteNode) Value { return NumberValue(r.Susceptibility) },
	},
	"infectivity": {
		get:       func(n *Node) Value { return NumberValue(n.Infectivity) },
		getRemote: func(r *RemoteNode) Value { return NumberValue(r.Infectivity) },
	},
	"trait": {
		get:       func(n *Node) Value { return TraitDataValue(n.Trait) },
		getRemote: func(r *RemoteNode) Value { return TraitDataValue(r.Trait) },
	},
}

// GetNodeProperty reads a named property off a local node (§4.1).
func GetNodeProperty(n *Node, name string) (Value, error) {
	p, ok := nodeProperties[name]
	if !ok {
		return Value{}, fmt.Errorf(UnknownPropertyError, name)
	}
	return p.get(n), nil
}

// getRemoteNodeProperty reads a named property off a remote node mirror;
// derived-only fields (susceptibility/infectivity) are carried in the
// mirror, factors are not (§3 Remote node: "state-only mirror").
func getRemoteNodeProperty(r *RemoteNode, name string) (Value, error) {
	p, ok := nodeProperties[name]
	if !ok {
		return Value{}, fmt.Errorf(UnknownPropertyError, name)
	}
	return p.getRemote(r), nil
}

// SetNodeProperty writes a named property on a local node, refreshing
// derived susceptibility/infectivity where relevant (§4.1).
func SetNodeProperty(n *Node, model *DiseaseModel, name string, v Value) error {
	p, ok := nodeProperties[name]
	if !ok {
		return fmt.Errorf(UnknownPropertyError, name)
	}
	if p.set == nil {
		return fmt.Errorf(ReadOnlyPropertyError, name)
	}
	return p.set(n, model, v)
}

func isWritableNodeProperty(name string) bool {
	p, ok := nodeProperties[name]
	return ok && p.set != nil
}

// edgeProperty is the edge analogue of nodeProperty.
type edgeProperty struct {
	get func(e *Edge) Value
	set func(e *Edge, v Value) error
}

var edgeProperties = map[string]edgeProperty{
	"targetId": {get: func(e *Edge) Value { return IDValue(e.TargetID) }},
	"sourceId": {get: func(e *Edge) Value { return IDValue(e.SourceID) }},
	"targetActivity": {get: func(e *Edge) Value { return TraitDataValue(e.TargetActivity) }},
	"sourceActivity": {get: func(e *Edge) Value { return TraitDataValue(e.SourceActivity) }},
	"duration":       {get: func(e *Edge) Value { return NumberValue(e.Duration) }},
	"locationId": {
		get: func(e *Edge) Value {
			if !e.HasLocation {
				return IDValue(0)
			}
			return IDValue(e.LocationID)
		},
	},
	"trait": {get: func(e *Edge) Value { return TraitDataValue(e.EdgeTrait) }},
	"active": {
		get: func(e *Edge) Value { return BoolValue(e.Active) },
		set: func(e *Edge, v Value) error {
			if v.Kind != KindBool {
				return fmt.Errorf(PropertyValueKindError, "active", "bool")
			}
			e.Active = v.Bool
			return nil
		},
	},
	"weight": {
		get: func(e *Edge) Value { return NumberValue(e.Weight) },
		set: func(e *Edge, v Value) error {
			e.Weight = v.asFloat()
			return nil
		},
	},
}

// GetEdgeProperty reads a named property off an edge (§4.1).
func GetEdgeProperty(e *Edge, name string) (Value, error) {
	p, ok := edgeProperties[name]
	if !ok {
		return Value{}, fmt.Errorf(UnknownPropertyError, name)
	}
	return p.get(e), nil
}

// SetEdgeProperty writes a named property on an edge (§4.1).
func SetEdgeProperty(e *Edge, name string, v Value) error {
	p, ok := edgeProperties[name]
	if !ok {
		return fmt.Errorf(UnknownPropertyError, name)
	}
	if p.set == nil {
		return fmt.Errorf(ReadOnlyPropertyError, name)
	}
	return p.set(e, v)
}

func isWritableEdgeProperty(name string) bool {
	p, ok := edgeProperties[name]
	return ok && p.set != nil
}
