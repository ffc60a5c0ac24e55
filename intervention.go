package distepi

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// LiteralDoc is the JSON shape of a literal Value (§3 Value instance). Only
// the field matching Kind is read.
type LiteralDoc struct {
	Kind  string  `json:"kind" validate:"required,oneof=bool int number id traitData traitValue string"`
	Bool  bool    `json:"bool"`
	Int   int64   `json:"int"`
	Number float64 `json:"number"`
	ID    uint64  `json:"id"`
	Trait []byte  `json:"trait"`
	Str   string  `json:"str"`
}

func (d LiteralDoc) toValue() (Value, error) {
	switch d.Kind {
	case "bool":
		return BoolValue(d.Bool), nil
	case "int":
		return IntValue(d.Int), nil
	case "number":
		return NumberValue(d.Number), nil
	case "id":
		return IDValue(d.ID), nil
	case "string":
		return StringValue(d.Str), nil
	case "traitData", "traitValue":
		var t Trait
		copy(t[:], d.Trait)
		if d.Kind == "traitData" {
			return TraitDataValue(t), nil
		}
		return TraitValueValue(t), nil
	default:
		return Value{}, errors.Errorf("unknown literal kind %q", d.Kind)
	}
}

func parseOperator(s string) (Operator, error) {
	switch s {
	case "==":
		return OpEqual, nil
	case "!=":
		return OpNotEqual, nil
	case "<":
		return OpLess, nil
	case "<=":
		return OpLessEqual, nil
	case ">":
		return OpGreater, nil
	case ">=":
		return OpGreaterEqual, nil
	case "in":
		return OpIn, nil
	case "not in":
		return OpNotIn, nil
	default:
		return 0, errors.Errorf("unknown comparison operator %q", s)
	}
}

// ValueDoc is the JSON shape of a ValueInstance (§3 Value instance,
// valueinstance.go): a literal, a bound node/edge property read, a variable
// reference, a set cardinality, or an observable.
type ValueDoc struct {
	Kind string `json:"kind" validate:"required,oneof=literal nodeProperty edgeProperty variable sizeOfSet observable"`

	Literal *LiteralDoc `json:"literal"`

	Property string `json:"property"`

	VariableID string `json:"variableId"`

	SetID string `json:"setId"`

	Observable string `json:"observable" validate:"omitempty,oneof=currentTick healthStateAbsoluteCount healthStateRelativeCount totalPopulation"`
	StateIndex int     `json:"stateIndex"`
}

func (d ValueDoc) toValueInstance() (ValueInstance, error) {
	switch d.Kind {
	case "literal":
		if d.Literal == nil {
			return nil, errors.New("value kind \"literal\" requires a literal field")
		}
		v, err := d.Literal.toValue()
		if err != nil {
			return nil, err
		}
		return LiteralValue{V: v}, nil
	case "nodeProperty":
		return NodePropertyRef{Property: d.Property}, nil
	case "edgeProperty":
		return EdgePropertyRef{Property: d.Property}, nil
	case "variable":
		return VariableRef{ID: d.VariableID}, nil
	case "sizeOfSet":
		return SizeOfSet{SetID: d.SetID}, nil
	case "observable":
		kind, err := parseObservableKind(d.Observable)
		if err != nil {
			return nil, err
		}
		return Observable{Kind: kind, StateIndex: d.StateIndex}, nil
	default:
		return nil, errors.Errorf("unknown value-instance kind %q", d.Kind)
	}
}

func parseObservableKind(s string) (ObservableKind, error) {
	switch s {
	case "currentTick":
		return ObsCurrentTick, nil
	case "healthStateAbsoluteCount":
		return ObsHealthStateAbsoluteCount, nil
	case "healthStateRelativeCount":
		return ObsHealthStateRelativeCount, nil
	case "totalPopulation":
		return ObsTotalPopulation, nil
	default:
		return 0, errors.Errorf("unknown observable %q", s)
	}
}

// ConditionDoc is the JSON shape of a Condition tree (§3 Condition
// definition, condition.go).
type ConditionDoc struct {
	Kind string `json:"kind" validate:"required,oneof=value comparison and or not"`

	Value *ValueDoc `json:"value"`

	Left      *ValueDoc    `json:"left"`
	Op        string       `json:"op"`
	Right     *ValueDoc    `json:"right"`
	RightList []LiteralDoc `json:"rightList"`

	Children []ConditionDoc `json:"children"`
	Child    *ConditionDoc  `json:"child"`
}

func (d ConditionDoc) toCondition() (Condition, error) {
	switch d.Kind {
	case "value":
		if d.Value == nil {
			return nil, errors.New("condition kind \"value\" requires a value field")
		}
		vi, err := d.Value.toValueInstance()
		if err != nil {
			return nil, err
		}
		return ValueCondition{V: vi}, nil
	case "comparison":
		op, err := parseOperator(d.Op)
		if err != nil {
			return nil, err
		}
		left, err := d.Left.toValueInstance()
		if err != nil {
			return nil, err
		}
		c := Comparison{Left: left, Op: op}
		if op.requiresList() {
			for _, lit := range d.RightList {
				v, err := lit.toValue()
				if err != nil {
					return nil, err
				}
				c.RightList = append(c.RightList, v)
			}
		} else {
			right, err := d.Right.toValueInstance()
			if err != nil {
				return nil, err
			}
			c.Right = right
		}
		return c, nil
	case "and":
		children, err := toConditions(d.Children)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil
	case "or":
		children, err := toConditions(d.Children)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil
	case "not":
		if d.Child == nil {
			return nil, errors.New("condition kind \"not\" requires a child field")
		}
		child, err := d.Child.toCondition()
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	default:
		return nil, errors.Errorf("unknown condition kind %q", d.Kind)
	}
}

func toConditions(docs []ConditionDoc) ([]Condition, error) {
	out := make([]Condition, 0, len(docs))
	for _, d := range docs {
		c, err := d.toCondition()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// OperationDoc is the JSON shape of an Operation (§3 Operation definition,
// operation.go).
type OperationDoc struct {
	TargetKind string `json:"targetKind" validate:"required,oneof=node edge variable"`
	Property   string `json:"property"`
	VariableID string `json:"variableId"`
	Op         string `json:"op" validate:"required"`
	Source     ValueDoc `json:"source"`
}

func (d OperationDoc) toOperation() (Operation, error) {
	op, err := parseWriteOperator(d.Op)
	if err != nil {
		return Operation{}, err
	}
	source, err := d.Source.toValueInstance()
	if err != nil {
		return Operation{}, err
	}
	target := OperationTarget{Property: d.Property, VariableID: d.VariableID}
	switch d.TargetKind {
	case "node":
		target.Kind = TargetNodeProperty
	case "edge":
		target.Kind = TargetEdgeProperty
	case "variable":
		target.Kind = TargetVariable
	default:
		return Operation{}, errors.Errorf("unknown operation target kind %q", d.TargetKind)
	}
	return Operation{Target: target, Op: op, Source: source}, nil
}

// ActionDefinitionDoc is the JSON shape of an ActionDefinition (§3 Action
// definition, actiondef.go).
type ActionDefinitionDoc struct {
	ID       string          `json:"id" validate:"required"`
	Priority float64         `json:"priority"`
	Delay    int             `json:"delay" validate:"gte=0"`
	Cond     *ConditionDoc   `json:"cond"`
	Ops      []OperationDoc  `json:"ops" validate:"required,dive"`
}

func (d ActionDefinitionDoc) toActionDefinition(index int) (*ActionDefinition, error) {
	var cond Condition
	if d.Cond != nil {
		c, err := d.Cond.toCondition()
		if err != nil {
			return nil, errors.Wrapf(err, "action %q condition", d.ID)
		}
		cond = c
	}
	ops := make(OperationList, 0, len(d.Ops))
	for i, opDoc := range d.Ops {
		op, err := opDoc.toOperation()
		if err != nil {
			return nil, errors.Wrapf(err, "action %q operation %d", d.ID, i)
		}
		ops = append(ops, op)
	}
	return &ActionDefinition{ID: d.ID, Index: index, Priority: d.Priority, Delay: d.Delay, Cond: cond, Ops: ops}, nil
}

// SelectorDoc is the JSON shape of a node/edge set selector (§4.6).
type SelectorDoc struct {
	Kind string `json:"kind" validate:"required,oneof=all propertyComparison propertyInList withIncomingEdgeIn withTargetNodeIn withSourceNodeIn"`

	Property string       `json:"property"`
	Op       string       `json:"op"`
	Operand  *LiteralDoc  `json:"operand"`
	List     []LiteralDoc `json:"list"`

	RefSetID string `json:"refSetId"`
}

func (d SelectorDoc) toNodeContent(sets map[string]*Set) (NodeSetContent, error) {
	switch d.Kind {
	case "all":
		return AllNodes{}, nil
	case "propertyComparison":
		op, err := parseOperator(d.Op)
		if err != nil {
			return nil, err
		}
		v, err := d.Operand.toValue()
		if err != nil {
			return nil, err
		}
		return NodePropertyComparison{Property: d.Property, Op: op, Operand: v}, nil
	case "propertyInList":
		list, err := toValueList(d.List)
		if err != nil {
			return nil, err
		}
		return NodePropertyInList{Property: d.Property, List: list}, nil
	case "withIncomingEdgeIn":
		edgeSet, ok := sets[d.RefSetID]
		if !ok {
			return nil, errors.Errorf("unknown referenced set %q", d.RefSetID)
		}
		return WithIncomingEdgeIn{EdgeSet: edgeSet}, nil
	default:
		return nil, errors.Errorf("selector kind %q is not a node selector", d.Kind)
	}
}

func (d SelectorDoc) toEdgeContent(sets map[string]*Set) (EdgeSetContent, error) {
	switch d.Kind {
	case "all":
		return AllEdges{}, nil
	case "propertyComparison":
		op, err := parseOperator(d.Op)
		if err != nil {
			return nil, err
		}
		v, err := d.Operand.toValue()
		if err != nil {
			return nil, err
		}
		return EdgePropertyComparison{Property: d.Property, Op: op, Operand: v}, nil
	case "propertyInList":
		list, err := toValueList(d.List)
		if err != nil {
			return nil, err
		}
		return EdgePropertyInList{Property: d.Property, List: list}, nil
	case "withTargetNodeIn":
		nodeSet, ok := sets[d.RefSetID]
		if !ok {
			return nil, errors.Errorf("unknown referenced set %q", d.RefSetID)
		}
		return WithTargetNodeIn{NodeSet: nodeSet}, nil
	case "withSourceNodeIn":
		nodeSet, ok := sets[d.RefSetID]
		if !ok {
			return nil, errors.Errorf("unknown referenced set %q", d.RefSetID)
		}
		nodeSet.Scope = ScopeGlobal
		return WithSourceNodeIn{NodeSet: nodeSet}, nil
	default:
		return nil, errors.Errorf("selector kind %q is not an edge selector", d.Kind)
	}
}

func toValueList(docs []LiteralDoc) (ValueList, error) {
	out := make(ValueList, 0, len(docs))
	for _, d := range docs {
		v, err := d.toValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// SetDoc is the JSON shape of a named Set (§3 Set). Sets referencing
// another set (withIncomingEdgeIn/withTargetNodeIn/withSourceNodeIn) must
// list that set earlier in the document; BuildSets processes in order.
type SetDoc struct {
	ID       string      `json:"id" validate:"required"`
	Kind     string      `json:"kind" validate:"required,oneof=nodes edges"`
	Scope    string      `json:"scope" validate:"required,oneof=local global"`
	Selector SelectorDoc `json:"selector"`
}

// BuildSets constructs named Sets in document order, so later sets may
// reference earlier ones by id.
func BuildSets(docs []SetDoc) (map[string]*Set, error) {
	sets := make(map[string]*Set, len(docs))
	for _, d := range docs {
		s := &Set{ID: d.ID}
		switch d.Scope {
		case "local":
			s.Scope = ScopeLocal
		case "global":
			s.Scope = ScopeGlobal
		}
		switch d.Kind {
		case "nodes":
			s.Kind = SetOfNodes
			content, err := d.Selector.toNodeContent(sets)
			if err != nil {
				return nil, errors.Wrapf(err, "set %q", d.ID)
			}
			s.NodeContent = content
		case "edges":
			s.Kind = SetOfEdges
			content, err := d.Selector.toEdgeContent(sets)
			if err != nil {
				return nil, errors.Wrapf(err, "set %q", d.ID)
			}
			s.EdgeContent = content
		default:
			return nil, errors.Errorf("set %q: unknown kind %q", d.ID, d.Kind)
		}
		sets[d.ID] = s
	}
	return sets, nil
}

// InterventionDocument is one fully-parsed intervention document's runtime
// artifacts: variables folded into the master list by the caller, sets,
// action definitions by id, and triggers.
type InterventionDocument struct {
	Variables []*Variable
	Sets      map[string]*Set
	Defs      map[string]*ActionDefinition
	Triggers  []*Trigger
}

// InterventionFileDoc is the on-disk JSON shape of one intervention document
// (§6 "a set of intervention documents (sets, triggers, actions,
// variables)").
type InterventionFileDoc struct {
	Variables []VariableDoc         `json:"variables" validate:"dive"`
	Sets      []SetDoc              `json:"sets" validate:"dive"`
	Actions   []ActionDefinitionDoc `json:"actions" validate:"dive"`
	Triggers  []InterventionTriggerDoc `json:"triggers" validate:"dive"`
}

// InterventionTriggerDoc is the JSON shape of a Trigger (§4.10 step 4).
type InterventionTriggerDoc struct {
	ID        string        `json:"id" validate:"required"`
	Cond      *ConditionDoc `json:"cond"`
	ActionIDs []string      `json:"actionIds" validate:"required"`
}

// LoadInterventionDocument decodes, validates, and builds one intervention
// document's runtime artifacts. nextGlobalIndex assigns RMA counter slots to
// newly declared global variables, starting from the given index.
func LoadInterventionDocument(path string, actionIndexBase, nextGlobalIndex int) (*InterventionDocument, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "read intervention document %s", path))
	}
	var doc InterventionFileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, newRunError(ErrConfigValidation, 0, errors.Wrapf(err, "parse intervention document %s", path))
	}
	if err := structValidator.Struct(&doc); err != nil {
		return nil, 0, newRunError(ErrConfigValidation, 0, errors.Wrapf(err, "validate intervention document %s", path))
	}

	var variables []*Variable
	for _, vd := range doc.Variables {
		v := &Variable{ID: vd.ID, Initial: NumberValue(vd.Initial), ResetPeriod: vd.ResetPeriod}
		if vd.Scope == "global" {
			v.Scope = ScopeGlobal
			v.GlobalIndex = nextGlobalIndex
			nextGlobalIndex++
		} else {
			v.Scope = ScopeLocal
		}
		variables = append(variables, v)
	}

	sets, err := BuildSets(doc.Sets)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "intervention document %s", path)
	}

	defs := make(map[string]*ActionDefinition, len(doc.Actions))
	var defList []*ActionDefinition
	for i, ad := range doc.Actions {
		def, err := ad.toActionDefinition(actionIndexBase + i)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "intervention document %s", path)
		}
		defs[def.ID] = def
		defList = append(defList, def)
	}
	ResolvePriorityOrders(defList)

	var triggers []*Trigger
	for _, td := range doc.Triggers {
		var cond Condition
		if td.Cond != nil {
			c, err := td.Cond.toCondition()
			if err != nil {
				return nil, 0, errors.Wrapf(err, "trigger %q", td.ID)
			}
			cond = c
		}
		t := &Trigger{ID: td.ID, Cond: cond}
		for _, id := range td.ActionIDs {
			def, ok := defs[id]
			if !ok {
				return nil, 0, errors.Errorf("trigger %q references unknown action %q", td.ID, id)
			}
			t.Defs = append(t.Defs, def)
		}
		triggers = append(triggers, t)
	}

	return &InterventionDocument{Variables: variables, Sets: sets, Defs: defs, Triggers: triggers}, nextGlobalIndex, nil
}
