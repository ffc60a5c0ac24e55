package distepi

import "fmt"

// Condition is the recursive boolean tree over value-instance comparisons
// (§3 Condition definition, §4.7). Value returns its literal truthiness;
// Comparison invokes an operator over two reads; And/Or/Not combine
// children with short-circuit semantics.
type Condition interface {
	Eval(env *EvalEnv) (bool, error)
}

// ValueCondition is a bare boolean ValueInstance used as a leaf (§3
// "Condition definition: Value leaf").
type ValueCondition struct{ V ValueInstance }

func (c ValueCondition) Eval(env *EvalEnv) (bool, error) {
	v, err := c.V.Resolve(env)
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, fmt.Errorf(PropertyValueKindError, "condition value", "bool")
	}
	return v.Bool, nil
}

// Comparison evaluates left against either a scalar right (via Op) or,
// when Op is in/not-in, against RightList (§3 invariant: "comparisons
// in/not in require right to be a ValueList; all other comparisons forbid
// ValueList").
type Comparison struct {
	Left      ValueInstance
	Op        Operator
	Right     ValueInstance // used when !Op.requiresList()
	RightList ValueList     // used when Op.requiresList()
}

func (c Comparison) Eval(env *EvalEnv) (bool, error) {
	left, err := c.Left.Resolve(env)
	if err != nil {
		return false, err
	}
	if c.Op.requiresList() {
		return CompareList(left, c.Op, c.RightList)
	}
	right, err := c.Right.Resolve(env)
	if err != nil {
		return false, err
	}
	return Compare(left, c.Op, right)
}

// And evaluates children left to right, short-circuiting to false on the
// first false child (§4.7).
type And struct{ Children []Condition }

func (a And) Eval(env *EvalEnv) (bool, error) {
	for _, c := range a.Children {
		ok, err := c.Eval(env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Or evaluates children left to right, short-circuiting to true on the
// first true child (§4.7).
type Or struct{ Children []Condition }

func (o Or) Eval(env *EvalEnv) (bool, error) {
	for _, c := range o.Children {
		ok, err := c.Eval(env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Not negates its single child.
type Not struct{ Child Condition }

func (n Not) Eval(env *EvalEnv) (bool, error) {
	ok, err := n.Child.Eval(env)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
