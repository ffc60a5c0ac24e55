package distepi

import "sort"

// maxPriorityOrders caps the number of distinct dense priority orders an
// action definition set can resolve to; priorities beyond the cap all share
// the last order, maxPriorityOrders-1, rather than growing the per-tick
// bucket array without bound (§4.19 "priority order clamps").
const maxPriorityOrders = 4096

// ActionDefinition is a reusable scheduling template (§3 Action
// definition): a dense index, a priority resolved to a dense order, a
// non-negative delay in ticks, an optional guard condition, and an ordered
// operation list.
type ActionDefinition struct {
	ID       string
	Index    int
	Priority float64
	Order    int // dense order, assigned by ResolvePriorityOrders
	Delay    int
	Cond     Condition // nil means unconditional
	Ops      OperationList
}

// ResolvePriorityOrders assigns each definition's dense Order by sorting
// the distinct priority values present across defs ascending; priority 1.0
// is reserved as the default order whether or not any definition uses it
// (§4.8 "priority 1.0 is reserved as the default order").
func ResolvePriorityOrders(defs []*ActionDefinition) {
	seen := map[float64]bool{1.0: true}
	for _, d := range defs {
		seen[d.Priority] = true
	}
	priorities := make([]float64, 0, len(seen))
	for p := range seen {
		priorities = append(priorities, p)
	}
	sort.Float64s(priorities)
	orderOf := make(map[float64]int, len(priorities))
	for i, p := range priorities {
		order := i
		if order >= maxPriorityOrders {
			order = maxPriorityOrders - 1
		}
		orderOf[p] = order
	}
	for _, d := range defs {
		d.Order = orderOf[d.Priority]
	}
}

// Process evaluates whether def's trigger condition holds (unbound, since
// triggers have no element in scope) and, if so, creates and enqueues the
// matching concrete Action with the definition's delay (§4.8 "process()
// creates a concrete action ... enqueues with the definition's delay").
func (def *ActionDefinition) Process(env *EvalEnv, target ActionTarget, queue *ActionQueue) (bool, error) {
	if def.Cond != nil {
		ok, err := def.Cond.Eval(env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	action := newAction(def, target)
	queue.Add(env.ThreadIndex, def.Delay, action)
	return true, nil
}

// Execute evaluates def's condition bound to target's element (if any) and,
// when true, runs every operation in definition order (§4.8 "execute(target)
// evaluates the condition ... and, when true, runs every operation").
func (def *ActionDefinition) Execute(env *ExecEnv) (bool, error) {
	if def.Cond != nil {
		ok, err := def.Cond.Eval(env.EvalEnv)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if err := def.Ops.Execute(env); err != nil {
		return false, err
	}
	return true, nil
}
