package distepi

import "sync"

// Variable is a named scalar with a reset-on-tick policy and change
// broadcast (§3 Variable, §4.4).
type Variable struct {
	ID           string
	Scope        Scope
	Initial      Value
	ResetPeriod  int // 0 = never reset

	// GlobalIndex addresses this variable's slot in the RMA counter store;
	// meaningful only when Scope == ScopeGlobal.
	GlobalIndex int

	local *ThreadContext[Value]
}

// VariableList owns every configured variable and the per-thread "changed"
// tracking that seeds the dependency graph's per-tick update sequence
// (§4.4, §4.5).
type VariableList struct {
	vars    map[string]*Variable
	order   []string // stable registration order, for Names and ResetAll
	changed *ThreadContext[map[string]bool]
	counters *RMACounterStore
}

// NewVariableList builds a VariableList over vars, allocating local storage
// for ScopeLocal variables and wiring ScopeGlobal variables to counters.
func NewVariableList(vars []*Variable, numThreads int, counters *RMACounterStore) *VariableList {
	l := &VariableList{
		vars:     make(map[string]*Variable, len(vars)),
		changed:  NewThreadContext(numThreads, func() map[string]bool { return make(map[string]bool) }),
		counters: counters,
	}
	for _, v := range vars {
		v := v
		if v.Scope == ScopeLocal {
			v.local = NewThreadContext(numThreads, func() Value { return v.Initial })
		} else {
			counters.Grow(v.GlobalIndex)
			counters.Set(v.GlobalIndex, v.Initial.asFloat())
		}
		l.vars[v.ID] = v
		l.order = append(l.order, v.ID)
	}
	return l
}

// Names returns variable ids in stable registration order.
func (l *VariableList) Names() []string { return l.order }

// Get looks up a variable definition by id.
func (l *VariableList) Get(id string) (*Variable, bool) {
	v, ok := l.vars[id]
	return v, ok
}

// Value returns a variable's current value for the calling thread,
// refreshing the local cache from the RMA counter for global variables
// (§4.4 "getValue() refreshes the local cache from the counter").
func (l *VariableList) Value(threadIndex int, id string) Value {
	v := l.vars[id]
	if v.Scope == ScopeLocal {
		return *v.local.Active(threadIndex)
	}
	f := l.counters.Get(v.GlobalIndex)
	return v.Initial.withFloat(f)
}

// Set writes a variable's value. Local writes touch only the calling
// thread's slot; global writes go through the RMA counter's atomic
// get-modify-put (§4.4, §4.7 "writes to variables in global scope go
// through C2's RMA path").
func (l *VariableList) Set(threadIndex int, id string, op WriteOperator, operand Value) error {
	v := l.vars[id]
	if v.Scope == ScopeLocal {
		current := *v.local.Active(threadIndex)
		updated, err := op.Apply(current, operand)
		if err != nil {
			return err
		}
		*v.local.Active(threadIndex) = updated
	} else {
		if _, err := l.counters.Update(v.GlobalIndex, op, operand.asFloat()); err != nil {
			return err
		}
	}
	l.markChanged(threadIndex, id)
	return nil
}

func (l *VariableList) markChanged(threadIndex int, id string) {
	l.changed.Active(threadIndex)[id] = true
}

// ResetAll runs the tick-start reset phase (§4.4): any variable whose
// ResetPeriod divides the current tick evenly is restored to its initial
// value on every local thread and, for global variables, on the counter
// store (process-0 responsibility is the caller's), then broadcast via
// markChanged so the dependency graph recomputes its dependents.
func (l *VariableList) ResetAll(tick int, isProcessZero bool, force bool) {
	for _, id := range l.order {
		v := l.vars[id]
		if v.ResetPeriod <= 0 {
			continue
		}
		if !force && tick%v.ResetPeriod != 0 {
			continue
		}
		if v.Scope == ScopeLocal {
			v.local.Each(func(i int, slot *Value) {
				*slot = v.Initial
				l.markChanged(i, id)
			})
		} else if isProcessZero {
			l.counters.Set(v.GlobalIndex, v.Initial.asFloat())
			for i := 0; i < l.changed.Len(); i++ {
				l.markChanged(i, id)
			}
		}
	}
}

// ChangedThisTick returns the set of variable ids changed on threadIndex
// since the last DrainChanged, without clearing it.
func (l *VariableList) ChangedThisTick(threadIndex int) map[string]bool {
	return l.changed.Active(threadIndex)
}

// DrainChanged reduces every thread's changed-set into a single set and
// clears all per-thread sets, matching §4.4's "reduced into master" step
// that seeds the dependency graph.
func (l *VariableList) DrainChanged() map[string]bool {
	out := make(map[string]bool)
	var mu sync.Mutex
	l.changed.Each(func(i int, slot *map[string]bool) {
		mu.Lock()
		for id := range *slot {
			out[id] = true
		}
		*slot = make(map[string]bool)
		mu.Unlock()
	})
	return out
}
