package distepi

import "testing"

func TestVariableList_Set_LocalScopeIsPerThread(t *testing.T) {
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeLocal, Initial: IntValue(0)}}, 2, NewRMACounterStore(0))
	if err := vars.Set(0, "v", WriteAdd, IntValue(5)); err != nil {
		t.Fatalf("Set: %s", err)
	}
	if got := vars.Value(0, "v").Int; got != 5 {
		t.Errorf("expected thread 0's value 5, got %d", got)
	}
	if got := vars.Value(1, "v").Int; got != 0 {
		t.Errorf("expected thread 1's value untouched at 0, got %d", got)
	}
}

func TestVariableList_Set_GlobalScopeSharedAcrossThreads(t *testing.T) {
	counters := NewRMACounterStore(0)
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeGlobal, GlobalIndex: 0, Initial: IntValue(1)}}, 2, counters)
	if err := vars.Set(0, "v", WriteMul, IntValue(2)); err != nil {
		t.Fatalf("Set: %s", err)
	}
	if err := vars.Set(1, "v", WriteMul, IntValue(2)); err != nil {
		t.Fatalf("Set: %s", err)
	}
	if got := vars.Value(0, "v").Int; got != 4 {
		t.Errorf("expected both threads' writes to land on the shared counter (1*2*2=4), got %d", got)
	}
	if got := vars.Value(1, "v").Int; got != 4 {
		t.Errorf("expected thread 1 to see the same shared value, got %d", got)
	}
}

func TestVariableList_ResetAll_RespectsResetPeriod(t *testing.T) {
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeLocal, Initial: IntValue(0), ResetPeriod: 3}}, 1, NewRMACounterStore(0))
	vars.Set(0, "v", WriteAssign, IntValue(9))

	vars.ResetAll(1, true, false) // tick 1 not a multiple of 3: no reset
	if got := vars.Value(0, "v").Int; got != 9 {
		t.Fatalf("expected value to survive a non-reset tick, got %d", got)
	}

	vars.ResetAll(3, true, false) // tick 3 is a multiple of 3: reset
	if got := vars.Value(0, "v").Int; got != 0 {
		t.Errorf("expected value reset to initial 0 at tick 3, got %d", got)
	}
}

func TestVariableList_ResetAll_ZeroPeriodNeverResets(t *testing.T) {
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeLocal, Initial: IntValue(0), ResetPeriod: 0}}, 1, NewRMACounterStore(0))
	vars.Set(0, "v", WriteAssign, IntValue(9))
	vars.ResetAll(0, true, false)
	if got := vars.Value(0, "v").Int; got != 9 {
		t.Errorf("expected ResetPeriod<=0 to mean never reset, got %d", got)
	}
}

func TestVariableList_ResetAll_GlobalOnlyOnProcessZero(t *testing.T) {
	counters := NewRMACounterStore(0)
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeGlobal, GlobalIndex: 0, Initial: IntValue(0), ResetPeriod: 1}}, 1, counters)
	vars.Set(0, "v", WriteAssign, IntValue(9))

	vars.ResetAll(1, false, false) // not process 0: must not reset the shared counter
	if got := vars.Value(0, "v").Int; got != 9 {
		t.Fatalf("expected a non-process-0 reset call to leave the global counter untouched, got %d", got)
	}

	vars.ResetAll(1, true, false) // process 0: resets
	if got := vars.Value(0, "v").Int; got != 0 {
		t.Errorf("expected process 0's reset to restore the initial value, got %d", got)
	}
}

func TestVariableList_DrainChanged_ReducesAndClearsPerThread(t *testing.T) {
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeLocal, Initial: IntValue(0)}}, 2, NewRMACounterStore(0))
	vars.Set(0, "v", WriteAssign, IntValue(1))
	vars.Set(1, "v", WriteAssign, IntValue(2))

	changed := vars.DrainChanged()
	if !changed["v"] {
		t.Fatal("expected DrainChanged to report v as changed")
	}
	if len(vars.ChangedThisTick(0)) != 0 || len(vars.ChangedThisTick(1)) != 0 {
		t.Error("expected DrainChanged to clear every thread's changed set")
	}
}

func TestVariableList_Get(t *testing.T) {
	vars := NewVariableList([]*Variable{{ID: "v", Scope: ScopeLocal, Initial: IntValue(0)}}, 1, NewRMACounterStore(0))
	if _, ok := vars.Get("v"); !ok {
		t.Error("expected Get to find a registered variable")
	}
	if _, ok := vars.Get("missing"); ok {
		t.Error("expected Get to report false for an unregistered variable")
	}
}
