package distepi

import "testing"

func TestDependencyGraph_ApplyUpdateOrderReturnsRecomputeCount(t *testing.T) {
	g := NewDependencyGraph()
	var aRan, bRan int
	g.Register(&Computable{ID: "a", Recompute: func() { aRan++ }})
	g.Register(&Computable{ID: "b", Prereqs: []string{"a"}, Recompute: func() { bRan++ }})
	g.Build()
	g.BuildCommonSequence([]string{"a", "b"})

	recomputed := g.ApplyUpdateOrder(map[string]bool{"a": true}, []string{"a", "b"})
	if recomputed != 2 {
		t.Errorf("expected 2 recomputes (a and its dependent b), got %d", recomputed)
	}
	if aRan != 1 || bRan != 1 {
		t.Errorf("expected a and b to each run once, got aRan=%d bRan=%d", aRan, bRan)
	}

	// A second query with nothing changed and nothing requested recomputes
	// nothing; flags are reset between queries.
	recomputed = g.ApplyUpdateOrder(map[string]bool{}, nil)
	if recomputed != 0 {
		t.Errorf("expected 0 recomputes with nothing changed, got %d", recomputed)
	}
}
