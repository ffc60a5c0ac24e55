package distepi

import "testing"

func TestPluginRegistry_ApplyTransmissionSetsHook(t *testing.T) {
	r := NewPluginRegistry()
	called := false
	r.Register("boost", HookSet{
		TransmissionPropensity: func(t *Transmission, edge *Edge) float64 {
			called = true
			return 1.0
		},
	})
	tr := &Transmission{ID: "s_to_i"}
	r.ApplyTransmission("boost", tr)
	if tr.PropensityHook == nil {
		t.Fatal("expected propensity hook to be set")
	}
	tr.PropensityHook(tr, &Edge{})
	if !called {
		t.Error("expected hook to have been invoked")
	}
}

func TestPluginRegistry_NilHookRevertsToDefault(t *testing.T) {
	r := NewPluginRegistry()
	r.Register("boost", HookSet{TransmissionPropensity: func(t *Transmission, e *Edge) float64 { return 1 }})
	r.Register("noop", HookSet{}) // TransmissionPropensity left nil

	tr := &Transmission{ID: "s_to_i"}
	r.ApplyTransmission("boost", tr)
	if tr.PropensityHook == nil {
		t.Fatal("expected hook set by boost")
	}
	r.ApplyTransmission("noop", tr)
	if tr.PropensityHook != nil {
		t.Error("expected noop's nil hook to revert to default (nil)")
	}
}

func TestPluginRegistry_UnregisteredPluginIsNoop(t *testing.T) {
	r := NewPluginRegistry()
	tr := &Transmission{ID: "s_to_i"}
	r.ApplyTransmission("ghost", tr)
	if tr.PropensityHook != nil {
		t.Error("expected unregistered plugin to leave hook untouched")
	}
}
