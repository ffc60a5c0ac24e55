package distepi

import "testing"

// newSIRModel builds a three-state S->I->R disease model with one contact
// transmission (S+I->I) and one spontaneous progression (I->R), shared by
// the core-engine tests in this package.
func newSIRModel(t testing.TB, transmissibility float64, progressionDwell int) *DiseaseModel {
	t.Helper()
	states := []*HealthState{
		{ID: "S", Index: 0, BaseSusceptibility: 1, BaseInfectivity: 0},
		{ID: "I", Index: 1, BaseSusceptibility: 0, BaseInfectivity: 1, Progressions: []*Progression{
			{ID: "i_to_r", EntryState: 1, ExitState: 2, Propensity: 1,
				Dwell: Distribution{Kind: DistFixed, Fixed: progressionDwell}},
		}},
		{ID: "R", Index: 2, BaseSusceptibility: 0, BaseInfectivity: 0},
	}
	transmissions := []*Transmission{
		{ID: "s_to_i", EntryState: 0, ContactState: 1, ExitState: 1, Transmissibility: transmissibility},
	}
	model, err := NewDiseaseModel(states, transmissions)
	if err != nil {
		t.Fatalf("NewDiseaseModel: %s", err)
	}
	return model
}

// newTwoNodeNetwork builds node A (id 1, susceptible) and node B (id 2,
// infectious) joined by a single directed edge B->A, matching the
// single-infection scenario's network shape.
func newTwoNodeNetwork(t testing.TB, model *DiseaseModel) (*NodeArena, *EdgeArena) {
	t.Helper()
	nodes := []Node{
		{ID: 1, HealthState: 0, SusceptibilityFactor: 1, InfectivityFactor: 1}, // A: susceptible
		{ID: 2, HealthState: 1, SusceptibilityFactor: 1, InfectivityFactor: 1}, // B: infectious
	}
	arena := NewNodeArena(nodes)
	for i := 0; i < arena.Len(); i++ {
		arena.At(i).RefreshDerived(model)
	}
	edges := []Edge{{TargetID: 1, SourceID: 2, Duration: 1, Weight: 1, Active: true}}
	edgeArena := NewEdgeArena(edges, arena)
	return arena, edgeArena
}

// newTestSimulation wires a ready-to-run, single-process Simulation from
// already-built components, filling in the run knobs the scenario tests
// need control over. It allocates the disease model's per-thread counters
// and a ChangeLog backed by temp files, matching what config_loader.go's
// LoadSimulation does for a real run.
func newTestSimulation(t testing.TB, model *DiseaseModel, nodes *NodeArena, edges *EdgeArena, vars *VariableList,
	sets map[string]*Set, numThreads, endTick int) (sim *Simulation, log *ChangeLog, outputPath, summaryPath string) {
	t.Helper()
	model.InitThreadCounters(numThreads)
	if vars == nil {
		vars = NewVariableList(nil, numThreads, NewRMACounterStore(0))
	}
	if sets == nil {
		sets = map[string]*Set{}
	}
	graph := buildSetDependencyGraph(sets, nodes, edges)
	cfg := RunConfig{
		StartTick:              0,
		EndTick:                endTick,
		Seed:                   42,
		TimeResolution:         1,
		GlobalTransmissibility: 1,
		NumThreads:             numThreads,
	}
	topo := ProcessTopology{Rank: 0, NumProcess: 1}
	sim = NewSimulation(cfg, topo, model, nodes, edges, vars, sets, graph, nil)

	dir := t.TempDir()
	outputPath = dir + "/changes.csv"
	summaryPath = dir + "/summary.csv"
	log = NewChangeLog(numThreads, outputPath, summaryPath, false)
	if err := log.InitOutput(); err != nil {
		t.Fatalf("InitOutput: %s", err)
	}
	stateIDs := make([]string, len(model.States))
	for i, st := range model.States {
		stateIDs[i] = st.ID
	}
	if err := log.WriteSummaryHeader(stateIDs); err != nil {
		t.Fatalf("WriteSummaryHeader: %s", err)
	}
	sim.Log = log
	return sim, log, outputPath, summaryPath
}
