package distepi

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %s", err)
	}
	return path
}

func TestLoadRunManifest(t *testing.T) {
	path := writeTempFile(t, `{
		"startTick": 0, "endTick": 10, "seed": 42, "timeResolution": 1.0,
		"globalTransmissibility": 1.0, "numThreads": 2,
		"diseaseModelPath": "model.json", "networkPath": "net",
		"output": "out.csv", "summaryOutput": "summary.csv"
	}`)
	m, err := LoadRunManifest(path)
	if err != nil {
		t.Fatalf("LoadRunManifest: %s", err)
	}
	if m.EndTick != 10 {
		t.Errorf("expected endTick 10, got %d", m.EndTick)
	}
	if m.NumThreads != 2 {
		t.Errorf("expected numThreads 2, got %d", m.NumThreads)
	}
}

func TestLoadRunManifest_InvalidEndTick(t *testing.T) {
	path := writeTempFile(t, `{
		"startTick": 10, "endTick": 5, "timeResolution": 1.0,
		"numThreads": 1, "diseaseModelPath": "m", "networkPath": "n",
		"output": "o", "summaryOutput": "s"
	}`)
	if _, err := LoadRunManifest(path); err == nil {
		t.Error("expected validation error for endTick < startTick")
	}
}

func TestBuildDiseaseModel(t *testing.T) {
	doc := DiseaseModelDoc{
		InitialState: "S",
		States: []HealthStateDoc{
			{ID: "S", BaseSusceptibility: 1.0, BaseInfectivity: 0.0},
			{
				ID: "I", BaseSusceptibility: 0.0, BaseInfectivity: 1.0,
				Progressions: []ProgressionDoc{
					{ID: "I_to_R", ExitState: "R", Propensity: 0.1, Dwell: DistributionDoc{Kind: "fixed", Fixed: 5}},
				},
			},
			{ID: "R", BaseSusceptibility: 0.0, BaseInfectivity: 0.0},
		},
		Transmissions: []TransmissionDoc{
			{ID: "S_to_I", EntryState: "S", ContactState: "I", ExitState: "I", Transmissibility: 0.5},
		},
	}
	model, err := buildDiseaseModel(doc)
	if err != nil {
		t.Fatalf("buildDiseaseModel: %s", err)
	}
	if model.InitialState != 0 {
		t.Errorf("expected initial state index 0, got %d", model.InitialState)
	}
	if len(model.States) != 3 {
		t.Errorf("expected 3 states, got %d", len(model.States))
	}
	infectious := model.States[1]
	if len(infectious.Progressions) != 1 {
		t.Fatalf("expected 1 progression on infectious state, got %d", len(infectious.Progressions))
	}
	if infectious.Progressions[0].ExitState != 2 {
		t.Errorf("expected progression exit state index 2 (R), got %d", infectious.Progressions[0].ExitState)
	}
}

func TestBuildDiseaseModel_UnknownExitState(t *testing.T) {
	doc := DiseaseModelDoc{
		InitialState: "S",
		States: []HealthStateDoc{
			{ID: "S", Progressions: []ProgressionDoc{{ID: "bad", ExitState: "ghost", Propensity: 1}}},
		},
	}
	if _, err := buildDiseaseModel(doc); err == nil {
		t.Error("expected error for unknown exit state")
	}
}

func TestDistributionDoc_DiscreteProbsMustSumToOne(t *testing.T) {
	d := DistributionDoc{Kind: "discrete", DiscreteValues: []int{1, 2}, DiscreteProbs: []float64{0.5, 0.4}}
	if _, err := d.toDistribution(); err == nil {
		t.Error("expected error for probabilities not summing to 1")
	}
}

func TestFactorOpDoc_Nil(t *testing.T) {
	var f *FactorOpDoc
	op, err := f.toFactorOp()
	if err != nil {
		t.Fatalf("nil FactorOpDoc should not error: %s", err)
	}
	if op != nil {
		t.Error("expected nil FactorOp from nil FactorOpDoc")
	}
}
