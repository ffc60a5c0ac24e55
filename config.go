package distepi

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var structValidator = validator.New()

// RunManifest is the top-level JSON run document (§6 "a run manifest
// (paths, start/end tick, seed, output paths, plugin list)").
type RunManifest struct {
	StartTick      int      `json:"startTick" validate:"gte=0"`
	EndTick        int      `json:"endTick" validate:"gtefield=StartTick"`
	Seed           int64    `json:"seed"`
	TimeResolution float64  `json:"timeResolution" validate:"gt=0"`
	GlobalTransmissibility float64 `json:"globalTransmissibility" validate:"gte=0"`
	NumThreads     int      `json:"numThreads" validate:"gte=1"`

	DiseaseModelPath string   `json:"diseaseModelPath" validate:"required"`
	NetworkPath      string   `json:"networkPath" validate:"required"`
	InterventionPaths []string `json:"interventionPaths"`
	TraitSchemaPath  string   `json:"traitSchemaPath"`
	DBConnection     string   `json:"dbConnection"`

	Output        string   `json:"output" validate:"required"`
	SummaryOutput string   `json:"summaryOutput" validate:"required"`
	Plugins       []string `json:"plugins"`

	MetricsAddr string `json:"metricsAddr"`
}

// LoadRunManifest decodes and validates a run manifest document, surfacing
// malformed JSON or out-of-range values as ErrConfigValidation before a run
// ever starts (§7, §4.13).
func LoadRunManifest(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "read run manifest %s", path))
	}
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, newRunError(ErrConfigValidation, 0, errors.Wrapf(err, "parse run manifest %s", path))
	}
	if err := structValidator.Struct(&m); err != nil {
		return nil, newRunError(ErrConfigValidation, 0, errors.Wrapf(err, "validate run manifest %s", path))
	}
	return &m, nil
}

// DistributionDoc is the JSON shape of a Distribution (§3 Distribution).
type DistributionDoc struct {
	Kind string `json:"kind" validate:"required,oneof=fixed discrete uniformSet uniformInterval normal gamma"`

	Fixed int `json:"fixed"`

	DiscreteValues []int     `json:"discreteValues"`
	DiscreteProbs  []float64 `json:"discreteProbs"`

	SetValues []int `json:"setValues"`

	Min int `json:"min"`
	Max int `json:"max"`

	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev" validate:"gte=0"`

	Shape float64 `json:"shape" validate:"gte=0"`
	Scale float64 `json:"scale" validate:"gte=0"`
}

func (d DistributionDoc) toDistribution() (Distribution, error) {
	dist := Distribution{
		Fixed: d.Fixed, DiscreteValues: d.DiscreteValues, DiscreteProbs: d.DiscreteProbs,
		SetValues: d.SetValues, Min: d.Min, Max: d.Max,
		Mean: d.Mean, StdDev: d.StdDev, Shape: d.Shape, Scale: d.Scale,
	}
	switch d.Kind {
	case "fixed":
		dist.Kind = DistFixed
	case "discrete":
		dist.Kind = DistDiscrete
		var sum float64
		for _, p := range d.DiscreteProbs {
			sum += p
		}
		if len(d.DiscreteValues) != len(d.DiscreteProbs) {
			return Distribution{}, errors.New("discrete distribution: values/probs length mismatch")
		}
		if sum < 0.999 || sum > 1.001 {
			return Distribution{}, errors.Errorf("discrete distribution: probabilities sum to %f, want 1", sum)
		}
	case "uniformSet":
		dist.Kind = DistUniformSet
	case "uniformInterval":
		dist.Kind = DistUniformInterval
	case "normal":
		dist.Kind = DistNormal
	case "gamma":
		dist.Kind = DistGamma
	default:
		return Distribution{}, errors.Errorf("unknown distribution kind %q", d.Kind)
	}
	return dist, nil
}

// FactorOpDoc is the JSON shape of an optional FactorOp.
type FactorOpDoc struct {
	Op    string  `json:"op" validate:"required,oneof== += -= *= /="`
	Value float64 `json:"value"`
}

func (f *FactorOpDoc) toFactorOp() (*FactorOp, error) {
	if f == nil {
		return nil, nil
	}
	op, err := parseWriteOperator(f.Op)
	if err != nil {
		return nil, err
	}
	return &FactorOp{Op: op, Value: f.Value}, nil
}

func parseWriteOperator(s string) (WriteOperator, error) {
	switch s {
	case "=":
		return WriteAssign, nil
	case "+=":
		return WriteAdd, nil
	case "-=":
		return WriteSub, nil
	case "*=":
		return WriteMul, nil
	case "/=":
		return WriteDiv, nil
	default:
		return 0, errors.Errorf("unknown write operator %q", s)
	}
}

// ProgressionDoc is the JSON shape of a Progression (§3 Progression).
type ProgressionDoc struct {
	ID         string          `json:"id" validate:"required"`
	ExitState  string          `json:"exitState" validate:"required"`
	Propensity float64         `json:"propensity" validate:"gte=0"`
	Dwell      DistributionDoc `json:"dwell"`

	SusceptibilityFactor *FactorOpDoc `json:"susceptibilityFactor"`
	InfectivityFactor    *FactorOpDoc `json:"infectivityFactor"`
}

// HealthStateDoc is the JSON shape of a HealthState (§3 Health state).
type HealthStateDoc struct {
	ID                 string           `json:"id" validate:"required"`
	BaseSusceptibility float64          `json:"baseSusceptibility" validate:"gte=0"`
	BaseInfectivity    float64          `json:"baseInfectivity" validate:"gte=0"`
	Progressions       []ProgressionDoc `json:"progressions" validate:"dive"`
}

// TransmissionDoc is the JSON shape of a Transmission (§3 Transmission).
type TransmissionDoc struct {
	ID               string       `json:"id" validate:"required"`
	EntryState       string       `json:"entryState" validate:"required"`
	ContactState     string       `json:"contactState" validate:"required"`
	ExitState        string       `json:"exitState" validate:"required"`
	Transmissibility float64      `json:"transmissibility" validate:"gte=0"`

	SusceptibilityFactor *FactorOpDoc `json:"susceptibilityFactor"`
	InfectivityFactor    *FactorOpDoc `json:"infectivityFactor"`
}

// DiseaseModelDoc is the JSON disease-model document (§6).
type DiseaseModelDoc struct {
	InitialState  string            `json:"initialState" validate:"required"`
	States        []HealthStateDoc  `json:"states" validate:"required,dive"`
	Transmissions []TransmissionDoc `json:"transmissions" validate:"dive"`
}

// LoadDiseaseModel decodes, validates, and builds a DiseaseModel, resolving
// string state ids to dense indices.
func LoadDiseaseModel(path string) (*DiseaseModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "read disease model %s", path))
	}
	var doc DiseaseModelDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newRunError(ErrConfigValidation, 0, errors.Wrapf(err, "parse disease model %s", path))
	}
	if err := structValidator.Struct(&doc); err != nil {
		return nil, newRunError(ErrConfigValidation, 0, errors.Wrapf(err, "validate disease model %s", path))
	}
	return buildDiseaseModel(doc)
}

func buildDiseaseModel(doc DiseaseModelDoc) (*DiseaseModel, error) {
	indexOf := make(map[string]int, len(doc.States))
	for i, s := range doc.States {
		indexOf[s.ID] = i
	}
	states := make([]*HealthState, len(doc.States))
	for i, s := range doc.States {
		hs := &HealthState{
			ID:                 s.ID,
			Index:              i,
			BaseSusceptibility: s.BaseSusceptibility,
			BaseInfectivity:    s.BaseInfectivity,
		}
		for _, p := range s.Progressions {
			exit, ok := indexOf[p.ExitState]
			if !ok {
				return nil, errors.Errorf("progression %q: unknown exit state %q", p.ID, p.ExitState)
			}
			dwell, err := p.Dwell.toDistribution()
			if err != nil {
				return nil, errors.Wrapf(err, "progression %q", p.ID)
			}
			sus, err := p.SusceptibilityFactor.toFactorOp()
			if err != nil {
				return nil, err
			}
			inf, err := p.InfectivityFactor.toFactorOp()
			if err != nil {
				return nil, err
			}
			hs.Progressions = append(hs.Progressions, &Progression{
				ID: p.ID, EntryState: i, ExitState: exit, Propensity: p.Propensity,
				Dwell: dwell, SusceptibilityFactor: sus, InfectivityFactor: inf,
			})
		}
		states[i] = hs
	}
	var transmissions []*Transmission
	for _, t := range doc.Transmissions {
		entry, ok := indexOf[t.EntryState]
		if !ok {
			return nil, errors.Errorf("transmission %q: unknown entry state %q", t.ID, t.EntryState)
		}
		contact, ok := indexOf[t.ContactState]
		if !ok {
			return nil, errors.Errorf("transmission %q: unknown contact state %q", t.ID, t.ContactState)
		}
		exit, ok := indexOf[t.ExitState]
		if !ok {
			return nil, errors.Errorf("transmission %q: unknown exit state %q", t.ID, t.ExitState)
		}
		sus, err := t.SusceptibilityFactor.toFactorOp()
		if err != nil {
			return nil, err
		}
		inf, err := t.InfectivityFactor.toFactorOp()
		if err != nil {
			return nil, err
		}
		transmissions = append(transmissions, &Transmission{
			ID: t.ID, EntryState: entry, ContactState: contact, ExitState: exit,
			Transmissibility: t.Transmissibility, SusceptibilityFactor: sus, InfectivityFactor: inf,
		})
	}
	initial, ok := indexOf[doc.InitialState]
	if !ok {
		return nil, errors.Errorf("unknown initial state %q", doc.InitialState)
	}
	model, err := NewDiseaseModel(states, transmissions)
	if err != nil {
		return nil, err
	}
	model.InitialState = initial
	return model, nil
}

// VariableDoc is the JSON shape of a Variable (§3 Variable). Intervention
// documents embed these (see InterventionFileDoc in intervention.go).
type VariableDoc struct {
	ID          string  `json:"id" validate:"required"`
	Scope       string  `json:"scope" validate:"required,oneof=local global"`
	Initial     float64 `json:"initial"`
	ResetPeriod int     `json:"resetPeriod" validate:"gte=0"`
}
