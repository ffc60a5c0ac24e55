package distepi

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// FactorOp is an optional susceptibility/infectivity adjustment applied
// when a progression or transmission fires (§3 Progression, §3
// Transmission: "optional susceptibility and infectivity factor
// operations").
type FactorOp struct {
	Op    WriteOperator // one of assign/multiply/divide per spec
	Value float64
}

func (f FactorOp) apply(current float64) float64 {
	updated, _ := f.Op.Apply(NumberValue(current), NumberValue(f.Value))
	return updated.Number
}

// HealthStateCounters are the per-context {current, in, out} tallies a
// health state maintains (§3 Health state). Local counters are per-thread;
// Global is barrier-synchronized.
type HealthStateCounters struct {
	Current int64
	In      int64
	Out     int64
}

// HealthState is one node in the disease state machine (§3 Health state).
// Index is dense starting at 0 (§3 invariant).
type HealthState struct {
	ID    string
	Index int

	BaseSusceptibility float64
	BaseInfectivity    float64

	Progressions []*Progression // outgoing progressions from this state
	A0           float64        // precomputed sum of propensities

	Local  *ThreadContext[HealthStateCounters]
	Global HealthStateCounters

	// NextProgressionHook lets a plugin override progression selection
	// (§6 "state_progression"); nil means use the default algorithm.
	NextProgressionHook func(state *HealthState, node *Node, rng *rand.Rand) (*Progression, bool)
}

// Progression is a spontaneous, time-driven transition (§3 Progression).
type Progression struct {
	ID         string
	EntryState int
	ExitState  int
	Propensity float64

	Dwell Distribution

	SusceptibilityFactor *FactorOp
	InfectivityFactor    *FactorOp

	// DwellTimeHook lets a plugin override dwell-time sampling (§6
	// "progression_dwell_time"); nil means sample Dwell directly.
	DwellTimeHook func(p *Progression, node *Node, rng *rand.Rand) int
}

func (p *Progression) dwellTicks(node *Node, rng *rand.Rand) int {
	if p.DwellTimeHook != nil {
		return p.DwellTimeHook(p, node, rng)
	}
	return p.Dwell.Sample(rng)
}

// Transmission is a contact-mediated transition (§3 Transmission).
type Transmission struct {
	ID              string
	EntryState      int // susceptible form
	ContactState    int // infectious form of the contact
	ExitState       int
	Transmissibility float64

	SusceptibilityFactor *FactorOp
	InfectivityFactor    *FactorOp

	// PropensityHook lets a plugin override per-edge propensity (§6
	// "transmission_propensity"); nil means use the default formula.
	PropensityHook func(t *Transmission, edge *Edge) float64
}

func (t *Transmission) propensity(edge *Edge, targetSusceptibility, sourceInfectivity float64) (p float64, err error) {
	if t.PropensityHook != nil {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("transmission propensity hook panicked: %v", r)
			}
		}()
		return t.PropensityHook(t, edge), nil
	}
	return edge.Duration * edge.Weight * targetSusceptibility * sourceInfectivity * t.Transmissibility, nil
}

// DiseaseModel owns every health state, progression, and transmission, plus
// the O(1) entry/contact dispatch table (§3 Transmission invariant).
type DiseaseModel struct {
	States        []*HealthState
	byID          map[string]*HealthState
	transmissions []*Transmission
	// table[entry][contact] -> transmission, for O(1) edge dispatch.
	table map[[2]int]*Transmission

	InitialState int
}

// NewDiseaseModel builds dispatch structures (A0 sums, the entry/contact
// table) from a fully-populated state/progression/transmission set.
func NewDiseaseModel(states []*HealthState, transmissions []*Transmission) (*DiseaseModel, error) {
	m := &DiseaseModel{
		States:        states,
		byID:          make(map[string]*HealthState, len(states)),
		transmissions: transmissions,
		table:         make(map[[2]int]*Transmission, len(transmissions)),
	}
	for i, s := range states {
		if s.Index != i {
			return nil, errors.Errorf("health state %q has non-dense index %d (want %d)", s.ID, s.Index, i)
		}
		m.byID[s.ID] = s
		var a0 float64
		for _, p := range s.Progressions {
			a0 += p.Propensity
		}
		s.A0 = a0
	}
	for _, t := range transmissions {
		m.table[[2]int{t.EntryState, t.ContactState}] = t
	}
	return m, nil
}

// InitThreadCounters allocates each health state's per-thread counter
// context, required before the tick loop can record state-change in/out
// tallies (§4.10 step 8, §5 "Health-state counters: per-thread increments").
func (m *DiseaseModel) InitThreadCounters(numThreads int) {
	for _, s := range m.States {
		s.Local = NewThreadContext(numThreads, func() HealthStateCounters { return HealthStateCounters{} })
	}
}

// StateByID looks up a health state by its string id.
func (m *DiseaseModel) StateByID(id string) (*HealthState, bool) {
	s, ok := m.byID[id]
	return s, ok
}

// Transmission returns the transmission registered for (entryState,
// contactState), or nil if that pairing cannot transmit.
func (m *DiseaseModel) Transmission(entryState, contactState int) *Transmission {
	return m.table[[2]int{entryState, contactState}]
}

// SelectProgression runs the next-progression policy hook for newState
// (§4.3 "State-progression selection"). The default algorithm draws
// U*A0 and selects by prefix sum over newState's registered progressions.
func (m *DiseaseModel) SelectProgression(node *Node, rng *rand.Rand) (*Progression, bool) {
	state := m.States[node.HealthState]
	if state.NextProgressionHook != nil {
		return state.NextProgressionHook(state, node, rng)
	}
	if state.A0 <= 0 {
		return nil, false
	}
	u := rng.Float64() * state.A0
	var cum float64
	for _, p := range state.Progressions {
		cum += p.Propensity
		if u <= cum {
			return p, true
		}
	}
	return state.Progressions[len(state.Progressions)-1], true
}

// applyFactors updates a node's susceptibility/infectivity factors given an
// optional pair of factor operations, then refreshes the derived effective
// values (§4.1, §4.3).
func applyFactors(node *Node, model *DiseaseModel, sus, inf *FactorOp) {
	if sus != nil {
		node.SusceptibilityFactor = sus.apply(node.SusceptibilityFactor)
	}
	if inf != nil {
		node.InfectivityFactor = inf.apply(node.InfectivityFactor)
	}
	node.RefreshDerived(model)
}

// TransmissionKernel evaluates transmission across one local node's
// incoming edges and, if a transmission fires, returns the chosen
// transmission and its source edge (§4.3 "Transmission kernel (per local
// node)"). The caller is responsible for enqueuing the resulting
// transmission-action with delay 0.
//
// timeResolution divides the fire threshold per §6's timeResolution
// config option ("divisor applied to per-edge propensities"). u1/u2 are
// the two independent uniform(0,1) draws the spec requires; callers pass
// them in (rather than drawing internally) so unit tests can pin them.
func (m *DiseaseModel) TransmissionKernel(
	node *Node, edges *EdgeArena, nodes *NodeArena,
	globalTransmissibility, timeResolution float64,
	u1, u2 float64,
) (fired bool, chosen *Transmission, sourceEdge *Edge, err error) {
	if node.Susceptibility == 0 {
		return false, nil, nil, nil
	}
	state := m.States[node.HealthState]
	_ = state

	type candidate struct {
		t    *Transmission
		edge *Edge
		prop float64
	}
	var candidates []candidate
	var a0 float64
	for _, ref := range node.Incoming {
		edge := edges.Get(ref)
		if !edge.Active {
			continue
		}
		srcState, _, srcInfectivity, ok := edge.SourceState(nodes)
		if !ok || srcInfectivity == 0 {
			continue
		}
		t := m.Transmission(node.HealthState, srcState)
		if t == nil {
			continue
		}
		prop, perr := func() (p float64, perr error) {
			defer func() {
				if r := recover(); r != nil {
					perr = errors.Errorf("transmission propensity panic: %v", r)
				}
			}()
			return t.propensity(edge, node.Susceptibility, srcInfectivity)
		}()
		if perr != nil {
			// Recoverable per §7: log handled by caller, node skipped.
			return false, nil, nil, newNodeRunError(ErrPropensityPanic, 0, node.ID, perr)
		}
		if prop <= 0 {
			continue
		}
		a0 += prop
		candidates = append(candidates, candidate{t, edge, prop})
	}
	if len(candidates) == 0 || a0 <= 0 {
		return false, nil, nil, nil
	}
	threshold := a0 * globalTransmissibility * (1.0 / timeResolution)
	if -math.Log(u1) >= threshold {
		return false, nil, nil, nil
	}
	target := u2 * a0
	var cum float64
	for _, c := range candidates {
		cum += c.prop
		if target <= cum {
			return true, c.t, c.edge, nil
		}
	}
	last := candidates[len(candidates)-1]
	return true, last.t, last.edge, nil
}
