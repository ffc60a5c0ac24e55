package distepi

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Trigger is a configured intervention: a named condition evaluated every
// tick (a nil Cond always holds), whose action definitions fire with their
// own delay when the condition holds (§4.10 step 4 "Trigger phase").
type Trigger struct {
	ID   string
	Cond Condition
	Defs []*ActionDefinition
}

// RunConfig bundles the per-run knobs §6 names that the tick loop and
// transmission kernel consult directly; the rest of a loaded configuration
// (paths, plugin list) is consumed before Simulation is constructed.
type RunConfig struct {
	StartTick      int
	EndTick        int
	Seed           int64
	TimeResolution float64
	GlobalTransmissibility float64
	NumThreads     int
	HasLocation    bool
}

// Simulation owns every live component and drives the per-tick control
// flow in §4.10.
type Simulation struct {
	cfg RunConfig

	Model *DiseaseModel
	Nodes *NodeArena
	Edges *EdgeArena
	Vars  *VariableList
	Sets  map[string]*Set
	Graph *DependencyGraph
	Queue *ActionQueue
	Log   *ChangeLog

	Triggers []*Trigger

	Topo  ProcessTopology
	Peers *PeerExchange

	// Metrics is optional ambient observability (§4.18); nil disables every
	// metrics update in the tick loop.
	Metrics *Metrics

	rngs []*rand.Rand // one per thread, globalThreadIndex = rank*NumThreads+local

	tick int

	// threadRanges partitions owned nodes across threads; a thread owns
	// a contiguous range of local nodes (§5 "a thread owns a contiguous
	// range of local nodes").
	threadRanges [][2]int // [threadIndex] -> [start,end) into Nodes.All()

	// stateActionDef is the implicit action definition every transmission
	// and progression action resolves its bucket order through; these
	// actions have no user-configured definition of their own. Its Order is
	// fixed at 0, the first order drained; that is the order
	// ResolvePriorityOrders gives priority 1.0 only when no configured
	// definition has a priority below 1.0 (§3 Action:
	// "transmission-progression-action").
	stateActionDef *ActionDefinition
}

// NewSimulation wires every subsystem together and assigns contiguous
// per-thread node ranges.
func NewSimulation(cfg RunConfig, topo ProcessTopology, model *DiseaseModel, nodes *NodeArena, edges *EdgeArena,
	vars *VariableList, sets map[string]*Set, graph *DependencyGraph, peers *PeerExchange) *Simulation {

	s := &Simulation{
		cfg:   cfg,
		Model: model,
		Nodes: nodes,
		Edges: edges,
		Vars:  vars,
		Sets:  sets,
		Graph: graph,
		Queue: NewActionQueue(cfg.NumThreads, cfg.StartTick),
		Topo:  topo,
		Peers: peers,
		tick:  cfg.StartTick,
		stateActionDef: &ActionDefinition{ID: "__state_change", Priority: 1.0, Order: 0},
	}
	s.rngs = make([]*rand.Rand, cfg.NumThreads)
	for i := 0; i < cfg.NumThreads; i++ {
		global := topo.Rank*cfg.NumThreads + i
		s.rngs[i] = NewThreadRNG(cfg.Seed, global)
	}
	s.threadRanges = partitionRange(nodes.Len(), cfg.NumThreads)
	s.seedInitialCounts()
	return s
}

// seedInitialCounts credits each node's starting health state to its owning
// thread's counter slot, so current(s) reflects the loaded population before
// the first tick runs rather than starting every state at zero (§8 invariant
// 2: "sum over states of current(s) equals the total population at every
// tick").
func (s *Simulation) seedInitialCounts() {
	for threadIndex, rng := range s.threadRanges {
		for i := rng[0]; i < rng[1]; i++ {
			node := s.Nodes.At(i)
			if local := s.Model.States[node.HealthState].Local; local != nil {
				local.Active(threadIndex).Current++
			}
		}
	}
}

func partitionRange(n, numThreads int) [][2]int {
	ranges := make([][2]int, numThreads)
	base := n / numThreads
	rem := n % numThreads
	start := 0
	for i := 0; i < numThreads; i++ {
		size := base
		if i < rem {
			size++
		}
		ranges[i] = [2]int{start, start + size}
		start += size
	}
	return ranges
}

// env builds the evaluation environment for threadIndex at the current
// tick, unbound to any element.
func (s *Simulation) env(threadIndex int) *EvalEnv {
	return &EvalEnv{
		Nodes: s.Nodes, Edges: s.Edges, Vars: s.Vars, Sets: s.Sets, Model: s.Model,
		ThreadIndex: threadIndex, Tick: s.tick,
	}
}

func (s *Simulation) execEnv(threadIndex int) *ExecEnv {
	return &ExecEnv{EvalEnv: s.env(threadIndex), Recorder: s.Log}
}

// RunTick executes one full tick per §4.10's nine steps and advances the
// tick counter; it returns the first error that aborts the tick. Run, not
// RunTick, checks the end tick.
func (s *Simulation) RunTick() error {
	// Step 1: clear changed flags (swap the double-buffered bitsets).
	s.Log.Clear()
	s.Log.SetCurrentTick(s.tick)

	// Step 2: reset expiring variables.
	s.Vars.ResetAll(s.tick, s.Topo.Rank == 0, false)

	// Step 3: recompute everything reachable from changed inputs.
	changed := s.Vars.DrainChanged()
	changed["observable:currentTick"] = true
	var requested []string
	for id := range s.Sets {
		requested = append(requested, "set:"+id)
		// Every set is requested every tick (no finer-grained prerequisite
		// wiring tracks which variable/property writes a set's content
		// depends on), so mark it changed unconditionally too; Set.Compute's
		// own collector decides whether that means a full recompute or an
		// incremental replay (§4.5, §4.6).
		changed["set:"+id] = true
	}
	recomputed := s.Graph.ApplyUpdateOrder(changed, requested)
	if s.Metrics != nil {
		s.Metrics.DependencyRecomputes.Add(float64(recomputed))
	}

	// Step 4: trigger phase.
	if err := s.runTriggers(); err != nil {
		return err
	}

	// Step 5: transmission phase.
	if err := s.runTransmissionPhase(); err != nil {
		return err
	}

	// Step 6: drain the action queue until globally empty.
	if err := s.drainQueue(); err != nil {
		return err
	}

	// Step 7 (row-level) already happened inline via RecordStateChange
	// calls made by action execution and the transmission/progression
	// outcome application.

	// Step 8: summary.
	if err := s.emitSummary(); err != nil {
		return err
	}

	// Step 9: advance.
	s.tick++
	s.Queue.IncrementTick()
	s.Log.IncrementTick()
	if s.Metrics != nil {
		s.Metrics.TicksCompleted.Inc()
	}
	return nil
}

// Run drives ticks from the configured start through end tick inclusive
// (§4.10 "Per tick t from startTick to endTick inclusive").
func (s *Simulation) Run() error {
	for s.tick <= s.cfg.EndTick {
		if err := s.RunTick(); err != nil {
			return errors.Wrapf(err, "tick %d", s.tick)
		}
	}
	return nil
}

func (s *Simulation) runTriggers() error {
	for _, t := range s.Triggers {
		env := s.env(0)
		if t.Cond != nil {
			ok, err := t.Cond.Eval(env)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		for _, def := range t.Defs {
			if _, err := def.Process(env, ActionTarget{}, s.Queue); err != nil {
				return err
			}
		}
	}
	return nil
}

// runTransmissionPhase runs the transmission kernel over every local node,
// parallelized by thread-owned range (§4.10 step 5, §5 "the transmission
// kernel ... run in parallel over owned nodes").
func (s *Simulation) runTransmissionPhase() error {
	var g errgroup.Group
	for threadIndex, rng := range s.threadRanges {
		threadIndex, rng := threadIndex, rng
		g.Go(func() error {
			return s.transmissionWorker(threadIndex, rng)
		})
	}
	return g.Wait()
}

func (s *Simulation) transmissionWorker(threadIndex int, rng [2]int) error {
	threadRNG := s.rngs[threadIndex]
	for i := rng[0]; i < rng[1]; i++ {
		node := s.Nodes.At(i)
		u1, u2 := threadRNG.Float64(), threadRNG.Float64()
		fired, transmission, sourceEdge, err := s.Model.TransmissionKernel(
			node, s.Edges, s.Nodes, s.cfg.GlobalTransmissibility, s.cfg.TimeResolution, u1, u2)
		if err != nil {
			var runErr *RunError
			if errors.As(err, &runErr) && !runErr.Kind.fatal() {
				log.Print(runErr)
				continue // recoverable: node skipped this tick (§7)
			}
			return err
		}
		if !fired {
			continue
		}
		outcome := &StateOutcome{
			ExitState:            transmission.ExitState,
			SusceptibilityFactor: transmission.SusceptibilityFactor,
			InfectivityFactor:    transmission.InfectivityFactor,
			ContactNodeID:        sourceEdge.SourceID,
			HasContact:           true,
			LocationID:           sourceEdge.LocationID,
			HasLocation:          sourceEdge.HasLocation,
		}
		action := newStateAction(s.stateActionDef, node.ID, node.HealthState, outcome)
		s.Queue.Add(threadIndex, 0, action)
		if s.Metrics != nil {
			s.Metrics.TransmissionsFired.Inc()
		}
	}
	return nil
}

// stateChanged schedules the next progression for node after its health
// state changes, mirroring §4.3's "State-progression selection (on state
// change)".
func (s *Simulation) stateChanged(threadIndex int, node *Node) {
	rng := s.rngs[threadIndex]
	progression, ok := s.Model.SelectProgression(node, rng)
	if !ok {
		return
	}
	delay := progression.dwellTicks(node, rng)
	outcome := &StateOutcome{
		ExitState:            progression.ExitState,
		SusceptibilityFactor: progression.SusceptibilityFactor,
		InfectivityFactor:    progression.InfectivityFactor,
	}
	action := newStateAction(s.stateActionDef, node.ID, node.HealthState, outcome)
	s.Queue.Add(threadIndex, delay, action)
}

// drainQueue repeats detach-run-sync rounds until the process-wide pending
// count is zero (§4.9 drain steps 1-4).
func (s *Simulation) drainQueue() error {
	for {
		var g errgroup.Group
		for threadIndex := range s.threadRanges {
			threadIndex := threadIndex
			g.Go(func() error { return s.drainThreadRound(threadIndex) })
		}
		if err := g.Wait(); err != nil {
			return err
		}

		s.Queue.MigratePending()
		if err := s.syncRemoteActions(); err != nil {
			return err
		}

		local := s.Queue.PendingAtCurrentTick()
		if s.Metrics != nil {
			s.Metrics.QueueDepth.Set(float64(local))
		}
		globalPending, err := s.reduceGlobalPending(local)
		if err != nil {
			return err
		}
		if globalPending == 0 {
			return nil
		}
	}
}

func (s *Simulation) drainThreadRound(threadIndex int) error {
	env := s.execEnv(threadIndex)
	fired, err := s.Queue.DrainRound(threadIndex, s.rngs[threadIndex], func(a *Action) (ran bool, fireErr error) {
		defer func() {
			if r := recover(); r != nil {
				s.logActionFailure(a, errors.Errorf("panic: %v", r))
				ran, fireErr = false, nil
			}
		}()
		switch a.Kind {
		case ActionTransmissionProgression:
			env.BoundNode = s.Nodes.ByID(a.Target.NodeID)
			ok, err := a.Fire(env, s.Model, func(n *Node) { s.stateChanged(threadIndex, n) })
			env.BoundNode = nil
			return s.recoverActionError(a, ok, err)
		case ActionNode:
			env.BoundNode = s.Nodes.ByID(a.Target.NodeID)
			ok, err := a.Fire(env, s.Model, nil)
			env.BoundNode = nil
			return s.recoverActionError(a, ok, err)
		case ActionEdge:
			if target := s.Nodes.ByID(a.Target.EdgeKey.TargetID); target != nil {
				for _, ref := range target.Incoming {
					if e := s.Edges.Get(ref); e.SourceID == a.Target.EdgeKey.SourceID {
						env.BoundEdge = e
						break
					}
				}
			}
			ok, err := a.Fire(env, s.Model, nil)
			env.BoundEdge = nil
			return s.recoverActionError(a, ok, err)
		default:
			ok, err := a.Fire(env, s.Model, nil)
			return s.recoverActionError(a, ok, err)
		}
	})
	if s.Metrics != nil && fired > 0 {
		s.Metrics.ActionsDrained.WithLabelValues(fmt.Sprintf("%d", threadIndex)).Add(float64(fired))
	}
	return err
}

// recoverActionError classifies an error returned by Action.Fire as a
// recoverable action-execution exception (§7 "Action execution exception:
// recovered locally, action treated as no-op, simulation proceeds"),
// logging it and reporting the action as a no-op rather than letting it
// abort the drain round.
func (s *Simulation) recoverActionError(a *Action, ran bool, err error) (bool, error) {
	if err == nil {
		return ran, nil
	}
	s.logActionFailure(a, err)
	return false, nil
}

func (s *Simulation) logActionFailure(a *Action, cause error) {
	runErr := newRunError(ErrActionPanic, s.tick, errors.Wrapf(cause, "action %s", a.ID))
	log.Print(runErr)
}

// syncRemoteActions is the cross-process barrier after each drain round
// (§4.9). It only calls the transport's Barrier; no pending actions are
// encoded, sent or received here. With a single process, Peers is nil and
// this is a no-op.
func (s *Simulation) syncRemoteActions() error {
	if s.Peers == nil {
		return nil
	}
	return s.Peers.Transport.Barrier()
}

// reduceGlobalPending sums the per-process pending count across every
// process by broadcasting each count with Peers.BroadcastAll, falling back
// to the local count for a single-process run.
func (s *Simulation) reduceGlobalPending(local int) (int, error) {
	if s.Peers == nil || s.Topo.NumProcess <= 1 {
		return local, nil
	}
	total := local
	err := s.Peers.BroadcastAll(
		func() []byte { return encodeInt(local) },
		func(sender int, data []byte) { total += decodeInt(data) },
	)
	return total, err
}

func encodeInt(v int) []byte {
	buf := make([]byte, 8)
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	return buf
}

func decodeInt(buf []byte) int {
	var u uint64
	for i := 0; i < 8 && i < len(buf); i++ {
		u |= uint64(buf[i]) << (8 * i)
	}
	return int(u)
}

// emitSummary reduces per-thread health-state counters to global and
// appends the summary row (§4.10 step 8).
func (s *Simulation) emitSummary() error {
	for _, state := range s.Model.States {
		if state.Local == nil {
			continue
		}
		var current, in, out int64
		state.Local.Each(func(i int, slot *HealthStateCounters) {
			current += slot.Current
			in += slot.In
			out += slot.Out
		})
		state.Global = HealthStateCounters{Current: current, In: in, Out: out}
	}
	counts := make([]int64, len(s.Model.States))
	for i, state := range s.Model.States {
		counts[i] = state.Global.Current
	}
	if s.Topo.Rank != 0 {
		return nil
	}
	return s.Log.AppendSummaryRow(s.tick, counts)
}
