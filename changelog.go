package distepi

import (
	"bytes"
	"fmt"
	"os"
)

// ChangeMeta carries the optional context a change-log record needs beyond
// the node and its new state (§4.11 "record(node, meta)"): whether this
// write constitutes a reportable state change, and, for transmissions, the
// contact node responsible.
type ChangeMeta struct {
	StateChange bool
	ContactNode NodeID
	HasContact  bool
	LocationID  uint64
	HasLocation bool
}

// changeBitset is a double-buffered per-node changed flag (§4.19 "CChanges
// double-buffering"): current is cleared every tick by Clear(); recorded
// keeps the previous tick's flags available to a CSV writer draining
// concurrently with the next tick's mutations, and the two swap at Clear().
type changeBitset struct {
	current  map[NodeID]bool
	recorded map[NodeID]bool
}

func newChangeBitset() *changeBitset {
	return &changeBitset{current: make(map[NodeID]bool), recorded: make(map[NodeID]bool)}
}

func (b *changeBitset) mark(id NodeID) { b.current[id] = true }

// Clear swaps recorded <- current and starts a fresh current map, matching
// the original's "mark all nodes as unchanged" tick-start step without
// discarding what the CSV writer may still be draining from recorded
// (§4.10 step 1, §4.19).
func (b *changeBitset) Clear() {
	b.recorded = b.current
	b.current = make(map[NodeID]bool)
}

// ChangeLog is the per-thread CSV change recorder plus the summary writer
// (C11). One ChangeLog per process; each thread writes into its own
// buffer slot, flushed in thread-then-process order by the sequential
// primitive (§4.11).
type ChangeLog struct {
	tick int

	buffers *ThreadContext[*bytes.Buffer]
	changed *ThreadContext[*changeBitset]

	hasLocation bool

	outputPath  string
	summaryPath string
}

// NewChangeLog allocates per-thread buffers and bitsets for numThreads
// worker threads.
func NewChangeLog(numThreads int, outputPath, summaryPath string, hasLocation bool) *ChangeLog {
	return &ChangeLog{
		buffers:     NewThreadContext(numThreads, func() *bytes.Buffer { return new(bytes.Buffer) }),
		changed:     NewThreadContext(numThreads, newChangeBitset),
		hasLocation: hasLocation,
		outputPath:  outputPath,
		summaryPath: summaryPath,
	}
}

// SetCurrentTick pins the tick number subsequent Record calls stamp rows
// with (§4.11).
func (l *ChangeLog) SetCurrentTick(tick int) { l.tick = tick }

// IncrementTick advances the pinned tick (§4.10 step 9).
func (l *ChangeLog) IncrementTick() { l.tick++ }

// Clear runs the tick-start reset across every thread's bitset (§4.10
// step 1 "CChanges.clear()").
func (l *ChangeLog) Clear() {
	l.changed.Each(func(i int, slot **changeBitset) { (*slot).Clear() })
}

// RecordNodeChange implements ChangeRecorder for node writes (§4.7
// "records the change on the owning target ... via the change log").
// Plain property writes mark the node changed but do not themselves
// append a CSV row; only an explicit RecordStateChange call (driven by
// §4.3's stateChanged) appends the "tick,pid,exit_state,contact_pid[,
// location_id]" row the original emits.
func (l *ChangeLog) RecordNodeChange(threadIndex int, node *Node) {
	l.changed.Active(threadIndex).mark(node.ID)
}

// RecordEdgeChange implements ChangeRecorder for edge writes. The original
// leaves edge recording a no-op (CChanges::record(const CEdge*, ...) is
// empty); kept for interface symmetry and for any future per-edge metric.
func (l *ChangeLog) RecordEdgeChange(threadIndex int, edge *Edge) {}

// RecordStateChange appends one CSV row for a node whose health state just
// changed, per §4.11's "tick,pid,exit_state,contact_pid[,location_id]"
// format (§4.19 original format, ported verbatim).
func (l *ChangeLog) RecordStateChange(threadIndex int, node *Node, meta ChangeMeta) {
	l.changed.Active(threadIndex).mark(node.ID)
	if !meta.StateChange {
		return
	}
	buf := *l.buffers.Active(threadIndex)
	contact := "-1"
	if meta.HasContact {
		contact = fmt.Sprintf("%d", meta.ContactNode)
	}
	if l.hasLocation {
		location := "-1"
		if meta.HasLocation {
			location = fmt.Sprintf("%d", meta.LocationID)
		}
		fmt.Fprintf(buf, "%d,%d,%d,%s,%s\n", l.tick, node.ID, node.HealthState, contact, location)
	} else {
		fmt.Fprintf(buf, "%d,%d,%d,%s\n", l.tick, node.ID, node.HealthState, contact)
	}
}

// InitOutput writes the CSV header, called once by process 0 before the
// first tick (§4.11 "tick,pid,exit_state,contact_pid[,location_id]"
// header).
func (l *ChangeLog) InitOutput() error {
	header := "tick,pid,exit_state,contact_pid"
	if l.hasLocation {
		header += ",location_id"
	}
	header += "\n"
	return os.WriteFile(l.outputPath, []byte(header), 0644)
}

// Flush appends every thread's buffered rows to the output file in thread
// order and clears the buffers, matching §4.11's "flushing to disk is done
// by the sequential primitive so process 0 appends process 0's threads,
// then process 1's threads, and so on" — the cross-process ordering is the
// caller's responsibility (wrap this call in Sequential).
func (l *ChangeLog) Flush() error {
	var err error
	l.buffers.Each(func(i int, slot **bytes.Buffer) {
		if err != nil || (*slot).Len() == 0 {
			return
		}
		if ferr := AppendToFile(l.outputPath, (*slot).Bytes()); ferr != nil {
			err = ferr
			return
		}
		(*slot).Reset()
	})
	return err
}

// WriteSummaryHeader writes the per-state summary CSV header, called once
// by process 0 (§4.11 "summary file is written only on process 0").
func (l *ChangeLog) WriteSummaryHeader(stateIDs []string) error {
	var buf bytes.Buffer
	buf.WriteString("tick")
	for _, id := range stateIDs {
		fmt.Fprintf(&buf, ",%s", id)
	}
	buf.WriteString("\n")
	return os.WriteFile(l.summaryPath, buf.Bytes(), 0644)
}

// AppendSummaryRow appends one tick's global health-state counts, in the
// same state order as WriteSummaryHeader (§4.10 step 8 "append summary
// row").
func (l *ChangeLog) AppendSummaryRow(tick int, counts []int64) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d", tick)
	for _, c := range counts {
		fmt.Fprintf(&buf, ",%d", c)
	}
	buf.WriteString("\n")
	return AppendToFile(l.summaryPath, buf.Bytes())
}

// AppendToFile creates path if it does not exist and appends b to it,
// syncing before return (§11, ported from the teacher's CSV writer).
func AppendToFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}
