package distepi

import (
	"os"
	"testing"
)

func newTestChangeLog(t *testing.T, numThreads int, hasLocation bool) (*ChangeLog, string, string) {
	t.Helper()
	dir := t.TempDir()
	outputPath := dir + "/changes.csv"
	summaryPath := dir + "/summary.csv"
	log := NewChangeLog(numThreads, outputPath, summaryPath, hasLocation)
	if err := log.InitOutput(); err != nil {
		t.Fatalf("InitOutput: %s", err)
	}
	return log, outputPath, summaryPath
}

func TestChangeLog_InitOutput_WritesHeader(t *testing.T) {
	_, outputPath, _ := newTestChangeLog(t, 1, false)
	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %s", err)
	}
	if string(got) != "tick,pid,exit_state,contact_pid\n" {
		t.Errorf("header = %q", got)
	}
}

func TestChangeLog_InitOutput_WithLocationColumn(t *testing.T) {
	_, outputPath, _ := newTestChangeLog(t, 1, true)
	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %s", err)
	}
	if string(got) != "tick,pid,exit_state,contact_pid,location_id\n" {
		t.Errorf("header = %q", got)
	}
}

func TestChangeLog_RecordStateChange_WritesRowWithContact(t *testing.T) {
	log, outputPath, _ := newTestChangeLog(t, 1, false)
	log.SetCurrentTick(3)
	node := &Node{ID: 5, HealthState: 1}
	log.RecordStateChange(0, node, ChangeMeta{StateChange: true, ContactNode: 9, HasContact: true})
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading output: %s", err)
	}
	want := "tick,pid,exit_state,contact_pid\n3,5,1,9\n"
	if string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestChangeLog_RecordStateChange_NoContactWritesSentinel(t *testing.T) {
	log, outputPath, _ := newTestChangeLog(t, 1, false)
	log.SetCurrentTick(0)
	node := &Node{ID: 1, HealthState: 2}
	log.RecordStateChange(0, node, ChangeMeta{StateChange: true})
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	got, _ := os.ReadFile(outputPath)
	want := "tick,pid,exit_state,contact_pid\n0,1,2,-1\n"
	if string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestChangeLog_RecordStateChange_WithLocation(t *testing.T) {
	log, outputPath, _ := newTestChangeLog(t, 1, true)
	log.SetCurrentTick(0)
	node := &Node{ID: 1, HealthState: 1}
	log.RecordStateChange(0, node, ChangeMeta{StateChange: true, HasLocation: true, LocationID: 42})
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	got, _ := os.ReadFile(outputPath)
	want := "tick,pid,exit_state,contact_pid,location_id\n0,1,1,-1,42\n"
	if string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestChangeLog_RecordStateChange_NonStateChangeMarksOnlyNoRow(t *testing.T) {
	log, outputPath, _ := newTestChangeLog(t, 1, false)
	node := &Node{ID: 1, HealthState: 0}
	log.RecordStateChange(0, node, ChangeMeta{StateChange: false})
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	got, _ := os.ReadFile(outputPath)
	if string(got) != "tick,pid,exit_state,contact_pid\n" {
		t.Errorf("expected no appended row for a non-state-change record, got %q", got)
	}
}

func TestChangeLog_RecordNodeChange_MarksWithoutRow(t *testing.T) {
	log, outputPath, _ := newTestChangeLog(t, 1, false)
	node := &Node{ID: 7}
	log.RecordNodeChange(0, node)
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	got, _ := os.ReadFile(outputPath)
	if string(got) != "tick,pid,exit_state,contact_pid\n" {
		t.Errorf("expected RecordNodeChange to append no row, got %q", got)
	}
}

func TestChangeLog_Flush_OrdersByThreadAndClearsBuffers(t *testing.T) {
	log, outputPath, _ := newTestChangeLog(t, 2, false)
	log.SetCurrentTick(0)
	log.RecordStateChange(1, &Node{ID: 2, HealthState: 1}, ChangeMeta{StateChange: true})
	log.RecordStateChange(0, &Node{ID: 1, HealthState: 1}, ChangeMeta{StateChange: true})

	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	got, _ := os.ReadFile(outputPath)
	want := "tick,pid,exit_state,contact_pid\n0,1,1,-1\n0,2,1,-1\n"
	if string(got) != want {
		t.Fatalf("output = %q, want %q (thread 0's row before thread 1's)", got, want)
	}

	// A second flush with nothing buffered must not duplicate rows.
	if err := log.Flush(); err != nil {
		t.Fatalf("second Flush: %s", err)
	}
	got, _ = os.ReadFile(outputPath)
	if string(got) != want {
		t.Errorf("expected a second empty Flush to append nothing, got %q", got)
	}
}

func TestChangeLog_Clear_SwapsChangedBitsetAndResetsCurrent(t *testing.T) {
	log, _, _ := newTestChangeLog(t, 1, false)
	node := &Node{ID: 3}
	log.RecordNodeChange(0, node)
	log.Clear() // swaps current (with node 3 marked) into recorded
	bits := *log.changed.Active(0)
	if !bits.recorded[3] || len(bits.current) != 0 {
		t.Fatalf("expected Clear to move node 3 into recorded and reset current, got recorded=%v current=%v", bits.recorded, bits.current)
	}
	log.Clear() // a second Clear with nothing newly marked swaps an empty current in
	bits = *log.changed.Active(0)
	if len(bits.recorded) != 0 || len(bits.current) != 0 {
		t.Fatalf("expected a second Clear to leave recorded and current empty, got recorded=%v current=%v", bits.recorded, bits.current)
	}
	log.RecordNodeChange(0, node)
	if !bits.current[3] {
		t.Errorf("expected RecordNodeChange after Clear to mark node 3 in the fresh current set")
	}
}

func TestChangeLog_IncrementTick_AdvancesStampedTick(t *testing.T) {
	log, outputPath, _ := newTestChangeLog(t, 1, false)
	log.SetCurrentTick(5)
	log.IncrementTick()
	log.RecordStateChange(0, &Node{ID: 1, HealthState: 1}, ChangeMeta{StateChange: true})
	if err := log.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}
	got, _ := os.ReadFile(outputPath)
	want := "tick,pid,exit_state,contact_pid\n6,1,1,-1\n"
	if string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestChangeLog_WriteSummaryHeaderAndAppendSummaryRow(t *testing.T) {
	log, _, summaryPath := newTestChangeLog(t, 1, false)
	if err := log.WriteSummaryHeader([]string{"S", "I", "R"}); err != nil {
		t.Fatalf("WriteSummaryHeader: %s", err)
	}
	if err := log.AppendSummaryRow(0, []int64{1, 2, 3}); err != nil {
		t.Fatalf("AppendSummaryRow: %s", err)
	}
	got, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("reading summary: %s", err)
	}
	want := "tick,S,I,R\n0,1,2,3\n"
	if string(got) != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
