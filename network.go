package distepi

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// nodeRecordSize is the fixed-width binary node record per §6: id(8) +
// stateIndex(4) + susFactor(8) + sus(8) + infFactor(8) + inf(8) + trait(16),
// 60 bytes total with the 16-byte trait field.
const nodeRecordSize = 8 + 4 + 8 + 8 + 8 + 8 + TraitWidth

// edgeRecordSizeBase is the fixed edge record width without the optional
// locationId field: targetId(8) + targetActivity(16) + sourceId(8) +
// sourceActivity(16) + duration(8) + edgeTrait(16) + active(1) + weight(8).
const edgeRecordSizeBase = 8 + TraitWidth + 8 + TraitWidth + 8 + TraitWidth + 1 + 8
const edgeRecordSizeLocation = edgeRecordSizeBase + 8

// LoadNodePartition reads a process's local node records from a binary
// partition file (§6 "Binary node record"), returning them sorted by id as
// NewNodeArena requires.
func LoadNodePartition(path string) ([]Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "open node partition %s", path))
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var nodes []Node
	buf := make([]byte, nodeRecordSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "read node record in %s", path))
		}
		var n Node
		n.ID = binary.BigEndian.Uint64(buf[0:8])
		n.HealthState = int(binary.BigEndian.Uint32(buf[8:12]))
		n.SusceptibilityFactor = decodeFloat64(buf[12:20])
		n.Susceptibility = decodeFloat64(buf[20:28])
		n.InfectivityFactor = decodeFloat64(buf[28:36])
		n.Infectivity = decodeFloat64(buf[36:44])
		copy(n.Trait[:], buf[44:44+TraitWidth])
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// LoadEdgePartition reads a process's local edge records — those whose
// target node is owned by this process (§3 Edge invariant) — sorted by
// target id as NewEdgeArena requires. hasLocation selects the 81- or
// 89-byte record layout per §6's build-time flag.
func LoadEdgePartition(path string, hasLocation bool) ([]Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "open edge partition %s", path))
	}
	defer f.Close()

	recordSize := edgeRecordSizeBase
	if hasLocation {
		recordSize = edgeRecordSizeLocation
	}

	r := bufio.NewReader(f)
	var edges []Edge
	buf := make([]byte, recordSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, newRunError(ErrIOFailure, 0, errors.Wrapf(err, "read edge record in %s", path))
		}
		var e Edge
		off := 0
		e.TargetID = binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		copy(e.TargetActivity[:], buf[off:off+TraitWidth])
		off += TraitWidth
		e.SourceID = binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		copy(e.SourceActivity[:], buf[off:off+TraitWidth])
		off += TraitWidth
		e.Duration = decodeFloat64(buf[off : off+8])
		off += 8
		if hasLocation {
			e.LocationID = binary.BigEndian.Uint64(buf[off : off+8])
			e.HasLocation = true
			off += 8
		}
		copy(e.EdgeTrait[:], buf[off:off+TraitWidth])
		off += TraitWidth
		e.Active = buf[off] != 0
		off++
		e.Weight = decodeFloat64(buf[off : off+8])
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].TargetID != edges[j].TargetID {
			return edges[i].TargetID < edges[j].TargetID
		}
		return edges[i].SourceID < edges[j].SourceID
	})
	return edges, nil
}

func decodeFloat64(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}
