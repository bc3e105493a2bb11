package facade

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/google/uuid"

	"accessgraph/pkg/accesserr"
	"accessgraph/pkg/accessibility"
	"accessgraph/pkg/graph"
	"accessgraph/pkg/poi"
	"accessgraph/pkg/query"
)

// checkpointGraph is the gob-encodable shape of one graphno's contracted
// overlay — node ranks, full adjacency with direction flags (Fwd/Bwd), and
// the shortcut midpoint table.
type checkpointGraph struct {
	Rank         []uint32
	FwdFirstOut  []uint32
	FwdHead      []uint32
	FwdWeight    []uint32
	FwdMiddle    []int32
	BwdFirstOut  []uint32
	BwdHead      []uint32
	BwdWeight    []uint32
	BwdMiddle    []int32
	OrigFirstOut []uint32
	OrigHead     []uint32
	OrigWeight   []uint32
}

// checkpoint is the full gob-encodable shape of one session: the SCALE it
// was built under, the external-ID bijection, and every graphno's overlay.
type checkpoint struct {
	Scale    uint32
	NumNodes uint32
	ExtIDs   []int64
	Graphs   []checkpointGraph
}

func toCheckpointGraph(chg *graph.CHGraph) checkpointGraph {
	return checkpointGraph{
		Rank:         chg.Rank,
		FwdFirstOut:  chg.FwdFirstOut,
		FwdHead:      chg.FwdHead,
		FwdWeight:    chg.FwdWeight,
		FwdMiddle:    chg.FwdMiddle,
		BwdFirstOut:  chg.BwdFirstOut,
		BwdHead:      chg.BwdHead,
		BwdWeight:    chg.BwdWeight,
		BwdMiddle:    chg.BwdMiddle,
		OrigFirstOut: chg.OrigFirstOut,
		OrigHead:     chg.OrigHead,
		OrigWeight:   chg.OrigWeight,
	}
}

func fromCheckpointGraph(numNodes uint32, cg checkpointGraph) *graph.CHGraph {
	return &graph.CHGraph{
		NumNodes:     numNodes,
		Rank:         cg.Rank,
		FwdFirstOut:  cg.FwdFirstOut,
		FwdHead:      cg.FwdHead,
		FwdWeight:    cg.FwdWeight,
		FwdMiddle:    cg.FwdMiddle,
		BwdFirstOut:  cg.BwdFirstOut,
		BwdHead:      cg.BwdHead,
		BwdWeight:    cg.BwdWeight,
		BwdMiddle:    cg.BwdMiddle,
		OrigFirstOut: cg.OrigFirstOut,
		OrigHead:     cg.OrigHead,
		OrigWeight:   cg.OrigWeight,
	}
}

// SaveCheckpoint gob-encodes h's contracted graphs and external-ID mapping
// to w, skipping CH preprocessing on the next LoadCheckpoint. POI/attribute
// registrations and the range cache are not part of the checkpoint: a
// loaded session starts with none, so categories must be registered again
// (InitCategoryPOI/InitAccVar) and PrecomputeRange run again after load.
func (e *Engine) SaveCheckpoint(h Handle, w io.Writer) error {
	sess, err := e.session(h)
	if err != nil {
		return err
	}

	cp := checkpoint{
		Scale:    graph.Scale,
		NumNodes: sess.numNodes,
		ExtIDs:   sess.intToExt,
		Graphs:   make([]checkpointGraph, len(sess.graphs)),
	}
	for i, gi := range sess.graphs {
		cp.Graphs[i] = toCheckpointGraph(gi.chg)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// LoadCheckpoint decodes a checkpoint written by SaveCheckpoint into a new
// session, returning its handle. Rejects a checkpoint written under a
// different graph.Scale — the fixed-point unit it must be interpreted
// under is part of the round-trip contract.
func (e *Engine) LoadCheckpoint(r io.Reader) (Handle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Handle{}, err
	}

	var cp checkpoint
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cp); err != nil {
		return Handle{}, err
	}
	if cp.Scale != graph.Scale {
		return Handle{}, accesserr.Wrapf(accesserr.ErrInvalidGraph, "checkpoint scale %d != current scale %d", cp.Scale, graph.Scale)
	}

	extToInt := make(map[int64]uint32, len(cp.ExtIDs))
	for i, id := range cp.ExtIDs {
		extToInt[id] = uint32(i)
	}

	graphs := make([]*graphInstance, len(cp.Graphs))
	for i, cg := range cp.Graphs {
		chg := fromCheckpointGraph(cp.NumNodes, cg)
		graphs[i] = &graphInstance{
			chg:      chg,
			eng:      query.NewEngine(chg),
			poiBuilt: make(map[string]*poi.Category),
		}
	}

	h := Handle(uuid.New())
	sess := &session{
		numNodes: cp.NumNodes,
		extToInt: extToInt,
		intToExt: cp.ExtIDs,
		graphs:   graphs,
		poiRegs:  make(map[string]poiRegistration),
		attrRegs: make(map[string]*accessibility.AttributeStore),
	}

	e.mu.Lock()
	e.sessions[h] = sess
	e.mu.Unlock()
	return h, nil
}
