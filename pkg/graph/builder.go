package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"

	"accessgraph/pkg/accesserr"
)

// GraphSpec is the validated shape of the construct operation's input: a
// node count plus a (from, to, weight, twoway) edge list.
// Edge-level fields are validated individually below rather than through
// struct tags, since the invalid case (NaN/negative weight, out-of-range
// node) must be reported with the offending edge's index for a useful
// InvalidGraph message.
type GraphSpec struct {
	NumNodes uint32 `validate:"required"`
	Edges    []Edge
}

var validate = validator.New()

// ConstructFromEdges builds a CSR Graph from a validated edge list,
// expanding each TwoWay edge into both directions. Returns
// accesserr.ErrInvalidGraph (wrapped with the specific violation) for
// malformed input.
func ConstructFromEdges(spec GraphSpec) (*Graph, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, accesserr.Wrap(accesserr.ErrInvalidGraph, err.Error())
	}
	if spec.NumNodes == 0 {
		return nil, accesserr.Wrap(accesserr.ErrInvalidGraph, "empty node set")
	}

	type compactEdge struct {
		from, to uint32
		weight   uint32
	}

	compact := make([]compactEdge, 0, len(spec.Edges)*2)
	for i, e := range spec.Edges {
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return nil, accesserr.Wrap(accesserr.ErrInvalidGraph, fmt.Sprintf("edge %d: NaN/Inf weight", i))
		}
		if e.Weight < 0 {
			return nil, accesserr.Wrap(accesserr.ErrInvalidGraph, fmt.Sprintf("edge %d: negative weight %v", i, e.Weight))
		}
		if e.From >= spec.NumNodes || e.To >= spec.NumNodes {
			return nil, accesserr.Wrap(accesserr.ErrInvalidGraph, fmt.Sprintf("edge %d: node out of range [0,%d)", i, spec.NumNodes))
		}

		w := ScaleWeight(e.Weight)
		compact = append(compact, compactEdge{from: e.From, to: e.To, weight: w})
		if e.TwoWay {
			compact = append(compact, compactEdge{from: e.To, to: e.From, weight: w})
		}
	}

	sort.Slice(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	numNodes := spec.NumNodes
	numEdges := uint32(len(compact))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	weight := make([]uint32, numEdges)

	for _, e := range compact {
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}
	for i, e := range compact {
		head[i] = e.to
		weight[i] = e.weight
	}

	return &Graph{
		NumNodes: numNodes,
		NumEdges: numEdges,
		FirstOut: firstOut,
		Head:     head,
		Weight:   weight,
	}, nil
}
