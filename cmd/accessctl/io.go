package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// graphSpecFile is the JSON shape `build` reads: a plain edge list plus one
// weight vector per graphno, since graph.ConstructFromEdges / facade.Construct
// take exactly this shape and input parsing (OSM/shapefile/CSV) is out of
// scope for the core.
type graphSpecFile struct {
	NodeIDs []int64 `json:"node_ids"`
	Edges   []struct {
		From   uint32 `json:"from"`
		To     uint32 `json:"to"`
		TwoWay bool   `json:"twoway"`
	} `json:"edges"`
	Weights [][]float64 `json:"weights"`
}

// attrSpecFile is the JSON shape `aggregate` reads to populate an attribute
// category before aggregating.
type attrSpecFile struct {
	NodeIDs []int64     `json:"node_ids"`
	Values  [][]float64 `json:"values"`
}

func readJSON[T any](path string) (T, error) {
	var out T
	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
