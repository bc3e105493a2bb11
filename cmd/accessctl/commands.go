package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"accessgraph/pkg/accessibility"
	"accessgraph/pkg/config"
	"accessgraph/pkg/facade"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func openEngine() (*facade.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return facade.NewEngine(cfg.NumWorkers), nil
}

func loadCheckpoint(e *facade.Engine, path string) (facade.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return facade.Handle{}, fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	defer f.Close()
	return e.LoadCheckpoint(f)
}

func parseInt64List(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var v int64
		if _, err := fmt.Sscanf(part, "%d", &v); err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func newBuildCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run CH preprocessing over a JSON edge list and write a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readJSON[graphSpecFile](input)
			if err != nil {
				return err
			}

			edges := make([]facade.EdgeSpec, len(spec.Edges))
			for i, e := range spec.Edges {
				edges[i] = facade.EdgeSpec{From: e.From, To: e.To, TwoWay: e.TwoWay}
			}

			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			h, err := e.Construct(cmd.Context(), uint32(len(spec.NodeIDs)), spec.NodeIDs, edges, spec.Weights)
			if err != nil {
				return err
			}

			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			defer out.Close()
			if err := e.SaveCheckpoint(h, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "built %d nodes, %d graphs -> %s\n", len(spec.NodeIDs), len(spec.Weights), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "path to a JSON graph spec (node_ids, edges, weights)")
	cmd.Flags().StringVar(&output, "output", "graph.chk", "checkpoint output path")
	cmd.MarkFlagRequired("input")
	return cmd
}

func newPrecomputeRangeCmd() *cobra.Command {
	var checkpoint string
	var radius float64
	cmd := &cobra.Command{
		Use:   "precompute-range",
		Short: "Fill the range cache at a fixed radius and report the radius used",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			h, err := loadCheckpoint(e, checkpoint)
			if err != nil {
				return err
			}
			if err := e.PrecomputeRange(cmd.Context(), h, radius); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "range cache filled at radius %.3f\n", radius)
			return nil
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "graph.chk", "checkpoint file produced by build")
	cmd.Flags().Float64Var(&radius, "radius", 0, "cache radius, in caller cost units")
	return cmd
}

func newRangeCmd() *cobra.Command {
	var checkpoint, sources string
	var graphno int
	var radius float64
	cmd := &cobra.Command{
		Use:   "range",
		Short: "List every node within radius of each source",
		RunE: func(cmd *cobra.Command, args []string) error {
			srcIDs, err := parseInt64List(sources)
			if err != nil {
				return err
			}
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			h, err := loadCheckpoint(e, checkpoint)
			if err != nil {
				return err
			}
			result, err := e.Range(cmd.Context(), h, graphno, srcIDs, radius)
			if err != nil {
				return err
			}
			return writeJSON(result)
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "graph.chk", "checkpoint file produced by build")
	cmd.Flags().IntVar(&graphno, "graphno", 0, "which weight-vector graph to query")
	cmd.Flags().StringVar(&sources, "sources", "", "comma-separated external node IDs")
	cmd.Flags().Float64Var(&radius, "radius", 0, "search radius, in caller cost units")
	cmd.MarkFlagRequired("sources")
	return cmd
}

func newRouteCmd() *cobra.Command {
	var checkpoint string
	var graphno int
	var src, tgt int64
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Shortest path between two external node IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			h, err := loadCheckpoint(e, checkpoint)
			if err != nil {
				return err
			}
			path, dist, err := e.Route(cmd.Context(), h, graphno, src, tgt)
			if err != nil {
				return err
			}
			return writeJSON(map[string]any{"path": path, "distance": dist})
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "graph.chk", "checkpoint file produced by build")
	cmd.Flags().IntVar(&graphno, "graphno", 0, "which weight-vector graph to query")
	cmd.Flags().Int64Var(&src, "src", 0, "source external node ID")
	cmd.Flags().Int64Var(&tgt, "tgt", 0, "target external node ID")
	return cmd
}

func newDistanceCmd() *cobra.Command {
	var checkpoint string
	var graphno int
	var src, tgt int64
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Shortest-path cost between two external node IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			h, err := loadCheckpoint(e, checkpoint)
			if err != nil {
				return err
			}
			dist, err := e.Distance(cmd.Context(), h, graphno, src, tgt)
			if err != nil {
				return err
			}
			return writeJSON(map[string]any{"distance": dist})
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "graph.chk", "checkpoint file produced by build")
	cmd.Flags().IntVar(&graphno, "graphno", 0, "which weight-vector graph to query")
	cmd.Flags().Int64Var(&src, "src", 0, "source external node ID")
	cmd.Flags().Int64Var(&tgt, "tgt", 0, "target external node ID")
	return cmd
}

// newPOICmd registers a POI category and immediately runs a k-nearest
// query in one process, since checkpoints don't persist category
// registrations across invocations — only the contracted graph itself
// survives a save/load round trip.
func newPOICmd() *cobra.Command {
	var checkpoint, category, poiNodes string
	var graphno, k int
	var maxDist, maxRadius float64
	var maxItems int
	var src int64
	cmd := &cobra.Command{
		Use:   "poi",
		Short: "Register a POI category and find its k nearest to a source node",
		RunE: func(cmd *cobra.Command, args []string) error {
			poiIDs, err := parseInt64List(poiNodes)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-items") {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				maxItems = cfg.DefaultMaxItemsPerBucket
			}
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			h, err := loadCheckpoint(e, checkpoint)
			if err != nil {
				return err
			}
			if err := e.InitCategoryPOI(h, maxDist, maxItems, category, poiIDs); err != nil {
				return err
			}
			result, err := e.FindNearestPOIs(cmd.Context(), h, graphno, src, maxRadius, k, category)
			if err != nil {
				return err
			}
			return writeJSON(result)
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "graph.chk", "checkpoint file produced by build")
	cmd.Flags().IntVar(&graphno, "graphno", 0, "which weight-vector graph to query")
	cmd.Flags().StringVar(&category, "category", "", "POI category name")
	cmd.Flags().StringVar(&poiNodes, "poi-nodes", "", "comma-separated external node IDs holding POIs of this category")
	cmd.Flags().Float64Var(&maxDist, "max-dist", 0, "max distance a POI can be registered at")
	cmd.Flags().IntVar(&maxItems, "max-items", 20, "max POIs retained per bucket node (unset: ACCESSGRAPH_MAX_ITEMS_PER_BUCKET)")
	cmd.Flags().Int64Var(&src, "src", 0, "query source external node ID")
	cmd.Flags().Float64Var(&maxRadius, "radius", 0, "query search radius")
	cmd.Flags().IntVar(&k, "k", 1, "number of nearest POIs to return")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("poi-nodes")
	return cmd
}

// newAggregateCmd registers an attribute category from a JSON file and
// runs aggregate_all in one process, for the same persistence reason as
// newPOICmd.
func newAggregateCmd() *cobra.Command {
	var checkpoint, category, valuesFile, aggtyp, decay string
	var graphno int
	var radius float64
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Register an attribute category and compute its accessibility aggregate for every node",
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := readJSON[attrSpecFile](valuesFile)
			if err != nil {
				return err
			}
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			h, err := loadCheckpoint(e, checkpoint)
			if err != nil {
				return err
			}
			if err := e.InitAccVar(h, category, attrs.NodeIDs, attrs.Values); err != nil {
				return err
			}
			result, err := e.AggregateAll(cmd.Context(), h, graphno, radius, category, accessibility.Aggregation(aggtyp), accessibility.Decay(decay))
			if err != nil {
				return err
			}
			if result == nil {
				return fmt.Errorf("empty result: unknown category %q, aggregation %q, or decay %q", category, aggtyp, decay)
			}
			return writeJSON(result)
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "graph.chk", "checkpoint file produced by build")
	cmd.Flags().IntVar(&graphno, "graphno", 0, "which weight-vector graph to query")
	cmd.Flags().StringVar(&category, "category", "", "attribute category name")
	cmd.Flags().StringVar(&valuesFile, "values-file", "", "path to a JSON {node_ids, values} file")
	cmd.Flags().Float64Var(&radius, "radius", 0, "aggregation radius, in caller cost units")
	cmd.Flags().StringVar(&aggtyp, "aggtyp", "sum", "sum|mean|min|25pct|median|75pct|max|std|count")
	cmd.Flags().StringVar(&decay, "decay", "flat", "exp|linear|flat")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("values-file")
	return cmd
}
