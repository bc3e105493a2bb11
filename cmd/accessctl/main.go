package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "accessctl",
		Short: "Build and query a contraction-hierarchy accessibility graph",
	}

	root.AddCommand(
		newBuildCmd(),
		newPrecomputeRangeCmd(),
		newRangeCmd(),
		newRouteCmd(),
		newDistanceCmd(),
		newPOICmd(),
		newAggregateCmd(),
	)
	return root
}
