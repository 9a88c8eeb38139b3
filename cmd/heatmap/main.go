// Command heatmap renders matrix stores to heat map images and converts
// JSON matrices into stores.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Heat map image generator",
	Long: `heatmap draws a matrix as a grid of colored cells with row and column labels.

Examples:
  heatmap convert expr.json expr.zarr             # Build a matrix store
  heatmap render expr.zarr out -c 12 -r 8          # 12x8 cells, writes out.png
  heatmap render expr.zarr out.jpg -n global       # One color scale for all rows
  heatmap render expr.zarr out -f genes.grp -h red # Mark listed rows in red`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newConvertCmd())
}
