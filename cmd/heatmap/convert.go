package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/heatmapimage/server/internal/data/zarr"
	"github.com/spf13/cobra"
)

type convertOptions struct {
	dataType  string
	chunkRows int
	chunkCols int
	compress  bool
}

func newConvertCmd() *cobra.Command {
	opts := convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert <input.json> <store>",
		Short: "Convert a JSON matrix into a matrix store",
		Long: `Convert reads a JSON matrix ({"title", "row_names", "row_descriptions",
"column_names", "values"}) and writes it as a matrix store directory that
render and the server can open. null values are stored as missing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.OutOrStdout(), args[0], args[1], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dataType, "dtype", "float32", "Stored value type: float32 or float64")
	f.IntVar(&opts.chunkRows, "chunk-rows", 256, "Rows per chunk")
	f.IntVar(&opts.chunkCols, "chunk-cols", 256, "Columns per chunk")
	f.BoolVar(&opts.compress, "compress", true, "Compress chunks with zstd")
	return cmd
}

func runConvert(out io.Writer, input, store string, opts convertOptions) error {
	mj, err := readMatrixJSON(input)
	if err != nil {
		return err
	}
	m, err := mj.Dense()
	if err != nil {
		return err
	}
	err = zarr.Write(store, m, zarr.WriteOptions{
		Title:     mj.Title,
		DataType:  opts.dataType,
		ChunkRows: opts.chunkRows,
		ChunkCols: opts.chunkCols,
		Compress:  opts.compress,
	})
	if err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	fmt.Fprintf(out, "wrote %s: %s rows x %s columns\n", store,
		humanize.Comma(int64(m.RowCount())), humanize.Comma(int64(m.ColumnCount())))
	return nil
}
