package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ballast-dev/ballast/pkg/chunker"
	"github.com/ballast-dev/ballast/pkg/config"
	"github.com/ballast-dev/ballast/pkg/safeconv"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	var (
		configPath string
		kind       string
		maxChunks  int
	)

	cmd := &cobra.Command{
		Use:   "plan [paths...]",
		Short: "Show the chunk plan for a file set without running anything",
		Args:  cobra.MinimumNArgs(1),
		Long: `Partition a file set into priority-ordered chunks and print the plan.

Chunks are emitted most important first: core source, then configuration,
then tests and documentation, then vendored and generated code.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			planner := chunker.NewPlanner(chunker.Config{
				MaxFilesPerChunk: cfg.Chunker.MaxFilesPerChunk,
				QualityMaxFiles:  cfg.Chunker.QualityMaxFiles,
				MaxChunkBytes:    cfg.Chunker.MaxChunkBytes(),
			}, nil, nil)

			if maxChunks <= 0 {
				maxChunks = cfg.Executor.MaxChunks
			}

			plan, truncated := planner.PlanBatch(args, chunker.OpKind(kind), maxChunks)

			printPlan(cobraCmd.OutOrStdout(), plan, truncated)

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&kind, "kind", "analyze", "Operation kind: analyze or quality")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "Cap on the number of chunks (0 = config default)")

	return cmd
}

func printPlan(writer io.Writer, plan []chunker.Chunk, truncated bool) {
	for _, chunk := range plan {
		fmt.Fprintf(writer, "chunk %d/%d: %s, %d files, %s\n",
			chunk.ID, chunk.TotalChunks, chunk.Description,
			len(chunk.Members), humanize.Bytes(safeconv.MustInt64ToUint64(chunk.SizeBytes)))

		for _, member := range chunk.Members {
			fmt.Fprintf(writer, "  %s\n", member)
		}
	}

	if truncated {
		fmt.Fprintln(writer, "note: plan truncated, lower-priority files skipped")
	}
}
