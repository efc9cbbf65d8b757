package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ballast-dev/ballast/pkg/chunker"
	"github.com/ballast-dev/ballast/pkg/config"
	"github.com/ballast-dev/ballast/pkg/digest"
	"github.com/ballast-dev/ballast/pkg/executor"
	"github.com/ballast-dev/ballast/pkg/observability"
)

// ErrNoInput is returned when neither file paths nor a log file are given.
var ErrNoInput = errors.New("no input: pass file paths or --log")

// RunOptions holds the run command's flag values.
type RunOptions struct {
	ConfigPath string
	LogPath    string
	Kind       string
	MaxChunks  int
	Timeout    time.Duration
	Stream     bool
	Debug      bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run an operation over files or a log within resource bounds",
		Long: `Run the built-in digest operation over a file set or a log file.

Large file sets are partitioned into priority-ordered chunks (core source
first, vendored code last); large logs are windowed by lines. Each chunk is
processed under the configured breaker, admission, memory, and CPU bounds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.LogPath == "" {
				return ErrNoInput
			}

			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}

			providers, err := initObservability(cfg, observability.ModeCLI, opts.Debug)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			core, err := buildStack(cfg, providers)
			if err != nil {
				return err
			}

			return runDigest(cobraCmd.Context(), core.exec, args, opts, cobraCmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&opts.LogPath, "log", "", "Process a log file instead of a file set")
	cmd.Flags().StringVar(&opts.Kind, "kind", "analyze", "Operation kind: analyze or quality")
	cmd.Flags().IntVar(&opts.MaxChunks, "max-chunks", 0, "Cap on the number of chunks (0 = config default)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Operation timeout (0 = config default)")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "Stream the response incrementally")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

// runDigest executes the request and writes the response to writer.
func runDigest(ctx context.Context, exec *executor.Executor, paths []string, opts RunOptions, writer io.Writer) error {
	req := executor.Request{
		Kind:      chunker.OpKind(opts.Kind),
		Paths:     paths,
		Op:        digest.Files,
		LogPath:   opts.LogPath,
		LogOp:     digest.LogWindow,
		MaxChunks: opts.MaxChunks,
		Timeout:   opts.Timeout,
	}

	if opts.Stream {
		for chunk, err := range exec.ExecuteStream(ctx, req) {
			if err != nil {
				return err
			}

			fmt.Fprint(writer, chunk)
		}

		return nil
	}

	result, err := exec.Execute(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprint(writer, result.Content)

	if result.Truncated {
		fmt.Fprintf(os.Stderr, "note: plan truncated at %d chunks, lower-priority files skipped\n", result.Chunks)
	}

	return nil
}
