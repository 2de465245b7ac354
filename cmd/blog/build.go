package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	staticcmd "github.com/goliatone/go-blog/internal/commands/static"
	"github.com/goliatone/go-blog/internal/generator"
)

type buildFlags struct {
	dryRun     bool
	skipRehost bool
}

func newBuildCommand(a *app) *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render every post and publish the index, manifest, feed and profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.build(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "render without writing anything")
	cmd.Flags().BoolVar(&flags.skipRehost, "skip-rehost", false, "leave remote images untouched")
	return cmd
}

func (a *app) build(ctx context.Context, out io.Writer, flags buildFlags) error {
	module, err := a.module(ctx)
	if err != nil {
		return err
	}
	defer module.close()

	return runBuild(ctx, module, out, flags)
}

func runBuild(ctx context.Context, module *moduleResources, out io.Writer, flags buildFlags) error {
	var result *generator.BuildResult
	err := module.handlers.build.Execute(ctx, staticcmd.BuildSiteCommand{
		DryRun:     flags.dryRun,
		SkipRehost: flags.skipRehost,
		ResultCallback: func(env staticcmd.ResultEnvelope) {
			result = env.Result
		},
	})
	if result != nil {
		printSummary(out, result)
	}
	return err
}

func printSummary(out io.Writer, result *generator.BuildResult) {
	mode := "build"
	if result.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "%s %s: %d articles (%d hidden), %d written, %d unchanged, %d images rehosted in %s\n",
		mode,
		result.RunID,
		result.ArticlesBuilt,
		result.ArticlesHidden,
		result.FilesWritten,
		result.FilesUnchanged,
		result.ImagesRehosted,
		result.Duration.Round(time.Millisecond),
	)
	for _, diag := range result.Diagnostics {
		if diag.Err != nil {
			fmt.Fprintf(out, "  failed %s: %v\n", diag.Path, diag.Err)
		}
	}
}
