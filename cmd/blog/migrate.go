package main

import (
	"fmt"

	"github.com/spf13/cobra"

	staticcmd "github.com/goliatone/go-blog/internal/commands/static"
	"github.com/goliatone/go-blog/internal/rehost"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [post...]",
		Short: "Download remote images into the posts tree and rewrite the posts",
		Long: `migrate runs the image rehosting step on its own. Each remote image is stored
under images_dir with a content-addressed name and every post referencing it is
rewritten to the local copy. Paths are relative to posts_path; without
arguments every post is processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := a.module(cmd.Context())
			if err != nil {
				return err
			}
			defer module.close()

			out := cmd.OutOrStdout()
			return module.handlers.migrate.Execute(cmd.Context(), staticcmd.MigrateImagesCommand{
				Paths: args,
				ResultCallback: func(result *rehost.MigrationResult) {
					fmt.Fprintf(out, "migrate: %d posts, %d rewritten, %d images, %d failed\n",
						result.Posts, result.Rewritten, result.Images, len(result.Errors))
				},
			})
		},
	}
}
