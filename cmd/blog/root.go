package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-blog/internal/config"
)

type rootOptions struct {
	configFile string
	posts      string
	output     string
	templates  string
	logLevel   string
}

type app struct {
	opts rootOptions
	cfg  config.Config
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "blog",
		Short:         "Static blog generator",
		Long:          "blog renders a tree of markdown posts into HTML pages, an index, a JSON manifest, an RSS feed and a profile README.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.configFile, "config", "c", "", "config file (json, toml or yaml)")
	flags.StringVar(&a.opts.posts, "posts", "", "posts directory, overrides posts_path")
	flags.StringVar(&a.opts.output, "output", "", "output directory, overrides output_path")
	flags.StringVar(&a.opts.templates, "templates", "", "templates directory, overrides templates_path")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "log level, overrides logging.level")

	root.AddCommand(
		newBuildCommand(a),
		newMigrateCommand(a),
		newServeCommand(a),
	)
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(config.LoadOptions{
		File: a.opts.configFile,
		Overrides: map[string]any{
			"posts_path":     a.opts.posts,
			"output_path":    a.opts.output,
			"templates_path": a.opts.templates,
			"logging.level":  a.opts.logLevel,
		},
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) module(ctx context.Context) (*moduleResources, error) {
	return moduleBuilder(ctx, a.cfg)
}
