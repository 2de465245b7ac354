package main

import (
	"context"
	"fmt"

	command "github.com/goliatone/go-command"

	"github.com/goliatone/go-blog/internal/commands"
	staticcmd "github.com/goliatone/go-blog/internal/commands/static"
	"github.com/goliatone/go-blog/internal/config"
	"github.com/goliatone/go-blog/internal/generator"
	"github.com/goliatone/go-blog/internal/logging"
	"github.com/goliatone/go-blog/internal/logging/gologger"
	"github.com/goliatone/go-blog/internal/rehost"
	"github.com/goliatone/go-blog/pkg/interfaces"
)

type handlerSet struct {
	build   command.Commander[staticcmd.BuildSiteCommand]
	migrate command.Commander[staticcmd.MigrateImagesCommand]
}

type moduleResources struct {
	handlers handlerSet
	logger   interfaces.Logger
	close    func() error
}

// moduleBuilder is swapped in tests.
var moduleBuilder = buildModule

func buildModule(ctx context.Context, cfg config.Config) (*moduleResources, error) {
	provider, err := gologger.NewProvider(gologger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
		Focus:     cfg.Logging.Focus,
	})
	if err != nil {
		return nil, err
	}

	deps := generator.Dependencies{
		Provider: provider,
		Logger:   logging.GeneratorLogger(provider),
	}
	closeFn := func() error { return nil }
	if cfg.LedgerPath != "" {
		ledger, closeLedger, err := rehost.OpenSQLiteLedger(ctx, cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("open rehost ledger: %w", err)
		}
		deps.Ledger = ledger
		closeFn = closeLedger
	}

	service := generator.NewService(cfg, deps)
	logger := commands.CommandLogger(provider, "static")
	return &moduleResources{
		handlers: handlerSet{
			build:   staticcmd.NewBuildSiteHandler(service, logger),
			migrate: staticcmd.NewMigrateImagesHandler(service, logger),
		},
		logger: logging.ModuleLogger(provider, "blog"),
		close:  closeFn,
	}, nil
}
