package staticcmd

import (
	"context"
	"path"
	"strings"

	"github.com/goliatone/go-blog/internal/commands"
	"github.com/goliatone/go-blog/internal/generator"
	"github.com/goliatone/go-blog/internal/logging"
	"github.com/goliatone/go-blog/pkg/interfaces"
)

// BuildSiteHandler runs generator builds through the shared command
// handler.
type BuildSiteHandler struct {
	inner *commands.Handler[BuildSiteCommand]
}

// NewBuildSiteHandler constructs a handler wired to service.
func NewBuildSiteHandler(service generator.Service, logger interfaces.Logger, opts ...commands.HandlerOption[BuildSiteCommand]) *BuildSiteHandler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = logging.NoOp()
	}

	exec := func(ctx context.Context, msg BuildSiteCommand) error {
		result, err := service.Build(ctx, generator.BuildOptions{
			DryRun:     msg.DryRun,
			SkipRehost: msg.SkipRehost,
		})
		operation := "build"
		if msg.DryRun {
			operation = "dry_run"
		}
		invokeCallback(msg.ResultCallback, ResultEnvelope{
			Result: result,
			Metadata: map[string]any{
				"operation": operation,
			},
		})
		return err
	}

	handlerOpts := []commands.HandlerOption[BuildSiteCommand]{
		commands.WithLogger[BuildSiteCommand](baseLogger),
		commands.WithOperation[BuildSiteCommand]("static.build"),
		// Builds are bounded by build_timeout inside the generator.
		commands.WithTimeout[BuildSiteCommand](0),
		commands.WithMessageFields[BuildSiteCommand](func(msg BuildSiteCommand) map[string]any {
			fields := map[string]any{}
			if msg.DryRun {
				fields["dry_run"] = true
			}
			if msg.SkipRehost {
				fields["skip_rehost"] = true
			}
			return fields
		}),
		commands.WithTelemetry(commands.DefaultTelemetry[BuildSiteCommand](baseLogger)),
	}
	handlerOpts = append(handlerOpts, opts...)

	return &BuildSiteHandler{
		inner: commands.NewHandler(exec, handlerOpts...),
	}
}

// Execute satisfies command.Commander[BuildSiteCommand].
func (h *BuildSiteHandler) Execute(ctx context.Context, msg BuildSiteCommand) error {
	return h.inner.Execute(ctx, msg)
}

// MigrateImagesHandler runs the standalone rehost step.
type MigrateImagesHandler struct {
	inner *commands.Handler[MigrateImagesCommand]
}

// NewMigrateImagesHandler constructs a handler wired to service.
func NewMigrateImagesHandler(service generator.Service, logger interfaces.Logger, opts ...commands.HandlerOption[MigrateImagesCommand]) *MigrateImagesHandler {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = logging.NoOp()
	}

	exec := func(ctx context.Context, msg MigrateImagesCommand) error {
		result, err := service.MigrateImages(ctx, generator.MigrateOptions{
			Paths: normalizePaths(msg.Paths),
		})
		if msg.ResultCallback != nil && result != nil {
			msg.ResultCallback(result)
		}
		return err
	}

	handlerOpts := []commands.HandlerOption[MigrateImagesCommand]{
		commands.WithLogger[MigrateImagesCommand](baseLogger),
		commands.WithOperation[MigrateImagesCommand]("static.migrate_images"),
		commands.WithTimeout[MigrateImagesCommand](0),
		commands.WithMessageFields[MigrateImagesCommand](func(msg MigrateImagesCommand) map[string]any {
			if len(msg.Paths) == 0 {
				return nil
			}
			return map[string]any{"paths": len(msg.Paths)}
		}),
		commands.WithTelemetry(commands.DefaultTelemetry[MigrateImagesCommand](baseLogger)),
	}
	handlerOpts = append(handlerOpts, opts...)

	return &MigrateImagesHandler{
		inner: commands.NewHandler(exec, handlerOpts...),
	}
}

// Execute satisfies command.Commander[MigrateImagesCommand].
func (h *MigrateImagesHandler) Execute(ctx context.Context, msg MigrateImagesCommand) error {
	return h.inner.Execute(ctx, msg)
}

func invokeCallback(cb ResultCallback, envelope ResultEnvelope) {
	if cb == nil {
		return
	}
	cb(envelope)
}

func normalizePaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, path.Clean(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")))
	}
	return out
}
