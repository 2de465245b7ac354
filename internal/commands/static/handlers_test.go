package staticcmd

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-blog/internal/generator"
	"github.com/goliatone/go-blog/internal/rehost"
)

type fakeGeneratorService struct {
	buildFunc   func(ctx context.Context, opts generator.BuildOptions) (*generator.BuildResult, error)
	migrateFunc func(ctx context.Context, opts generator.MigrateOptions) (*rehost.MigrationResult, error)
}

func (f *fakeGeneratorService) Build(ctx context.Context, opts generator.BuildOptions) (*generator.BuildResult, error) {
	if f.buildFunc == nil {
		return &generator.BuildResult{}, nil
	}
	return f.buildFunc(ctx, opts)
}

func (f *fakeGeneratorService) MigrateImages(ctx context.Context, opts generator.MigrateOptions) (*rehost.MigrationResult, error) {
	if f.migrateFunc == nil {
		return &rehost.MigrationResult{}, nil
	}
	return f.migrateFunc(ctx, opts)
}

func TestBuildSiteHandler_Execute_Build(t *testing.T) {
	var captured generator.BuildOptions
	svc := &fakeGeneratorService{
		buildFunc: func(ctx context.Context, opts generator.BuildOptions) (*generator.BuildResult, error) {
			captured = opts
			return &generator.BuildResult{ArticlesBuilt: 3}, nil
		},
	}

	callbackInvoked := false
	cmd := BuildSiteCommand{SkipRehost: true, ResultCallback: func(env ResultEnvelope) {
		callbackInvoked = true
		if env.Result == nil || env.Result.ArticlesBuilt != 3 {
			t.Fatalf("unexpected result %#v", env.Result)
		}
		if env.Metadata["operation"] != "build" {
			t.Fatalf("expected operation build, got %v", env.Metadata["operation"])
		}
	}}

	if err := NewBuildSiteHandler(svc, nil).Execute(context.Background(), cmd); err != nil {
		t.Fatalf("execute build: %v", err)
	}
	if !captured.SkipRehost || captured.DryRun {
		t.Fatalf("unexpected options %+v", captured)
	}
	if !callbackInvoked {
		t.Fatal("expected callback to be invoked")
	}
}

func TestBuildSiteHandler_Execute_DryRun(t *testing.T) {
	var captured generator.BuildOptions
	svc := &fakeGeneratorService{
		buildFunc: func(ctx context.Context, opts generator.BuildOptions) (*generator.BuildResult, error) {
			captured = opts
			return &generator.BuildResult{DryRun: true}, nil
		},
	}

	var operation any
	cmd := BuildSiteCommand{DryRun: true, ResultCallback: func(env ResultEnvelope) {
		operation = env.Metadata["operation"]
	}}
	if err := NewBuildSiteHandler(svc, nil).Execute(context.Background(), cmd); err != nil {
		t.Fatalf("execute dry run: %v", err)
	}
	if !captured.DryRun {
		t.Fatal("expected DryRun to reach the generator")
	}
	if operation != "dry_run" {
		t.Fatalf("expected dry_run operation, got %v", operation)
	}
}

func TestBuildSiteHandler_Execute_FailureStillReportsResult(t *testing.T) {
	buildErr := errors.New("article failed")
	svc := &fakeGeneratorService{
		buildFunc: func(ctx context.Context, opts generator.BuildOptions) (*generator.BuildResult, error) {
			return &generator.BuildResult{ArticlesBuilt: 1, Errors: []error{buildErr}}, buildErr
		},
	}

	var reported *generator.BuildResult
	cmd := BuildSiteCommand{ResultCallback: func(env ResultEnvelope) { reported = env.Result }}

	err := NewBuildSiteHandler(svc, nil).Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected error")
	}
	if !goerrors.IsCategory(err, goerrors.CategoryCommand) {
		t.Fatalf("expected command category, got %v", err)
	}
	if reported == nil || len(reported.Errors) != 1 {
		t.Fatalf("expected partial result to reach the callback, got %#v", reported)
	}
}

func TestMigrateImagesHandler_NormalizesPaths(t *testing.T) {
	var captured generator.MigrateOptions
	svc := &fakeGeneratorService{
		migrateFunc: func(ctx context.Context, opts generator.MigrateOptions) (*rehost.MigrationResult, error) {
			captured = opts
			return &rehost.MigrationResult{Posts: 1, Rewritten: 1, Images: 2}, nil
		},
	}

	var result *rehost.MigrationResult
	cmd := MigrateImagesCommand{
		Paths:          []string{" notes/./post.md "},
		ResultCallback: func(r *rehost.MigrationResult) { result = r },
	}
	if err := NewMigrateImagesHandler(svc, nil).Execute(context.Background(), cmd); err != nil {
		t.Fatalf("execute migrate: %v", err)
	}
	if len(captured.Paths) != 1 || captured.Paths[0] != "notes/post.md" {
		t.Fatalf("unexpected paths %v", captured.Paths)
	}
	if result == nil || result.Images != 2 {
		t.Fatalf("unexpected migration result %#v", result)
	}
}

func TestMigrateImagesCommand_ValidateRejectsEscapingPaths(t *testing.T) {
	for _, p := range []string{"/etc/passwd", "../outside.md", "notes/../../x.md", ""} {
		cmd := MigrateImagesCommand{Paths: []string{p}}
		if err := cmd.Validate(); err == nil {
			t.Fatalf("expected %q to be rejected", p)
		}
	}
	if err := (MigrateImagesCommand{Paths: []string{"notes/post.md"}}).Validate(); err != nil {
		t.Fatalf("expected relative path to pass, got %v", err)
	}
}

func TestMigrateImagesHandler_ValidationFailureSkipsService(t *testing.T) {
	called := false
	svc := &fakeGeneratorService{
		migrateFunc: func(ctx context.Context, opts generator.MigrateOptions) (*rehost.MigrationResult, error) {
			called = true
			return nil, nil
		},
	}

	err := NewMigrateImagesHandler(svc, nil).Execute(context.Background(), MigrateImagesCommand{Paths: []string{"../x.md"}})
	if !goerrors.IsCategory(err, goerrors.CategoryValidation) {
		t.Fatalf("expected validation category, got %v", err)
	}
	if called {
		t.Fatal("service must not run for invalid commands")
	}
}
