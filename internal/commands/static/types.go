package staticcmd

import (
	"errors"
	"path"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-blog/internal/generator"
	"github.com/goliatone/go-blog/internal/rehost"
)

const (
	buildSiteMessageType     = "blog.static.build"
	migrateImagesMessageType = "blog.static.migrate_images"
)

// ResultCallback receives build results. It is optional and invoked
// synchronously from the handler, also when the build failed.
type ResultCallback func(ResultEnvelope)

// ResultEnvelope captures the outcome of a build.
type ResultEnvelope struct {
	Result   *generator.BuildResult
	Metadata map[string]any
}

// BuildSiteCommand runs a full build.
type BuildSiteCommand struct {
	DryRun         bool           `json:"dry_run,omitempty"`
	SkipRehost     bool           `json:"skip_rehost,omitempty"`
	ResultCallback ResultCallback `json:"-"`
}

// Type implements command.Message.
func (BuildSiteCommand) Type() string { return buildSiteMessageType }

// Validate satisfies command.Message; every flag combination is allowed.
func (BuildSiteCommand) Validate() error { return nil }

// MigrationCallback receives the outcome of a rehost run.
type MigrationCallback func(*rehost.MigrationResult)

// MigrateImagesCommand rehosts remote images without rendering.
type MigrateImagesCommand struct {
	// Paths are posts relative to the posts root; empty selects all.
	Paths          []string          `json:"paths,omitempty"`
	ResultCallback MigrationCallback `json:"-"`
}

// Type implements command.Message.
func (MigrateImagesCommand) Type() string { return migrateImagesMessageType }

// Validate ensures every path stays inside the posts root.
func (m MigrateImagesCommand) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Paths, validation.Each(validation.Required, validation.By(postPath))),
	)
}

func postPath(value any) error {
	p, _ := value.(string)
	p = strings.TrimSpace(p)
	if path.IsAbs(p) || strings.HasPrefix(p, "\\") {
		return errors.New("must be relative to the posts root")
	}
	if cleaned := path.Clean(p); cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return errors.New("must not leave the posts root")
	}
	return nil
}
