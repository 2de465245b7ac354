// Package config loads the build configuration. A single document (JSON,
// TOML or YAML) is read with viper, checked against an embedded JSON schema,
// overlaid with BLOG_* environment variables and CLI overrides, and finally
// validated semantically. The resulting Config is passed by value and never
// mutated during a build.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/goliatone/go-blog/internal/article"
	schemavalidation "github.com/goliatone/go-blog/internal/validation"
)

// EnvPrefix is the prefix of environment overrides, e.g. BLOG_SITE_URL.
const EnvPrefix = "BLOG"

//go:embed schema.json
var schemaDocument []byte

var (
	ErrConfigRead    = errors.New("blog config: unable to read config file")
	ErrConfigSchema  = errors.New("blog config: document does not match schema")
	ErrConfigDecode  = errors.New("blog config: unable to decode settings")
	ErrConfigInvalid = errors.New("blog config: invalid settings")
)

// Config is the immutable configuration of one build.
type Config struct {
	PostsPath       string `mapstructure:"posts_path"`
	OutputPath      string `mapstructure:"output_path"`
	ArticleFormat   string `mapstructure:"article_format"`
	SiteName        string `mapstructure:"site_name"`
	SiteURL         string `mapstructure:"site_url"`
	SiteDescription string `mapstructure:"site_description"`
	SiteLanguage    string `mapstructure:"site_language"`
	DefaultAuthor   string `mapstructure:"default_author"`
	WebMaster       string `mapstructure:"web_master"`
	ProfilePath     string `mapstructure:"profile_path"`

	GithubRepo        string `mapstructure:"github_repo"`
	GithubRepoID      string `mapstructure:"github_repo_id"`
	GiscusCategory    string `mapstructure:"giscus_category"`
	GiscusCategoryID  string `mapstructure:"giscus_category_id"`
	GoogleAnalyticsID string `mapstructure:"google_analytics_id"`

	TemplatesPath  string `mapstructure:"templates_path"`
	ComponentsPath string `mapstructure:"components_path"`
	HiddenMode     string `mapstructure:"hidden_mode"`

	RehostImages     bool          `mapstructure:"rehost_images"`
	ImagesDir        string        `mapstructure:"images_dir"`
	LedgerPath       string        `mapstructure:"ledger_path"`
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	DownloadAttempts int           `mapstructure:"download_attempts"`

	Workers      int           `mapstructure:"workers"`
	FeedItems    int           `mapstructure:"feed_items"`
	ProfileItems int           `mapstructure:"profile_items"`
	BuildTimeout time.Duration `mapstructure:"build_timeout"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig captures go-logger options.
type LoggingConfig struct {
	Level     string   `mapstructure:"level"`
	Format    string   `mapstructure:"format"`
	AddSource bool     `mapstructure:"add_source"`
	Focus     []string `mapstructure:"focus"`
}

// LoadOptions selects the config document and the overrides applied on top.
type LoadOptions struct {
	// File is optional; when empty only defaults, env and overrides apply.
	File string
	// Overrides are keyed by config key, e.g. "posts_path". Empty strings
	// are ignored so unset CLI flags do not clobber the document.
	Overrides map[string]any
}

var defaults = map[string]any{
	"article_format":     "md",
	"site_language":      "zh-CN",
	"giscus_category":    "Announcements",
	"hidden_mode":        string(article.HiddenByTag),
	"rehost_images":      true,
	"images_dir":         "images",
	"download_timeout":   "30s",
	"download_attempts":  1,
	"workers":            0,
	"feed_items":         20,
	"profile_items":      5,
	"build_timeout":      "10m",
	"logging.level":      "info",
	"logging.format":     "console",
	"logging.add_source": false,
}

// stringKeys are registered so AutomaticEnv can resolve them without a file.
var stringKeys = []string{
	"posts_path", "output_path", "site_name", "site_url", "site_description",
	"default_author", "web_master", "profile_path", "github_repo",
	"github_repo_id", "giscus_category_id", "google_analytics_id",
	"templates_path", "components_path", "ledger_path",
}

// Load resolves the configuration and validates it.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	if file := strings.TrimSpace(opts.File); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfigRead, file, err)
		}
		if err := ValidateDocument(file, v.AllSettings()); err != nil {
			return Config{}, err
		}
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range stringKeys {
		v.SetDefault(key, "")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range opts.Overrides {
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigDecode, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateDocument checks a raw settings map read from source against the
// embedded schema.
func ValidateDocument(source string, document map[string]any) error {
	schema, err := schemavalidation.Compile("config.schema.json", schemaDocument)
	if err != nil {
		return err
	}
	if err := schemavalidation.ValidateDocument(schema, source, document); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigSchema, err)
	}
	return nil
}

// Validate performs semantic checks the schema cannot express.
func (cfg Config) Validate() error {
	err := validation.ValidateStruct(&cfg,
		validation.Field(&cfg.PostsPath, validation.Required),
		validation.Field(&cfg.OutputPath, validation.Required),
		validation.Field(&cfg.ArticleFormat, validation.Required, is.Alphanumeric),
		validation.Field(&cfg.SiteName, validation.Required),
		validation.Field(&cfg.SiteURL, validation.Required, is.URL),
		validation.Field(&cfg.HiddenMode, validation.In(string(article.HiddenByTag), string(article.HiddenByDate))),
		validation.Field(&cfg.ImagesDir, validation.Required, validation.By(relativeDir)),
		validation.Field(&cfg.DownloadAttempts, validation.Min(1)),
		validation.Field(&cfg.Workers, validation.Min(0)),
		validation.Field(&cfg.FeedItems, validation.Min(1)),
		validation.Field(&cfg.ProfileItems, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if err := validation.Validate(cfg.Logging.Format, validation.In("", "console", "json", "pretty")); err != nil {
		return fmt.Errorf("%w: logging.format: %v", ErrConfigInvalid, err)
	}
	return nil
}

func relativeDir(value any) error {
	dir, _ := value.(string)
	if strings.HasPrefix(dir, "/") || strings.Contains(dir, "..") {
		return errors.New("must be a relative directory inside the posts root")
	}
	return nil
}

// Hidden returns the visibility rule.
func (cfg Config) Hidden() article.HiddenMode {
	if cfg.HiddenMode == string(article.HiddenByDate) {
		return article.HiddenByDate
	}
	return article.HiddenByTag
}

// WorkerCount returns the effective per-article concurrency.
func (cfg Config) WorkerCount() int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.NumCPU()
}

// CommentsEnabled reports whether every giscus identifier is set.
func (cfg Config) CommentsEnabled() bool {
	return cfg.GithubRepo != "" && cfg.GithubRepoID != "" &&
		cfg.GiscusCategory != "" && cfg.GiscusCategoryID != ""
}

// FeedURL is the canonical address of rss.xml.
func (cfg Config) FeedURL() string {
	return cfg.BaseURL() + "/rss.xml"
}

// BaseURL is SiteURL without a trailing slash.
func (cfg Config) BaseURL() string {
	return strings.TrimRight(cfg.SiteURL, "/")
}
