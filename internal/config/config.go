package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"github.com/k1LoW/duration"
	"gopkg.in/yaml.v2"
)

var validate *validator.Validate

// Config is the immutable configuration value injected into every component.
// Extension sets, reserved folder names and limits live here, never in
// package-level state.
type Config struct {
	Core   Core   `yaml:"core"`
	Cache  Cache  `yaml:"cache"`
	Server Server `yaml:"server"`
}

type Core struct {
	// MarkedDirName is the reserved subfolder holding copies of marked files.
	MarkedDirName string `yaml:"marked_dir" validate:"required,reservedName"`

	// TrashDirName is the reserved subfolder holding soft-deleted files.
	TrashDirName string `yaml:"trash_dir" validate:"required,reservedName"`

	// TrashCapacity caps the number of files kept in a trash area.
	TrashCapacity int `yaml:"trash_capacity" validate:"required,min=1"`

	// ImageExts lists recognized image extensions (lowercase, with dot).
	ImageExts []string `yaml:"image_extensions" validate:"required,min=1"`

	// RawExts lists the subset of ImageExts treated as camera RAW.
	RawExts []string `yaml:"raw_extensions"`

	// ExcludeGlobs filters noise files out of scans (e.g. dotfiles).
	ExcludeGlobs []string `yaml:"exclude_globs"`

	Logging LoggingConfig `yaml:"logging"`
}

type Cache struct {
	// Dir is the process-wide rendition cache directory. Empty means
	// a subdirectory of the user cache dir.
	Dir string `yaml:"dir"`

	// TTL bounds how long a rendition is served before regeneration,
	// e.g. "1h". Parsed with k1LoW/duration.
	TTL string `yaml:"ttl" validate:"required,validDuration"`

	// MaxDiskSize bounds total cache disk use, e.g. "500MB". Oldest
	// entries beyond the budget are pruned. Empty disables the budget.
	MaxDiskSize string `yaml:"max_disk_size" validate:"validSize"`

	ThumbnailWidth  int `yaml:"thumbnail_width" validate:"required,min=16"`
	ThumbnailHeight int `yaml:"thumbnail_height" validate:"required,min=16"`
	PreviewWidth    int `yaml:"preview_width" validate:"required,min=16"`
	PreviewHeight   int `yaml:"preview_height" validate:"required,min=16"`

	// Quality is the JPEG quality for persisted renditions.
	Quality int `yaml:"quality" validate:"required,min=1,max=100"`

	// DecodeTimeout bounds a single external decode, e.g. "30s".
	DecodeTimeout string `yaml:"decode_timeout" validate:"required,validDuration"`

	// DecodeConcurrency bounds simultaneous expensive decodes.
	DecodeConcurrency int `yaml:"decode_concurrency" validate:"required,min=1"`

	// RawTool and HeifTool are the external decode commands. The "{src}"
	// token is replaced with the source path; pixels are read from stdout.
	RawTool  []string `yaml:"raw_tool"`
	HeifTool []string `yaml:"heif_tool"`
}

type Server struct {
	Addr string `yaml:"addr" validate:"required"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=text json"`
}

// TTLDuration returns the parsed cache TTL.
func (c Cache) TTLDuration() time.Duration {
	d, err := duration.Parse(c.TTL)
	if err != nil {
		return time.Hour
	}
	return d
}

// DecodeTimeoutDuration returns the parsed per-decode timeout.
func (c Cache) DecodeTimeoutDuration() time.Duration {
	d, err := duration.Parse(c.DecodeTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// MaxDiskBytes returns the parsed disk budget, 0 meaning unbounded.
func (c Cache) MaxDiskBytes() int64 {
	if c.MaxDiskSize == "" {
		return 0
	}
	n, err := units.FromHumanSize(c.MaxDiskSize)
	if err != nil {
		return 0
	}
	return n
}

// IsImageExt reports whether ext (with or without dot) is a recognized
// image extension. Matching is case-insensitive.
func (c Core) IsImageExt(ext string) bool {
	return containsExt(c.ImageExts, ext)
}

// IsRawExt reports whether ext is a recognized camera RAW extension.
func (c Core) IsRawExt(ext string) bool {
	return containsExt(c.RawExts, ext)
}

// ClassifyDirName maps an extension to its classification subfolder name:
// RAW extensions collapse to "RAW", everything else becomes the uppercased
// extension without the dot.
func (c Core) ClassifyDirName(ext string) string {
	if c.IsRawExt(ext) {
		return "RAW"
	}
	return strings.ToUpper(strings.TrimPrefix(strings.ToLower(ext), "."))
}

// ReservedDirNames returns the subfolder names callers must never treat
// as content.
func (c Core) ReservedDirNames() []string {
	return []string{c.MarkedDirName, c.TrashDirName}
}

func containsExt(exts []string, ext string) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

func validDuration(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := duration.Parse(value)
	return err == nil
}

func validSize(fl validator.FieldLevel) bool {
	value := strings.ToUpper(fl.Field().String())
	re := regexp.MustCompile(`^(\d+(KB|MB|GB|TB|PB)|)$`) // empty is acceptable
	return re.MatchString(value)
}

// reservedName keeps reserved folder names from colliding with content:
// they must start with an underscore and contain no path separator.
func reservedName(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return strings.HasPrefix(value, "_") && !strings.ContainsRune(value, os.PathSeparator)
}

func initValidator() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.Split(fld.Tag.Get("yaml"), ",")[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("validDuration", validDuration)
	_ = validate.RegisterValidation("validSize", validSize)
	_ = validate.RegisterValidation("reservedName", reservedName)
}

// Parse loads the config file at path, falling back to defaults when path
// is empty. Loaded values are merged over the defaults and validated.
func Parse(path string) (Config, error) {
	initValidator()

	cfg := NewDefaultConfig()
	if path == "" {
		slog.Debug("no config file given, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()

	if err := validate.Struct(cfg); err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			return cfg, fmt.Errorf("validation error: field %s, %q is invalid", err.Field(), err.Value())
		}
	}
	slog.Debug("config file loaded", "config-file", path)
	return cfg, nil
}

// normalize lowercases extension sets and ensures the cache dir is absolute.
func (c *Config) normalize() {
	for i, e := range c.Core.ImageExts {
		c.Core.ImageExts[i] = strings.ToLower(e)
	}
	for i, e := range c.Core.RawExts {
		c.Core.RawExts[i] = strings.ToLower(e)
	}
	if c.Cache.Dir != "" {
		if abs, err := filepath.Abs(c.Cache.Dir); err == nil {
			c.Cache.Dir = abs
		}
	}
}
