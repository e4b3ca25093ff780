// Package config loads and validates the converter configuration from
// defaults, an optional YAML file and FLYSIGHT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "flysight2csv/internal/errors"
)

// Default glob patterns for locating recording session files.
var DefaultGlobPatterns = []string{"**/*TRACK.CSV", "**/*SENSOR.CSV"}

// Config represents the complete converter configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Finder   FinderConfig   `yaml:"finder" envconfig:"FINDER"`
	Parser   ParserConfig   `yaml:"parser" envconfig:"PARSER"`
	Output   OutputConfig   `yaml:"output" envconfig:"OUTPUT"`
	Reformat ReformatConfig `yaml:"reformat" envconfig:"REFORMAT"`

	// Workers bounds the number of directories processed concurrently.
	Workers int `yaml:"workers" envconfig:"WORKERS" default:"4" validate:"min=1"`

	// ContinueOnError keeps the invocation going when a file fails for
	// non-format reasons (unreadable, unwritable).
	ContinueOnError bool `yaml:"continue_on_error" envconfig:"CONTINUE_ON_ERROR"`

	// StopOnWarning escalates warnings to fatal errors.
	StopOnWarning bool `yaml:"stop_on_warning" envconfig:"STOP_ON_WARNING"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"text" validate:"oneof=text json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/flysight2csv.log"`
}

// FinderConfig controls source file discovery and the info display mode.
type FinderConfig struct {
	// Paths are the files or directories to search. Set from CLI arguments,
	// not from the environment.
	Paths []string `yaml:"paths" envconfig:"PATHS"`

	// GlobPatterns match session files under the given paths. A leading
	// "**/" matches at any depth.
	GlobPatterns []string `yaml:"glob_patterns" envconfig:"GLOB_PATTERNS"`

	// InfoType selects what is printed per discovered file.
	InfoType string `yaml:"info_type" envconfig:"INFO_TYPE" default:"path" validate:"oneof=none path meta"`
}

// ParserConfig contains the format-error tolerance policy and time options.
type ParserConfig struct {
	// MetadataOnly stops parsing after the first data row per sensor.
	MetadataOnly bool `yaml:"metadata_only" envconfig:"METADATA_ONLY"`

	// ManualOffset, when set, is the absolute RFC 3339 instant corresponding
	// to device time zero. It overrides anchor derivation entirely.
	ManualOffset string `yaml:"manual_offset" envconfig:"MANUAL_OFFSET"`

	ContinueOnFormatError bool `yaml:"continue_on_format_error" envconfig:"CONTINUE_ON_FORMAT_ERROR"`
	IgnoreAllFormatErrors bool `yaml:"ignore_all_format_errors" envconfig:"IGNORE_ALL_FORMAT_ERRORS"`

	// IgnoredFormatErrors suppresses format errors whose rendered message
	// starts with one of these prefixes.
	IgnoredFormatErrors []string `yaml:"ignored_format_errors" envconfig:"IGNORED_FORMAT_ERRORS"`

	// DisplayPathLevels is the number of trailing path components shown in
	// diagnostics and the file_path metadata field. 0 keeps full paths.
	DisplayPathLevels int `yaml:"display_path_levels" envconfig:"DISPLAY_PATH_LEVELS" default:"3" validate:"min=0"`

	// GPSLeapSeconds is the fixed GPS-to-UTC offset applied when projecting
	// GPS week/time-of-week onto UTC. 18 s has been correct since 2017-01-01
	// and is current as of 2026. Not refreshed automatically.
	GPSLeapSeconds int `yaml:"gps_leap_seconds" envconfig:"GPS_LEAP_SECONDS" default:"18" validate:"min=0"`

	manualOffset time.Time
}

// ManualOffsetTime returns the parsed manual offset instant, zero when unset.
func (p *ParserConfig) ManualOffsetTime() time.Time { return p.manualOffset }

// OutputConfig controls artifact placement, naming and merging.
type OutputConfig struct {
	// Directory receives the output artifacts. Empty means display-only mode:
	// files are discovered and inspected but nothing is written.
	Directory string `yaml:"directory" envconfig:"DIRECTORY"`

	// PathLevels is the number of trailing source path components joined into
	// the artifact name.
	PathLevels int `yaml:"path_levels" envconfig:"PATH_LEVELS" default:"3" validate:"min=1"`

	// PathSeparator joins those components. Use "/" to keep directories.
	PathSeparator string `yaml:"path_separator" envconfig:"PATH_SEPARATOR" default:"-"`

	// Merge emits one time-ordered artifact per source directory.
	Merge bool `yaml:"merge" envconfig:"MERGE" default:"true"`

	// OnlyMerge skips the per-file artifacts and writes only the merged one.
	OnlyMerge bool `yaml:"only_merge" envconfig:"ONLY_MERGE"`

	// MergedName is the base name of the merged artifact; its extension is
	// replaced according to the output format.
	MergedName string `yaml:"merged_name" envconfig:"MERGED_NAME" default:"MERGED.CSV"`
}

// ReformatConfig selects the output format and the sensor/column filters.
type ReformatConfig struct {
	Format string `yaml:"format" envconfig:"FORMAT" default:"unchanged" validate:"oneof=unchanged csv-flat json-lines-minimal json-lines-header json-lines-full xlsx"`

	// CSVLineEnding selects the csv-flat record terminator. The device writes
	// CRLF, so that is the default.
	CSVLineEnding string `yaml:"csv_line_ending" envconfig:"CSV_LINE_ENDING" default:"crlf" validate:"oneof=crlf lf"`

	Sensors []string `yaml:"sensors" envconfig:"SENSORS"`
	Columns []string `yaml:"columns" envconfig:"COLUMNS"`
}

// Load builds the configuration: struct defaults and FLYSIGHT_* environment
// variables first, then an optional YAML file overlay, then validation.
func Load(configFile string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("FLYSIGHT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		if err := loadFromFile(configFile, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	if len(cfg.Finder.GlobPatterns) == 0 {
		cfg.Finder.GlobPatterns = append([]string(nil), DefaultGlobPatterns...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks struct tags and the cross-field constraints that tags
// cannot express. Violations surface as ConfigurationError.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return apperrors.NewConfigurationError(
				strings.ToLower(first.StructNamespace()),
				fmt.Sprintf("failed %q validation", first.Tag()),
			)
		}
		return apperrors.NewConfigurationError("", err.Error())
	}

	if c.Output.OnlyMerge && !c.Output.Merge {
		return apperrors.NewConfigurationError("output.only_merge",
			"conflicting merge parameters leave nothing to do")
	}

	if c.Parser.ManualOffset != "" {
		t, err := time.Parse(time.RFC3339, c.Parser.ManualOffset)
		if err != nil {
			return apperrors.NewConfigurationError("parser.manual_offset",
				fmt.Sprintf("not a valid RFC 3339 instant: %v", err))
		}
		c.Parser.manualOffset = t.UTC()
	}

	// Suppressing diagnostics only makes sense when parsing keeps going.
	if c.Parser.IgnoreAllFormatErrors {
		c.Parser.ContinueOnFormatError = true
	}

	return nil
}
