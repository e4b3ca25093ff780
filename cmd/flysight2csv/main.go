// Command flysight2csv converts FlySight 2 telemetry recordings into
// re-encoded, time-normalized artifacts, optionally merging each recording
// session's files into a single time-ordered stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"flysight2csv/internal/config"
	apperrors "flysight2csv/internal/errors"
	"flysight2csv/internal/infrastructure"
	"flysight2csv/internal/pipeline"
)

var version = "dev"

const (
	exitError  = 1
	exitConfig = 2
)

// stringList is a repeatable flag value accumulating comma-separated items.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		globs         stringList
		ignoredErrors stringList
		sensors       stringList
		columns       stringList
	)
	flag.Var(&globs, "glob", "glob pattern for session files (repeatable)")
	info := flag.String("info", "", "per-file info display: none, path or meta")
	metadataOnly := flag.Bool("metadata-only", false, "stop parsing after the first data row per sensor")
	offset := flag.String("offset", "", "manual time offset: RFC 3339 instant of device time zero")
	continueOnFormatError := flag.Bool("continue-on-format-error", false, "keep parsing a file after a format error")
	ignoreAllFormatErrors := flag.Bool("ignore-all-format-errors", false, "suppress all format error diagnostics (implies -continue-on-format-error)")
	flag.Var(&ignoredErrors, "ignore-format-errors", "suppress format errors with this message prefix (repeatable)")
	continueOnError := flag.Bool("continue-on-error", false, "skip files that fail and keep going")
	stopOnWarning := flag.Bool("stop-on-warning", false, "treat warnings as fatal errors")
	outputDir := flag.String("o", "", "output directory (empty: display only, write nothing)")
	format := flag.String("format", "", "output format: unchanged, csv-flat, json-lines-minimal, json-lines-header, json-lines-full or xlsx")
	csvLineEnding := flag.String("csv-line-ending", "", "csv-flat line ending: crlf or lf")
	flag.Var(&sensors, "sensors", "only include rows from these sensors (repeatable)")
	flag.Var(&columns, "columns", "only include these columns (repeatable)")
	pathLevels := flag.Int("path-levels", 0, "number of trailing source path components in artifact names")
	sep := flag.String("sep", "", "separator joining path components in artifact names")
	merge := flag.Bool("merge", true, "write one merged artifact per source directory")
	onlyMerge := flag.Bool("only-merge", false, "write only the merged artifact, no per-file ones")
	mergedName := flag.String("merged-name", "", "base name of the merged artifact")
	workers := flag.Int("workers", 0, "number of directories processed concurrently")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn or error")
	configFile := flag.String("config", "", "path to a YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")

	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("flysight2csv %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitConfig
	}

	// Only flags the user actually set override the file/env configuration.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "glob":
			cfg.Finder.GlobPatterns = globs
		case "info":
			cfg.Finder.InfoType = *info
		case "metadata-only":
			cfg.Parser.MetadataOnly = *metadataOnly
		case "offset":
			cfg.Parser.ManualOffset = *offset
		case "continue-on-format-error":
			cfg.Parser.ContinueOnFormatError = *continueOnFormatError
		case "ignore-all-format-errors":
			cfg.Parser.IgnoreAllFormatErrors = *ignoreAllFormatErrors
		case "ignore-format-errors":
			cfg.Parser.IgnoredFormatErrors = ignoredErrors
		case "continue-on-error":
			cfg.ContinueOnError = *continueOnError
		case "stop-on-warning":
			cfg.StopOnWarning = *stopOnWarning
		case "o":
			cfg.Output.Directory = *outputDir
		case "format":
			cfg.Reformat.Format = *format
		case "csv-line-ending":
			cfg.Reformat.CSVLineEnding = *csvLineEnding
		case "sensors":
			cfg.Reformat.Sensors = sensors
		case "columns":
			cfg.Reformat.Columns = columns
		case "path-levels":
			cfg.Output.PathLevels = *pathLevels
		case "sep":
			cfg.Output.PathSeparator = *sep
		case "merge":
			cfg.Output.Merge = *merge
		case "only-merge":
			cfg.Output.OnlyMerge = *onlyMerge
		case "merged-name":
			cfg.Output.MergedName = *mergedName
		case "workers":
			cfg.Workers = *workers
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: no input files or directories given")
		usage()
		return exitConfig
	}
	cfg.Finder.Paths = flag.Args()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitConfig
	}

	logger, closeLogger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitError
	}
	defer func() {
		if err := closeLogger(); err != nil {
			fmt.Fprintln(os.Stderr, "Error closing logger:", err)
		}
	}()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		logger.Error("processing failed", slog.String("error", err.Error()))
		fmt.Fprintln(os.Stderr, "Error:", err)
		if apperrors.IsConfigurationError(err) {
			return exitConfig
		}
		return exitError
	}
	return 0
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Usage: flysight2csv [flags] <file-or-directory> ...\n\n"+
			"Converts FlySight 2 telemetry files. Flags:\n")
	flag.PrintDefaults()
}
