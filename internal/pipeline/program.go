// Package pipeline orchestrates the conversion: file discovery, per-file
// parse/normalize/encode, per-directory merge, and the tolerance policies
// that decide whether an invocation survives a failing file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"flysight2csv/internal/config"
	"flysight2csv/internal/dataprocessing"
	apperrors "flysight2csv/internal/errors"
	"flysight2csv/internal/exporter"
	"flysight2csv/internal/files"
	"flysight2csv/pkg/contracts/domain"
)

// fileResult carries one file's normalized stream to the merge step.
type fileResult struct {
	path          string
	meta          *domain.FileMeta
	rows          []domain.NormalizedRow
	missingOffset bool
}

// Pipeline runs one invocation over the configured paths. Directories are
// independent units of work and may run on concurrent workers; each output
// artifact has exactly one writer.
type Pipeline struct {
	cfg     *config.Config
	log     *slog.Logger
	format  exporter.Format
	dialect exporter.CSVDialect
	sensors *dataprocessing.Selection
	columns *dataprocessing.Selection
	out     io.Writer
}

// New validates the format configuration and builds a pipeline.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	format, err := exporter.ParseFormat(cfg.Reformat.Format)
	if err != nil {
		return nil, apperrors.NewConfigurationError("reformat.format", err.Error())
	}
	dialect, err := exporter.ParseCSVDialect(cfg.Reformat.CSVLineEnding)
	if err != nil {
		return nil, apperrors.NewConfigurationError("reformat.csv_line_ending", err.Error())
	}
	return &Pipeline{
		cfg:     cfg,
		log:     logger,
		format:  format,
		dialect: dialect,
		sensors: dataprocessing.NewSelection(cfg.Reformat.Sensors),
		columns: dataprocessing.NewSelection(cfg.Reformat.Columns),
		out:     os.Stdout,
	}, nil
}

// SetOutput redirects the info display lines, mainly for tests.
func (p *Pipeline) SetOutput(w io.Writer) { p.out = w }

// Run discovers the session files and processes each directory. It returns
// the first unrecovered error; a nil return means exit status zero.
func (p *Pipeline) Run(ctx context.Context) error {
	discovery := files.NewDiscovery(p.cfg.Finder.GlobPatterns)
	matches, err := discovery.Find(p.cfg.Finder.Paths)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return p.warn(fmt.Sprintf("no files found matching %v in %v",
			p.cfg.Finder.GlobPatterns, p.cfg.Finder.Paths))
	}

	groups, order := files.GroupByDirectory(matches)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, dir := range order {
		g.Go(func() error {
			return p.processDirectory(ctx, dir, groups[dir])
		})
	}
	return g.Wait()
}

// processDirectory converts each file in one source directory, then emits
// the directory's merged artifact. Merging buffers this directory's rows
// only; nothing outlives the call.
func (p *Pipeline) processDirectory(ctx context.Context, dir string, paths []string) error {
	var results []fileResult
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := p.processFile(path)
		if err != nil {
			if herr := p.handleFileError(err, path); herr != nil {
				return herr
			}
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}

	if err := p.processMerge(dir, paths, results); err != nil {
		if herr := p.handleFileError(err, "merged file for "+dir); herr != nil {
			return herr
		}
	}
	return nil
}

// processFile handles one source file: info display, unchanged passthrough,
// or the parse → normalize → filter → encode path. The returned result feeds
// the merge step; nil means there is nothing to merge from this file.
func (p *Pipeline) processFile(path string) (*fileResult, error) {
	if p.cfg.Output.Directory == "" {
		if err := p.displayFile(path, ""); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if info, err := os.Stat(p.cfg.Output.Directory); err != nil || !info.IsDir() {
		return nil, apperrors.NewConfigurationError("output.directory",
			fmt.Sprintf("output directory does not exist: %s", p.cfg.Output.Directory))
	}

	targetPath := p.targetPath(path, "")
	if err := p.displayFile(path, targetPath); err != nil {
		return nil, err
	}
	if same, err := sameFile(path, targetPath); err == nil && same {
		return nil, fmt.Errorf("source and target path are the same: %s", path)
	}

	if p.format == exporter.FormatUnchanged {
		if err := exporter.CopyUnchanged(path, targetPath); err != nil {
			return nil, err
		}
		return nil, nil
	}

	result, err := p.parseFile(path)
	if err != nil {
		return nil, err
	}
	if result.missingOffset {
		msg := fmt.Sprintf("no TIME data available in %s; relative timestamps are untrusted",
			files.DisplayPath(path, p.cfg.Parser.DisplayPathLevels))
		if err := p.warn(msg); err != nil {
			return nil, err
		}
	}

	if !p.cfg.Output.OnlyMerge {
		if err := p.writeArtifact(result.meta, result.rows, targetPath); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// parseFile runs the parser and time normalizer over one file, collecting
// the full normalized stream.
func (p *Pipeline) parseFile(path string) (*fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	display := files.DisplayPath(path, p.cfg.Parser.DisplayPathLevels)
	parser := dataprocessing.NewParser(f, display, dataprocessing.ParserOptions{
		MetadataOnly:           p.cfg.Parser.MetadataOnly,
		ContinueOnFormatError:  p.cfg.Parser.ContinueOnFormatError,
		IgnoreAllFormatErrors:  p.cfg.Parser.IgnoreAllFormatErrors,
		IgnoredMessagePrefixes: p.cfg.Parser.IgnoredFormatErrors,
	})
	normalizer := dataprocessing.NewNormalizer(parser, parser.Meta(), dataprocessing.NormalizerOptions{
		ManualOffset:   p.cfg.Parser.ManualOffsetTime(),
		GPSLeapSeconds: p.cfg.Parser.GPSLeapSeconds,
	})

	var rows []domain.NormalizedRow
	for {
		row, err := normalizer.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	for _, diag := range parser.Diagnostics() {
		p.log.Warn("tolerated format error", slog.String("error", diag.Error()))
	}

	return &fileResult{
		path:          path,
		meta:          parser.Meta(),
		rows:          rows,
		missingOffset: normalizer.MissingOffset() && hasRelativeRows(rows),
	}, nil
}

// processMerge emits the directory's merged artifact, unless merging is
// disabled, impossible (single file, unchanged format) or unsafe (session
// variable mismatch between siblings).
func (p *Pipeline) processMerge(dir string, paths []string, results []fileResult) error {
	if p.cfg.Output.Directory == "" || !p.cfg.Output.Merge {
		return nil
	}
	if p.format == exporter.FormatUnchanged {
		p.log.Debug("merge skipped for unchanged format", slog.String("dir", dir))
		return nil
	}
	if len(results) == 0 {
		return nil
	}
	if len(paths) == 1 {
		return p.warn(fmt.Sprintf("only one file found in %s; skipping merge", dir))
	}
	for _, r := range results[1:] {
		if !results[0].meta.Vars.Equal(r.meta.Vars) {
			return p.warn(fmt.Sprintf("session variable mismatch in %s; skipping merge", dir))
		}
	}

	metas := make([]*domain.FileMeta, len(results))
	streams := make([][]domain.NormalizedRow, len(results))
	for i, r := range results {
		metas[i] = r.meta
		streams[i] = r.rows
	}
	merged := dataprocessing.MergeStreams(streams...)
	mergedMeta := domain.MergeMeta(metas...)

	targetPath := p.targetPath(results[0].path, p.cfg.Output.MergedName)
	if err := p.writeArtifact(mergedMeta, merged, targetPath); err != nil {
		return err
	}
	if p.cfg.Finder.InfoType != "none" {
		p.display(fmt.Sprintf("%s -> %s (%s)", filepath.Join(dir, "*"), targetPath, p.format))
	}
	return nil
}

// writeArtifact encodes one normalized stream into the output file. Streams
// that filter down to nothing are skipped with a warning, not an error.
func (p *Pipeline) writeArtifact(meta *domain.FileMeta, rows []domain.NormalizedRow, targetPath string) error {
	reformatter, err := exporter.NewReformatter(meta, rows, p.sensors, p.columns)
	if err != nil {
		if isNothingToWrite(err) {
			return p.warn(fmt.Sprintf("no rows selected; not writing %s", targetPath))
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := reformatter.Write(f, p.format, p.dialect); err != nil {
		if isNothingToWrite(err) {
			return p.warn(fmt.Sprintf("no rows selected; not writing %s", targetPath))
		}
		return fmt.Errorf("failed to write %s: %w", targetPath, err)
	}

	p.log.Info("artifact written",
		slog.String("path", targetPath),
		slog.String("format", string(p.format)),
		slog.Int("rows", len(rows)))
	return f.Sync()
}

// displayFile prints the per-file info line and, in meta mode, the header
// summary from a metadata-only parse.
func (p *Pipeline) displayFile(path, targetPath string) error {
	switch p.cfg.Finder.InfoType {
	case "none":
		return nil
	case "path", "meta":
	default:
		return apperrors.NewConfigurationError("finder.info_type",
			fmt.Sprintf("unknown info type %q", p.cfg.Finder.InfoType))
	}

	line := path
	if targetPath != "" {
		line += " -> " + targetPath
		if p.format != exporter.FormatUnchanged {
			line += fmt.Sprintf(" (%s)", p.format)
		}
	}
	p.display(line)

	if p.cfg.Finder.InfoType == "meta" {
		return p.displayMeta(path)
	}
	return nil
}

// displayMeta prints session variables, sensor shapes and the first data row
// using a cheap metadata-only parse.
func (p *Pipeline) displayMeta(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	display := files.DisplayPath(path, p.cfg.Parser.DisplayPathLevels)
	parser := dataprocessing.NewParser(f, display, dataprocessing.ParserOptions{
		MetadataOnly:           true,
		ContinueOnFormatError:  true,
		IgnoreAllFormatErrors:  p.cfg.Parser.IgnoreAllFormatErrors,
		IgnoredMessagePrefixes: p.cfg.Parser.IgnoredFormatErrors,
	})

	var first *domain.RawRow
	for {
		row, err := parser.Next()
		if err != nil {
			break
		}
		if first == nil {
			first = &row
		}
	}

	meta := parser.Meta()
	p.display("    Vars:")
	for _, tag := range sortedKeys(meta.Vars) {
		p.display(fmt.Sprintf("        %s: %s", tag, meta.Vars[tag]))
	}
	p.display("    Sensors/ Columns/ Units:")
	for _, tag := range meta.SensorOrder {
		def := meta.Sensors[tag]
		var cols []string
		for i, col := range def.Columns {
			unit := ""
			if i < len(def.Units) {
				unit = def.Units[i]
			}
			if unit == "" {
				unit = " - "
			}
			cols = append(cols, fmt.Sprintf("%s (%s)", col, unit))
		}
		p.display(fmt.Sprintf("        %s: %s", tag, joinComma(cols)))
	}
	if first != nil {
		p.display("    First data row:")
		p.display("        SENSOR: " + first.Tag)
		def := meta.Definition(first.Tag)
		for i, v := range first.Fields {
			if def != nil && i < len(def.Columns) {
				p.display(fmt.Sprintf("        %s: %s", def.Columns[i], v))
			}
		}
	}
	p.display("")
	return nil
}

func (p *Pipeline) display(line string) {
	fmt.Fprintln(p.out, line)
}

// warn logs a warning, or escalates it to an error under stop_on_warning.
func (p *Pipeline) warn(message string) error {
	if p.cfg.StopOnWarning {
		return apperrors.NewWarningError(message)
	}
	p.log.Warn(message)
	return nil
}

// handleFileError applies the tolerance policy to a failed file. A nil
// return means the file is skipped and processing continues.
func (p *Pipeline) handleFileError(err error, location string) error {
	if apperrors.IsConfigurationError(err) {
		return err
	}
	var werr *apperrors.WarningError
	if errors.As(err, &werr) {
		return err
	}

	isFormat := apperrors.IsFormatError(err)
	if p.cfg.ContinueOnError {
		p.log.Error("skipping file after error",
			slog.String("location", location),
			slog.String("error", err.Error()))
		return nil
	}
	return apperrors.NewProcessingError(location, isFormat, err)
}

// targetPath builds the artifact path for a source file, applying the
// format-dependent extension. The unchanged format keeps the original name.
func (p *Pipeline) targetPath(sourcePath, rename string) string {
	name := files.TargetName(sourcePath, p.cfg.Output.PathLevels, p.cfg.Output.PathSeparator, rename)
	if p.format != exporter.FormatUnchanged {
		name = files.ReplaceExtension(name, p.format.Extension())
	}
	return filepath.Join(p.cfg.Output.Directory, name)
}

func hasRelativeRows(rows []domain.NormalizedRow) bool {
	for _, r := range rows {
		if !r.ValidOffset {
			return true
		}
	}
	return false
}

func sameFile(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ia, ib), nil
}

func isNothingToWrite(err error) bool {
	return errors.Is(err, exporter.ErrNothingToWrite)
}

func sortedKeys(m domain.SessionVars) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}
