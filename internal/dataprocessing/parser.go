// Package dataprocessing implements the core of the converter: the format
// parser, the time normalizer, the record filter and the stream merger.
//
// The input grammar is one directive per line, comma separated:
//
//	$VAR,<NAME>,<VALUE>
//	$COLUMN,<SENSOR>,<col1>,<col2>,...
//	$UNIT,<SENSOR>,<unit1>,<unit2>,...
//	<SENSOR>,<val1>,<val2>,...
//
// Sensor shapes are learned entirely from the $COLUMN/$UNIT directives in the
// file; nothing about the sensor set is hardcoded, so firmware revisions that
// add columns parse without code changes.
package dataprocessing

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	apperrors "flysight2csv/internal/errors"
	"flysight2csv/pkg/contracts/domain"
)

const (
	directiveVar    = "$VAR"
	directiveColumn = "$COLUMN"
	directiveUnit   = "$UNIT"
)

// RowSource is a forward-only cursor over data rows. Next returns io.EOF
// after the last row; any other error is terminal.
type RowSource interface {
	Next() (domain.RawRow, error)
}

// ParserOptions is the format-error tolerance policy for one file.
type ParserOptions struct {
	// MetadataOnly stops producing data rows once every sensor registered so
	// far has yielded one row. Header directives encountered up to that point
	// are still recorded.
	MetadataOnly bool

	// ContinueOnFormatError discards the offending line and resumes parsing
	// instead of failing fast.
	ContinueOnFormatError bool

	// IgnoreAllFormatErrors suppresses every format error diagnostic. Implies
	// ContinueOnFormatError.
	IgnoreAllFormatErrors bool

	// IgnoredMessagePrefixes suppresses format errors whose rendered message
	// starts with one of these prefixes.
	IgnoredMessagePrefixes []string
}

// Parser turns the lines of one telemetry file into a lazy, non-restartable
// sequence of RawRow. Header directives are folded into Meta as they are
// seen; structural violations surface per the ParserOptions policy.
type Parser struct {
	opts        ParserOptions
	displayPath string
	scanner     *bufio.Scanner
	meta        *domain.FileMeta

	line        int
	dataStarted bool
	rowCount    int
	seenTags    map[string]bool

	warned      map[string]struct{}
	diagnostics []*apperrors.FormatError
	ignored     []string

	failed    error
	validated bool
	exhausted bool
}

// NewParser wraps a line reader. displayPath is the (possibly truncated) path
// used in diagnostics and row metadata.
func NewParser(r io.Reader, displayPath string, opts ParserOptions) *Parser {
	if opts.IgnoreAllFormatErrors {
		opts.ContinueOnFormatError = true
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Parser{
		opts:        opts,
		displayPath: displayPath,
		scanner:     sc,
		meta:        domain.NewFileMeta(displayPath),
		seenTags:    make(map[string]bool),
		warned:      make(map[string]struct{}),
	}
}

// Meta returns the header state accumulated so far. It is complete once Next
// has returned io.EOF.
func (p *Parser) Meta() *domain.FileMeta { return p.meta }

// Diagnostics returns the format errors that were reported but tolerated.
func (p *Parser) Diagnostics() []*apperrors.FormatError { return p.diagnostics }

// IgnoredMessages returns the rendered messages suppressed by the ignore
// policy.
func (p *Parser) IgnoredMessages() []string { return p.ignored }

// Next returns the next data row. io.EOF signals clean end of input; a
// *errors.FormatError is terminal under the fail-fast policy.
func (p *Parser) Next() (domain.RawRow, error) {
	if p.failed != nil {
		return domain.RawRow{}, p.failed
	}
	if p.exhausted {
		return domain.RawRow{}, io.EOF
	}
	for {
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				p.failed = fmt.Errorf("reading %s: %w", p.displayPath, err)
				return domain.RawRow{}, p.failed
			}
			return domain.RawRow{}, p.finish()
		}
		p.line++
		line := strings.TrimRight(p.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			slog.Debug("skipping empty line",
				slog.String("file", p.displayPath),
				slog.Int("line", p.line))
			continue
		}

		fields := strings.Split(line, ",")
		tag := fields[0]

		if strings.HasPrefix(tag, "$") {
			if err := p.processDirective(tag, fields[1:]); err != nil {
				return domain.RawRow{}, err
			}
			continue
		}

		row, err := p.processDataLine(tag, fields[1:])
		if err != nil {
			return domain.RawRow{}, err
		}
		if row == nil {
			continue
		}
		return *row, nil
	}
}

// finish runs the end-of-input checks once and returns io.EOF (or the
// terminal error they raise under fail-fast).
func (p *Parser) finish() error {
	if p.validated {
		return io.EOF
	}
	p.validated = true
	p.exhausted = true
	if err := p.validateResult(); err != nil {
		p.failed = err
		return err
	}
	return io.EOF
}

func (p *Parser) processDirective(directive string, rest []string) error {
	switch directive {
	case directiveVar:
		if p.dataStarted {
			return p.recordError(0, "", "variable declaration after data rows")
		}
		if len(rest) < 2 {
			return p.recordError(0, "", "malformed $VAR directive")
		}
		p.meta.Vars[rest[0]] = strings.Join(rest[1:], ",")
		return nil

	case directiveColumn:
		if len(rest) < 2 {
			return p.recordError(0, "", "malformed $COLUMN directive")
		}
		tag, columns := rest[0], rest[1:]
		if def := p.meta.Sensors[tag]; def != nil {
			def.Columns = append([]string(nil), columns...)
			def.Units = nil
			return nil
		}
		p.meta.Sensors[tag] = &domain.SensorDefinition{
			Tag:     tag,
			Columns: append([]string(nil), columns...),
		}
		p.meta.SensorOrder = append(p.meta.SensorOrder, tag)
		return nil

	case directiveUnit:
		if len(rest) < 2 {
			return p.recordError(0, "", "malformed $UNIT directive")
		}
		tag, units := rest[0], rest[1:]
		def := p.meta.Sensors[tag]
		if def == nil {
			return p.recordError(0, tag, fmt.Sprintf("unit declaration for unknown sensor tag %q", tag))
		}
		if len(units) != len(def.Columns) {
			return p.recordError(0, tag, fmt.Sprintf(
				"sensor %q declares %d columns but %d units", tag, len(def.Columns), len(units)))
		}
		def.Units = append([]string(nil), units...)
		return nil
	}
	return p.recordError(0, "", fmt.Sprintf("unknown directive %q", directive))
}

func (p *Parser) processDataLine(tag string, values []string) (*domain.RawRow, error) {
	p.dataStarted = true

	def := p.meta.Sensors[tag]
	if def == nil {
		return nil, p.recordError(0, tag, fmt.Sprintf("unknown sensor tag %q", tag))
	}
	if len(values) != len(def.Columns) {
		return nil, p.recordError(0, tag, fmt.Sprintf(
			"sensor %q row has %d fields, definition declares %d columns", tag, len(values), len(def.Columns)))
	}

	if p.opts.MetadataOnly {
		if p.seenTags[tag] {
			return nil, nil
		}
		p.seenTags[tag] = true
		if len(p.seenTags) == len(p.meta.Sensors) {
			// one row observed per registered sensor: nothing left to learn
			p.exhausted = true
		}
	}

	p.rowCount++
	return &domain.RawRow{
		Tag:    tag,
		Fields: append([]string(nil), values...),
		File:   p.displayPath,
		Line:   p.line,
	}, nil
}

// validateResult reports structural problems visible only at end of input.
func (p *Parser) validateResult() error {
	if len(p.meta.Vars) == 0 {
		if err := p.recordError(0, "", "no $VAR metadata found"); err != nil {
			return err
		}
	}
	if len(p.meta.Sensors) == 0 {
		if err := p.recordError(0, "", "no column declarations found"); err != nil {
			return err
		}
	}
	for _, tag := range p.meta.SensorOrder {
		if p.meta.Sensors[tag].Units == nil {
			if err := p.recordError(0, tag, fmt.Sprintf("missing $UNIT declaration for sensor %q", tag)); err != nil {
				return err
			}
		}
	}
	if !p.opts.MetadataOnly && p.rowCount == 0 {
		if err := p.recordError(0, "", "no data rows found"); err != nil {
			return err
		}
	}
	return nil
}

// recordError applies the tolerance policy to one format error. A nil return
// means the offending line was discarded and parsing may resume; a non-nil
// return is the terminal fail-fast error. line 0 means the current line.
func (p *Parser) recordError(line int, sensor, message string) error {
	if line == 0 {
		line = p.line
	}
	if p.validated {
		line = 0 // end-of-input checks are not tied to a line
	}
	ferr := apperrors.NewFormatError(p.displayPath, line, sensor, message)

	// Deduplicate on the bare message so a mismatch repeated on every line is
	// reported once per file. The offending lines are still discarded.
	if _, dup := p.warned[message]; dup {
		return nil
	}
	p.warned[message] = struct{}{}

	if p.opts.IgnoreAllFormatErrors || p.matchesIgnoredPrefix(message) {
		p.ignored = append(p.ignored, ferr.Error())
		return nil
	}

	p.diagnostics = append(p.diagnostics, ferr)
	if !p.opts.ContinueOnFormatError {
		p.failed = ferr
		return ferr
	}
	slog.Error("unexpected format",
		slog.String("file", p.displayPath),
		slog.Int("line", line),
		slog.String("message", message))
	return nil
}

func (p *Parser) matchesIgnoredPrefix(message string) bool {
	for _, prefix := range p.opts.IgnoredMessagePrefixes {
		if strings.HasPrefix(message, prefix) {
			return true
		}
	}
	return false
}
