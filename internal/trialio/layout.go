// Package trialio reads and writes trial tables: rows of
// [r1, d1, r2, d2, choice] from CSV, XLSX or staircase data files.
package trialio

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitk/internal/model"
)

// Format names a trial-table encoding.
type Format string

const (
	FormatAuto      Format = "auto"
	FormatCSV       Format = "csv"
	FormatXLSX      Format = "xlsx"
	FormatStaircase Format = "staircase"
)

// ParseFormat validates a format name. The empty string means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV, FormatXLSX, FormatStaircase:
		return f, nil
	default:
		return "", eris.Errorf("trialio: unknown format %q (want auto, csv, xlsx or staircase)", s)
	}
}

// DetectFormat picks a format from a file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".xpd":
		return FormatStaircase
	default:
		return FormatCSV
	}
}

// Layout locates the trial columns inside a table.
type Layout struct {
	SkipRows  int   // raw leading lines (CSV) or rows (XLSX) to drop
	Columns   []int // zero-based indices of r1, d1, r2, d2, choice; nil means exactly five columns in order
	Delimiter rune  // default ','
	Comment   rune  // 0 = none
}

// TableLayout is a plain five-column table with an optional header row.
var TableLayout = Layout{Comment: '#'}

// StaircaseLayout reads staircase task data files: a ten-line preamble
// followed by [subject_id, trial, k, ssamnt, ssdel, llamnt, lldel, choice, RT].
var StaircaseLayout = Layout{
	SkipRows: 10,
	Columns:  []int{3, 4, 5, 6, 7},
	Comment:  '#',
}

// LayoutFor returns the default layout of a format.
func LayoutFor(f Format) Layout {
	if f == FormatStaircase {
		return StaircaseLayout
	}
	return TableLayout
}

// parser turns raw records into validated trials.
type parser struct {
	layout  Layout
	trials  model.Trials
	sawData bool
}

func newParser(layout Layout) *parser {
	return &parser{layout: layout}
}

// add parses one record found at source row line.
func (p *parser) add(line int, fields []string) error {
	if isBlank(fields) {
		return nil
	}
	if !p.sawData && isHeader(fields) {
		p.sawData = true
		return nil
	}
	p.sawData = true

	cells, err := p.pick(line, fields)
	if err != nil {
		return err
	}

	var vals [5]float64
	for i, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return &model.ValidationError{Row: line, Field: model.TrialColumns[i], Value: c, Reason: "not a number"}
		}
		vals[i] = v
	}

	if vals[4] != 0 && vals[4] != 1 {
		return &model.ValidationError{Row: line, Field: model.FieldChoice, Value: cells[4], Reason: "must be 0 or 1"}
	}

	t := model.Trial{
		SSAmount: vals[0],
		SSDelay:  vals[1],
		LLAmount: vals[2],
		LLDelay:  vals[3],
		Choice:   model.Choice(vals[4]),
	}
	if err := t.Validate(line); err != nil {
		return err
	}
	p.trials = append(p.trials, t)
	return nil
}

func (p *parser) pick(line int, fields []string) ([]string, error) {
	cols := p.layout.Columns
	if cols == nil {
		if len(fields) != len(model.TrialColumns) {
			return nil, &model.ValidationError{
				Row:    line,
				Reason: "expected 5 columns [r1, d1, r2, d2, choice], got " + strconv.Itoa(len(fields)),
			}
		}
		return fields, nil
	}

	cells := make([]string, len(cols))
	for i, c := range cols {
		if c >= len(fields) {
			return nil, &model.ValidationError{
				Row:    line,
				Field:  model.TrialColumns[i],
				Reason: "missing column " + strconv.Itoa(c+1) + " of " + strconv.Itoa(len(fields)),
			}
		}
		cells[i] = fields[c]
	}
	return cells, nil
}

func (p *parser) result() (model.Trials, error) {
	if len(p.trials) == 0 {
		return nil, model.ErrEmptyTrials
	}
	return p.trials, nil
}

// isHeader reports whether no cell of a record parses as a number.
func isHeader(fields []string) bool {
	for _, f := range fields {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
			return false
		}
	}
	return true
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
