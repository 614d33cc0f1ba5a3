// Package replay classifies recorded telemetry offline. It reads a CSV
// log, runs the samples through a fresh engine in timestamp order and
// reports state counts and transitions, optionally persisting the
// per-sample results into a SQLite file for later inspection.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

// Row is one parsed and validated log line.
type Row struct {
	Line   int
	Sample classify.Sample
}

// RowError reports a log line that could not be parsed or validated.
// Bad lines are collected, not fatal; the rest of the log still runs.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ReadLog parses a telemetry CSV. The header must be
// machine_id,timestamp,rpm,pressure followed by one or more temperature
// columns; timestamps are RFC3339. Empty temperature cells are skipped,
// so machines with fewer zones can share a log. Rows come back in file
// order; Run sorts by timestamp.
func ReadLog(r io.Reader) ([]Row, []RowError, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 5 {
		return nil, nil, fmt.Errorf("header must be machine_id,timestamp,rpm,pressure plus at least one temperature column, got %d columns", len(header))
	}
	for i, want := range []string{"machine_id", "timestamp", "rpm", "pressure"} {
		if got := strings.ToLower(strings.TrimSpace(header[i])); got != want {
			return nil, nil, fmt.Errorf("header column %d must be %s, got %q", i+1, want, header[i])
		}
	}

	var rows []Row
	var rowErrs []RowError
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				rowErrs = append(rowErrs, RowError{Line: line, Err: err})
				continue
			}
			return nil, nil, fmt.Errorf("read line %d: %w", line, err)
		}
		sample, err := parseRow(header, rec)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		if err := classify.ValidateSample(sample); err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		rows = append(rows, Row{Line: line, Sample: sample})
	}
	return rows, rowErrs, nil
}

func parseRow(header, rec []string) (classify.Sample, error) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[1]))
	if err != nil {
		return classify.Sample{}, fmt.Errorf("parse timestamp: %w", err)
	}
	rpm, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return classify.Sample{}, fmt.Errorf("parse rpm: %w", err)
	}
	pressure, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	if err != nil {
		return classify.Sample{}, fmt.Errorf("parse pressure: %w", err)
	}
	temps := make([]float64, 0, len(rec)-4)
	for i := 4; i < len(rec); i++ {
		cell := strings.TrimSpace(rec[i])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return classify.Sample{}, fmt.Errorf("parse %s: %w", header[i], err)
		}
		temps = append(temps, v)
	}
	return classify.Sample{
		MachineID:    strings.TrimSpace(rec[0]),
		Timestamp:    ts,
		RPM:          rpm,
		Pressure:     pressure,
		Temperatures: temps,
	}, nil
}
