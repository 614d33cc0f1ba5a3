package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SpecDetail is one field-level problem found in a source spec.
type SpecDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

// SpecError aggregates everything wrong with a source spec so the
// caller can surface the full list in one response.
type SpecError struct {
	Details []SpecDetail
}

func (e *SpecError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s %s", d.Field, d.Problem))
	}
	return "invalid source spec: " + strings.Join(parts, "; ")
}

// ParseSourceSpec decodes and statically validates a source_json
// document.
func ParseSourceSpec(raw []byte) (SourceSpec, error) {
	var spec SourceSpec
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return SourceSpec{}, fmt.Errorf("decode source spec: %w", err)
	}
	if err := ValidateSpec(spec); err != nil {
		return SourceSpec{}, err
	}
	return spec, nil
}

// ValidateSpec checks the spec's shape without touching any backend.
func ValidateSpec(spec SourceSpec) error {
	var details []SpecDetail
	add := func(field, problem, hint string) {
		details = append(details, SpecDetail{Field: field, Problem: problem, Hint: hint})
	}

	switch strings.ToLower(spec.Kind) {
	case KindSQL:
		if spec.ConnectionRef == "" {
			add("connectionRef", "is required for sql sources", "reference a stored connection id")
		}
		checkIdent := func(field, value string) {
			if value == "" {
				add(field, "is required for sql sources", "")
				return
			}
			if _, err := splitIdentifier(value); err != nil {
				add(field, "is not a safe identifier", err.Error())
			}
		}
		checkIdent("table", spec.Table)
		checkIdent("timestampColumn", spec.TimestampColumn)
		checkIdent("rpmColumn", spec.RPMColumn)
		checkIdent("pressureColumn", spec.PressureColumn)
		if len(spec.TemperatureColumns) == 0 {
			add("temperatureColumns", "must name at least one zone column", "")
		}
		for i, col := range spec.TemperatureColumns {
			if _, err := splitIdentifier(col); err != nil {
				add(fmt.Sprintf("temperatureColumns[%d]", i), "is not a safe identifier", err.Error())
			}
		}
		if spec.MachineColumn != "" {
			if _, err := splitIdentifier(spec.MachineColumn); err != nil {
				add("machineColumn", "is not a safe identifier", err.Error())
			}
			if spec.MachineKey == "" {
				add("machineKey", "is required when machineColumn is set", "the value matched against machineColumn")
			}
		}
	case KindMQTT:
		if spec.Topic == "" {
			add("topic", "is required for mqtt sources", "")
		} else if strings.ContainsAny(spec.Topic, "+#") {
			add("topic", "must not contain wildcards", "subscribe one machine per topic")
		}
	case KindOPCUA:
		if spec.RPMNode == "" {
			add("rpmNode", "is required for opcua sources", "")
		}
		if spec.PressureNode == "" {
			add("pressureNode", "is required for opcua sources", "")
		}
		if len(spec.TemperatureNodes) == 0 {
			add("temperatureNodes", "must name at least one zone node", "")
		}
	case "":
		add("kind", "is required", "one of sql, mqtt, opcua")
	default:
		add("kind", fmt.Sprintf("%q is not supported", spec.Kind), "one of sql, mqtt, opcua")
	}

	if len(details) > 0 {
		return &SpecError{Details: details}
	}
	return nil
}

// SQLIntrospector is the slice of SQLClient the runtime validator
// needs.
type SQLIntrospector interface {
	TestConnection(ctx context.Context) error
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]ColumnInfo, error)
}

// RuntimeValidateSQL verifies a sql spec against the live telemetry
// database: the table must be reachable and allowlisted, and every
// referenced column must exist. Each backend call gets its own
// timeout so a stuck database cannot hang reconciliation.
func RuntimeValidateSQL(ctx context.Context, client SQLIntrospector, spec SourceSpec, allowlist Allowlist, limits Limits) error {
	if !allowlist.AllowsTable(spec.Table) {
		return fmt.Errorf("table %s is not allowlisted", spec.Table)
	}

	pingCtx, cancel := context.WithTimeout(ctx, limits.QueryTimeout)
	err := client.TestConnection(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}

	tablesCtx, cancel := context.WithTimeout(ctx, limits.QueryTimeout)
	tables, err := client.ListTables(tablesCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	wantTable := tableBaseName(spec.Table)
	found := false
	for _, t := range tables {
		if strings.EqualFold(tableBaseName(t), wantTable) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("table %s does not exist", spec.Table)
	}

	colsCtx, cancel := context.WithTimeout(ctx, limits.QueryTimeout)
	cols, err := client.ListColumns(colsCtx, spec.Table)
	cancel()
	if err != nil {
		return fmt.Errorf("list columns of %s: %w", spec.Table, err)
	}
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c.Name)] = true
	}
	required := []string{spec.TimestampColumn, spec.RPMColumn, spec.PressureColumn}
	required = append(required, spec.TemperatureColumns...)
	if spec.MachineColumn != "" {
		required = append(required, spec.MachineColumn)
	}
	for _, col := range required {
		if !have[strings.ToLower(col)] {
			return fmt.Errorf("column %s does not exist in %s", col, spec.Table)
		}
	}
	return nil
}

func tableBaseName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
