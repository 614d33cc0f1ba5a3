package replay

import (
	"strings"
	"testing"
	"time"
)

const logHeader = "machine_id,timestamp,rpm,pressure,temp_z1,temp_z2,temp_z3,temp_z4\n"

func TestReadLogParsesRows(t *testing.T) {
	log := logHeader +
		"machine-ex7,2025-07-01T12:00:00Z,45,80,210,215,220,205\n" +
		"machine-ex9,2025-07-01T12:00:05Z,0,0.2,24.3,24.7,,\n"

	rows, rowErrs, err := ReadLog(strings.NewReader(log))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("expected no row errors, got %v", rowErrs)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	first := rows[0].Sample
	if first.MachineID != "machine-ex7" {
		t.Fatalf("expected machine-ex7, got %s", first.MachineID)
	}
	want := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Fatalf("expected %s, got %s", want, first.Timestamp)
	}
	if first.RPM != 45 || first.Pressure != 80 {
		t.Fatalf("unexpected magnitudes: rpm=%v pressure=%v", first.RPM, first.Pressure)
	}
	if len(first.Temperatures) != 4 {
		t.Fatalf("expected 4 zones, got %d", len(first.Temperatures))
	}

	// Empty cells are skipped so a two-zone machine can share the log.
	second := rows[1].Sample
	if len(second.Temperatures) != 2 {
		t.Fatalf("expected 2 zones after skipping empty cells, got %d", len(second.Temperatures))
	}
	if rows[1].Line != 3 {
		t.Fatalf("expected line 3, got %d", rows[1].Line)
	}
}

func TestReadLogCollectsBadRows(t *testing.T) {
	log := logHeader +
		"machine-ex7,2025-07-01T12:00:00Z,45,80,210,215,220,205\n" +
		"machine-ex7,not-a-timestamp,45,80,210,215,220,205\n" +
		"machine-ex7,2025-07-01T12:00:10Z,abc,80,210,215,220,205\n" +
		"machine-ex7,2025-07-01T12:00:15Z,45,-1,210,215,220,205\n" +
		"machine-ex7,2025-07-01T12:00:20Z,45,80,,,,\n" +
		"machine-ex7,2025-07-01T12:00:25Z,45,80,210,215,220,206\n"

	rows, rowErrs, err := ReadLog(strings.NewReader(log))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 good rows, got %d", len(rows))
	}
	if len(rowErrs) != 4 {
		t.Fatalf("expected 4 row errors, got %d: %v", len(rowErrs), rowErrs)
	}
	for i, wantLine := range []int{3, 4, 5, 6} {
		if rowErrs[i].Line != wantLine {
			t.Fatalf("expected error %d on line %d, got %d", i, wantLine, rowErrs[i].Line)
		}
	}
	if !strings.Contains(rowErrs[0].Error(), "timestamp") {
		t.Fatalf("expected timestamp parse error, got %v", rowErrs[0])
	}
	if !strings.Contains(rowErrs[2].Error(), "pressure") {
		t.Fatalf("expected pressure validation error, got %v", rowErrs[2])
	}
}

func TestReadLogRejectsBadHeader(t *testing.T) {
	if _, _, err := ReadLog(strings.NewReader("machine_id,timestamp,rpm\n")); err == nil {
		t.Fatalf("expected error for header without temperature columns")
	}
	if _, _, err := ReadLog(strings.NewReader("id,timestamp,rpm,pressure,temp_z1\n")); err == nil {
		t.Fatalf("expected error for wrong first column")
	}
}

func TestReadLogFieldCountMismatch(t *testing.T) {
	log := logHeader +
		"machine-ex7,2025-07-01T12:00:00Z,45,80\n" +
		"machine-ex7,2025-07-01T12:00:05Z,45,80,210,215,220,205\n"

	rows, rowErrs, err := ReadLog(strings.NewReader(log))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 good row, got %d", len(rows))
	}
	if len(rowErrs) != 1 || rowErrs[0].Line != 2 {
		t.Fatalf("expected one error on line 2, got %v", rowErrs)
	}
}
