package replay

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

func TestSinkWriteOutcomes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewSink(db)
	ts := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	trend := 2.0

	outcomes := []Outcome{
		{
			Line: 2,
			Sample: classify.Sample{
				MachineID: "machine-ex7", Timestamp: ts,
				RPM: 0, Pressure: 0, Temperatures: []float64{120, 120, 120, 120},
			},
			Result: classify.Result{
				State: classify.StateHeating,
				Explanation: classify.Explanation{
					State: classify.StateHeating, MeanTemp: 120, Trend: &trend,
				},
			},
			Previous: classify.StateOff,
			Changed:  true,
		},
		{
			Line: 3,
			Sample: classify.Sample{
				MachineID: "machine-ex7", Timestamp: ts.Add(time.Minute),
				RPM: 45, Pressure: 80, Temperatures: []float64{125, 125, 125, 125},
			},
			Result: classify.Result{
				State: classify.StateProduction,
				Explanation: classify.Explanation{
					State: classify.StateProduction, MeanTemp: 125,
				},
			},
			Previous: classify.StateHeating,
			Changed:  true,
		},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO replay_states (machine_id, ts, state, previous_state, changed, mean_temp, trend, explanation) VALUES (?,?,?,?,?,?,?,?),(?,?,?,?,?,?,?,?)")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"machine-ex7", ts.UTC(), "HEATING", "OFF", true, 120.0, 2.0, sqlmock.AnyArg(),
			"machine-ex7", ts.Add(time.Minute).UTC(), "PRODUCTION", "HEATING", true, 125.0, nil, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(2, 2))

	if err := sink.WriteOutcomes(outcomes); err != nil {
		t.Fatalf("write outcomes: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSinkWriteOutcomesEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewSink(db)
	if err := sink.WriteOutcomes(nil); err != nil {
		t.Fatalf("expected nil error for empty run, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSinkInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS replay_states").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sink := NewSink(db)
	if err := sink.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSinkStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COUNT(DISTINCT machine_id) FROM replay_states")).
		WillReturnRows(sqlmock.NewRows([]string{"samples", "machines"}).AddRow(6, 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM replay_states WHERE changed = 1 AND previous_state != ''")).
		WillReturnRows(sqlmock.NewRows([]string{"transitions"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT state, COUNT(*) FROM replay_states GROUP BY state ORDER BY COUNT(*) DESC, state")).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow("PRODUCTION", 4).
			AddRow("OFF", 2))

	sink := NewSink(db)
	stats, err := sink.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Samples != 6 || stats.Machines != 2 || stats.Transitions != 3 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if len(stats.States) != 2 || stats.States[0].State != classify.StateProduction || stats.States[0].Count != 4 {
		t.Fatalf("unexpected state shares: %+v", stats.States)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
