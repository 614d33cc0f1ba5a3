package replay

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/classify"
)

// SQLite keeps a hard cap on bound parameters; 8 columns per row keeps
// this chunk well under it.
const insertChunk = 100

const sinkSchema = `
CREATE TABLE IF NOT EXISTS replay_states (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	machine_id TEXT NOT NULL,
	ts DATETIME NOT NULL,
	state TEXT NOT NULL,
	previous_state TEXT NOT NULL DEFAULT '',
	changed INTEGER NOT NULL,
	mean_temp REAL NOT NULL,
	trend REAL,
	explanation TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replay_states_machine_ts ON replay_states(machine_id, ts);
`

// Sink writes replay outcomes into a SQLite results database. The
// caller owns the connection.
type Sink struct {
	db *sql.DB
}

func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Init creates the results table. Safe to call on an existing file;
// repeated runs append to it.
func (s *Sink) Init() error {
	_, err := s.db.Exec(sinkSchema)
	return err
}

func (s *Sink) WriteOutcomes(outcomes []Outcome) error {
	for start := 0; start < len(outcomes); start += insertChunk {
		end := start + insertChunk
		if end > len(outcomes) {
			end = len(outcomes)
		}
		if err := s.insertBatch(outcomes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) insertBatch(batch []Outcome) error {
	if len(batch) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("INSERT INTO replay_states (machine_id, ts, state, previous_state, changed, mean_temp, trend, explanation) VALUES ")
	args := make([]any, 0, len(batch)*8)
	for i, o := range batch {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?,?,?,?,?,?,?,?)")
		expl, err := json.Marshal(o.Result.Explanation)
		if err != nil {
			return fmt.Errorf("marshal explanation: %w", err)
		}
		args = append(args,
			o.Sample.MachineID,
			o.Sample.Timestamp.UTC(),
			string(o.Result.State),
			string(o.Previous),
			o.Changed,
			o.Result.Explanation.MeanTemp,
			o.Result.Explanation.Trend,
			string(expl),
		)
	}
	_, err := s.db.Exec(b.String(), args...)
	return err
}

// StateCount is one state's share of a stored run.
type StateCount struct {
	State classify.MachineState
	Count int
}

// Stats summarizes a stored run.
type Stats struct {
	Samples     int
	Machines    int
	Transitions int
	States      []StateCount
}

func (s *Sink) Stats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT machine_id) FROM replay_states").Scan(&st.Samples, &st.Machines); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM replay_states WHERE changed = 1 AND previous_state != ''").Scan(&st.Transitions); err != nil {
		return Stats{}, err
	}
	rows, err := s.db.Query("SELECT state, COUNT(*) FROM replay_states GROUP BY state ORDER BY COUNT(*) DESC, state")
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sc StateCount
		if err := rows.Scan(&sc.State, &sc.Count); err != nil {
			return Stats{}, err
		}
		st.States = append(st.States, sc)
	}
	return st, rows.Err()
}
