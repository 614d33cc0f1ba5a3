package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

func (r *Repository) CreateConnection(ctx context.Context, conn ConnectionRecord) (string, error) {
	id := uuid.NewString()
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO connections (id, name, db_type, host, port, user_name, password_enc, database_name, ssl_mode, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`,
		id, conn.Name, conn.Type, conn.Host, conn.Port, conn.User, conn.Password, conn.Database, conn.SSLMode,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetConnection(ctx context.Context, id string) (ConnectionRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, name, db_type, host, port, user_name, password_enc, database_name, ssl_mode, created_at
		FROM connections WHERE id=$1`, id)
	var rec ConnectionRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Host, &rec.Port, &rec.User, &rec.Password, &rec.Database, &rec.SSLMode, &rec.CreatedAt); err != nil {
		return ConnectionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListConnections(ctx context.Context) ([]ConnectionRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, name, db_type, host, port, user_name, password_enc, database_name, ssl_mode, created_at
		FROM connections ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ConnectionRecord{}
	for rows.Next() {
		var rec ConnectionRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Host, &rec.Port, &rec.User, &rec.Password, &rec.Database, &rec.SSLMode, &rec.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

func (r *Repository) DeleteConnection(ctx context.Context, id string) error {
	tag, err := r.Store.Pool.Exec(ctx, `DELETE FROM connections WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateMachine(ctx context.Context, rec MachineRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO machines (unit_id, name, enabled, source_json, thresholds_json, poll_interval_seconds, zone_count, status, status_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())`,
		rec.UnitID, rec.Name, rec.Enabled, rec.SourceJSON, rec.ThresholdsJSON, rec.PollIntervalSeconds, rec.ZoneCount, rec.Status, rec.StatusReason,
	)
	return err
}

func (r *Repository) GetMachine(ctx context.Context, unitID string) (MachineRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT unit_id, name, enabled, source_json, thresholds_json, poll_interval_seconds, zone_count, status, status_reason, created_at, updated_at
		FROM machines WHERE unit_id=$1`, unitID)
	var rec MachineRecord
	if err := row.Scan(&rec.UnitID, &rec.Name, &rec.Enabled, &rec.SourceJSON, &rec.ThresholdsJSON, &rec.PollIntervalSeconds, &rec.ZoneCount, &rec.Status, &rec.StatusReason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return MachineRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListMachines(ctx context.Context) ([]MachineRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT unit_id, name, enabled, source_json, thresholds_json, poll_interval_seconds, zone_count, status, status_reason, created_at, updated_at
		FROM machines ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []MachineRecord{}
	for rows.Next() {
		var rec MachineRecord
		if err := rows.Scan(&rec.UnitID, &rec.Name, &rec.Enabled, &rec.SourceJSON, &rec.ThresholdsJSON, &rec.PollIntervalSeconds, &rec.ZoneCount, &rec.Status, &rec.StatusReason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

func (r *Repository) ListEnabledMachines(ctx context.Context) ([]MachineRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT unit_id, name, enabled, source_json, thresholds_json, poll_interval_seconds, zone_count, status, status_reason, created_at, updated_at
		FROM machines WHERE enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []MachineRecord{}
	for rows.Next() {
		var rec MachineRecord
		if err := rows.Scan(&rec.UnitID, &rec.Name, &rec.Enabled, &rec.SourceJSON, &rec.ThresholdsJSON, &rec.PollIntervalSeconds, &rec.ZoneCount, &rec.Status, &rec.StatusReason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

func (r *Repository) UpdateMachine(ctx context.Context, rec MachineRecord) error {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE machines
		SET name=$1, source_json=$2, thresholds_json=$3, poll_interval_seconds=$4, zone_count=$5, updated_at=now()
		WHERE unit_id=$6`,
		rec.Name, rec.SourceJSON, rec.ThresholdsJSON, rec.PollIntervalSeconds, rec.ZoneCount, rec.UnitID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetMachineEnabled(ctx context.Context, unitID string, enabled bool) error {
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE machines SET enabled=$1, updated_at=now() WHERE unit_id=$2`, enabled, unitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetMachineStatus(ctx context.Context, unitID, status string, reason []byte) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE machines SET status=$1, status_reason=$2, updated_at=now() WHERE unit_id=$3`, status, reason, unitID)
	return err
}

func (r *Repository) DeleteMachine(ctx context.Context, unitID string) error {
	tag, err := r.Store.Pool.Exec(ctx, `DELETE FROM machines WHERE unit_id=$1`, unitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) RecordStateChange(ctx context.Context, rec StateRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO machine_states (machine_id, ts_utc, state, previous_state, mean_temp, trend, explanation, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())`,
		rec.MachineID, rec.TSUTC, rec.State, rec.PreviousState, rec.MeanTemp, rec.Trend, rec.Explanation,
	)
	return err
}

func (r *Repository) UpsertCurrentState(ctx context.Context, rec StateRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO machine_current (machine_id, state, previous_state, ts_utc, mean_temp, trend, explanation, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (machine_id) DO UPDATE
		SET state=EXCLUDED.state, previous_state=EXCLUDED.previous_state, ts_utc=EXCLUDED.ts_utc, mean_temp=EXCLUDED.mean_temp, trend=EXCLUDED.trend, explanation=EXCLUDED.explanation, updated_at=now()`,
		rec.MachineID, rec.State, rec.PreviousState, rec.TSUTC, rec.MeanTemp, rec.Trend, rec.Explanation,
	)
	return err
}

func (r *Repository) GetCurrentState(ctx context.Context, machineID string) (StateRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT machine_id, state, previous_state, ts_utc, mean_temp, trend, explanation
		FROM machine_current WHERE machine_id=$1`, machineID)
	var rec StateRecord
	if err := row.Scan(&rec.MachineID, &rec.State, &rec.PreviousState, &rec.TSUTC, &rec.MeanTemp, &rec.Trend, &rec.Explanation); err != nil {
		return StateRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListStateHistory(ctx context.Context, machineID string, limit int) ([]StateRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, machine_id, ts_utc, state, previous_state, mean_temp, trend, explanation
		FROM machine_states WHERE machine_id=$1 ORDER BY ts_utc DESC LIMIT $2`, machineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []StateRecord{}
	for rows.Next() {
		var rec StateRecord
		if err := rows.Scan(&rec.ID, &rec.MachineID, &rec.TSUTC, &rec.State, &rec.PreviousState, &rec.MeanTemp, &rec.Trend, &rec.Explanation); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

func (r *Repository) CreateAlert(ctx context.Context, alert AlertRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alerts (machine_id, ts_utc, state, message, explanation, treated)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		alert.MachineID, alert.TSUTC, alert.State, alert.Message, alert.Explanation, alert.Treated,
	)
	return err
}

func (r *Repository) ListAlerts(ctx context.Context, machineID string, limit int) ([]AlertRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, machine_id, ts_utc, state, message, explanation, treated
		FROM alerts WHERE machine_id=$1 ORDER BY ts_utc DESC LIMIT $2`, machineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertRecord{}
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.MachineID, &rec.TSUTC, &rec.State, &rec.Message, &rec.Explanation, &rec.Treated); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

func (r *Repository) GetLastAlert(ctx context.Context, machineID string) (time.Time, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT ts_utc FROM alerts WHERE machine_id=$1 ORDER BY ts_utc DESC LIMIT 1`, machineID)
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		return time.Time{}, ErrNotFound
	}
	return ts, nil
}
