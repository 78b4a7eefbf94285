package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/projectplant/etkc/internal/model"
)

const (
	defaultMetricsLimit = 200
	maxMetricsLimit     = 2000
)

const schema = `
CREATE TABLE IF NOT EXISTS pots (
	id         TEXT PRIMARY KEY,
	area_m2    REAL NOT NULL,
	depth_m    REAL NOT NULL,
	theta_fc   REAL NOT NULL,
	theta_wp   REAL NOT NULL,
	class_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS state (
	plant_id           TEXT PRIMARY KEY,
	Kcb_struct         REAL NOT NULL,
	c_aero             REAL NOT NULL,
	c_AC               REAL NOT NULL,
	De_mm              REAL NOT NULL,
	Dr_mm              REAL NOT NULL,
	REW_mm             REAL NOT NULL,
	tau_e_h            REAL NOT NULL,
	Ke_prev            REAL NOT NULL,
	last_irrigation_ts REAL
);
CREATE TABLE IF NOT EXISTS config (
	plant_id TEXT PRIMARY KEY,
	payload  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS metrics (
	ts       INTEGER NOT NULL,
	plant_id TEXT NOT NULL,
	payload  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_plant_ts ON metrics(plant_id, ts);
CREATE TABLE IF NOT EXISTS metrics_daily (
	day      TEXT NOT NULL,
	plant_id TEXT NOT NULL,
	payload  TEXT NOT NULL,
	PRIMARY KEY (day, plant_id)
);
`

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// The pure-Go driver serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) UpsertPot(ctx context.Context, plantID string, static model.PotStatic) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pots (id, area_m2, depth_m, theta_fc, theta_wp, class_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			area_m2 = excluded.area_m2,
			depth_m = excluded.depth_m,
			theta_fc = excluded.theta_fc,
			theta_wp = excluded.theta_wp,
			class_name = excluded.class_name`,
		plantID, static.PotAreaM2, static.DepthM, static.ThetaFC, static.ThetaWP, static.ClassName)
	if err != nil {
		return fmt.Errorf("storage: upsert pot %s: %w", plantID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPot(ctx context.Context, plantID string) (model.PotStatic, error) {
	var p model.PotStatic
	err := s.db.QueryRowContext(ctx, `
		SELECT area_m2, depth_m, theta_fc, theta_wp, class_name
		FROM pots WHERE id = ?`, plantID).
		Scan(&p.PotAreaM2, &p.DepthM, &p.ThetaFC, &p.ThetaWP, &p.ClassName)
	if err == sql.ErrNoRows {
		return model.PotStatic{}, ErrPotNotFound
	}
	if err != nil {
		return model.PotStatic{}, fmt.Errorf("storage: get pot %s: %w", plantID, err)
	}
	return p, nil
}

func (s *SQLiteStore) ListPots(ctx context.Context) ([]Pot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, area_m2, depth_m, theta_fc, theta_wp, class_name
		FROM pots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list pots: %w", err)
	}
	defer rows.Close()
	var out []Pot
	for rows.Next() {
		var p Pot
		if err := rows.Scan(&p.ID, &p.Static.PotAreaM2, &p.Static.DepthM,
			&p.Static.ThetaFC, &p.Static.ThetaWP, &p.Static.ClassName); err != nil {
			return nil, fmt.Errorf("storage: scan pot: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetState(ctx context.Context, plantID string) (model.PotState, bool, error) {
	var st model.PotState
	var last sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT Kcb_struct, c_aero, c_AC, De_mm, Dr_mm, REW_mm, tau_e_h, Ke_prev, last_irrigation_ts
		FROM state WHERE plant_id = ?`, plantID).
		Scan(&st.KcbStruct, &st.CAero, &st.CAC, &st.DeMM, &st.DrMM,
			&st.REWMM, &st.TauEH, &st.KePrev, &last)
	if err == sql.ErrNoRows {
		return model.PotState{}, false, nil
	}
	if err != nil {
		return model.PotState{}, false, fmt.Errorf("storage: get state %s: %w", plantID, err)
	}
	if last.Valid {
		v := last.Float64
		st.LastIrrigationTS = &v
	}
	return st, true, nil
}

func (s *SQLiteStore) PutState(ctx context.Context, plantID string, state model.PotState) error {
	var last any
	if state.LastIrrigationTS != nil {
		last = *state.LastIrrigationTS
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (plant_id, Kcb_struct, c_aero, c_AC, De_mm, Dr_mm, REW_mm, tau_e_h, Ke_prev, last_irrigation_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plant_id) DO UPDATE SET
			Kcb_struct = excluded.Kcb_struct,
			c_aero = excluded.c_aero,
			c_AC = excluded.c_AC,
			De_mm = excluded.De_mm,
			Dr_mm = excluded.Dr_mm,
			REW_mm = excluded.REW_mm,
			tau_e_h = excluded.tau_e_h,
			Ke_prev = excluded.Ke_prev,
			last_irrigation_ts = excluded.last_irrigation_ts`,
		plantID, state.KcbStruct, state.CAero, state.CAC, state.DeMM, state.DrMM,
		state.REWMM, state.TauEH, state.KePrev, last)
	if err != nil {
		return fmt.Errorf("storage: put state %s: %w", plantID, err)
	}
	return nil
}

func (s *SQLiteStore) PatchState(ctx context.Context, plantID string, patch model.PotStatePatch) (model.PotState, error) {
	static, err := s.GetPot(ctx, plantID)
	if err != nil {
		return model.PotState{}, err
	}
	current, err := StateOrDefault(ctx, s, plantID, static.ClassName)
	if err != nil {
		return model.PotState{}, err
	}
	merged := patch.Apply(current)
	if err := s.PutState(ctx, plantID, merged); err != nil {
		return model.PotState{}, err
	}
	return merged, nil
}

func (s *SQLiteStore) GetConfig(ctx context.Context, plantID string) (model.StepConfig, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM config WHERE plant_id = ?`, plantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.StepConfig{}, false, nil
	}
	if err != nil {
		return model.StepConfig{}, false, fmt.Errorf("storage: get config %s: %w", plantID, err)
	}
	var cfg model.StepConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return model.StepConfig{}, false, fmt.Errorf("storage: decode config %s: %w", plantID, err)
	}
	return cfg, true, nil
}

func (s *SQLiteStore) PutConfig(ctx context.Context, plantID string, cfg model.StepConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage: encode config %s: %w", plantID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config (plant_id, payload) VALUES (?, ?)
		ON CONFLICT(plant_id) DO UPDATE SET payload = excluded.payload`,
		plantID, string(payload))
	if err != nil {
		return fmt.Errorf("storage: put config %s: %w", plantID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendMetric(ctx context.Context, rec model.MetricRecord) error {
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("storage: encode metric %s: %w", rec.PlantID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metrics (ts, plant_id, payload) VALUES (?, ?, ?)`,
		rec.Timestamp.UnixMilli(), rec.PlantID, string(payload))
	if err != nil {
		return fmt.Errorf("storage: append metric %s: %w", rec.PlantID, err)
	}
	return nil
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, plantID string, since *time.Time, limit int) ([]model.MetricRecord, error) {
	if limit <= 0 {
		limit = defaultMetricsLimit
	}
	if limit > maxMetricsLimit {
		limit = maxMetricsLimit
	}
	q := `SELECT ts, payload FROM metrics WHERE plant_id = ?`
	args := []any{plantID}
	if since != nil {
		q += ` AND ts >= ?`
		args = append(args, since.UnixMilli())
	}
	// Newest-bounded: take the most recent rows, then return them in
	// chronological order.
	q += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list metrics %s: %w", plantID, err)
	}
	defer rows.Close()
	var out []model.MetricRecord
	for rows.Next() {
		var ms int64
		var payload []byte
		if err := rows.Scan(&ms, &payload); err != nil {
			return nil, fmt.Errorf("storage: scan metric: %w", err)
		}
		var res model.StepResult
		if err := json.Unmarshal(payload, &res); err != nil {
			return nil, fmt.Errorf("storage: decode metric %s: %w", plantID, err)
		}
		out = append(out, model.MetricRecord{
			Timestamp: time.UnixMilli(ms).UTC(),
			PlantID:   plantID,
			Result:    res,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
