package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DailySummary is the per-plant rollup of one UTC day of metrics: the step
// count plus sums of the headline fields.
type DailySummary struct {
	Count      int     `json:"count"`
	ET0MM      float64 `json:"ET0_mm"`
	ETcModelMM float64 `json:"ETc_model_mm"`
	ETcObsMM   float64 `json:"ETc_obs_mm"`
	Ke         float64 `json:"Ke"`
	Ks         float64 `json:"Ks"`
}

const dayLayout = "2006-01-02"

// RollupDaily aggregates all metrics of the UTC day containing `day` into
// metrics_daily, one row per plant. Re-running replaces previous rollups for
// that day. Returns the number of plants summarized.
func (s *SQLiteStore) RollupDaily(ctx context.Context, day time.Time) (int, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT plant_id, payload FROM metrics
		WHERE ts >= ? AND ts < ?`, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("storage: rollup query: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]*DailySummary)
	for rows.Next() {
		var plantID string
		var payload []byte
		if err := rows.Scan(&plantID, &payload); err != nil {
			return 0, fmt.Errorf("storage: rollup scan: %w", err)
		}
		var res struct {
			ET0MM      float64  `json:"ET0_mm"`
			ETcModelMM float64  `json:"ETc_model_mm"`
			ETcObsMM   *float64 `json:"ETc_obs_mm"`
			Ke         float64  `json:"Ke"`
			Ks         float64  `json:"Ks"`
		}
		if err := json.Unmarshal(payload, &res); err != nil {
			return 0, fmt.Errorf("storage: rollup decode %s: %w", plantID, err)
		}
		sum, ok := sums[plantID]
		if !ok {
			sum = &DailySummary{}
			sums[plantID] = sum
		}
		sum.Count++
		sum.ET0MM += res.ET0MM
		sum.ETcModelMM += res.ETcModelMM
		if res.ETcObsMM != nil {
			sum.ETcObsMM += *res.ETcObsMM
		}
		sum.Ke += res.Ke
		sum.Ks += res.Ks
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	dayKey := start.Format(dayLayout)
	for plantID, sum := range sums {
		payload, err := json.Marshal(sum)
		if err != nil {
			return 0, fmt.Errorf("storage: rollup encode %s: %w", plantID, err)
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO metrics_daily (day, plant_id, payload) VALUES (?, ?, ?)
			ON CONFLICT(day, plant_id) DO UPDATE SET payload = excluded.payload`,
			dayKey, plantID, string(payload)); err != nil {
			return 0, fmt.Errorf("storage: rollup upsert %s: %w", plantID, err)
		}
	}
	return len(sums), nil
}

// GetDailySummary reads one plant's rollup for the UTC day containing `day`.
func (s *SQLiteStore) GetDailySummary(ctx context.Context, plantID string, day time.Time) (DailySummary, bool, error) {
	dayKey := day.UTC().Truncate(24 * time.Hour).Format(dayLayout)
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM metrics_daily WHERE day = ? AND plant_id = ?`,
		dayKey, plantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return DailySummary{}, false, nil
	}
	if err != nil {
		return DailySummary{}, false, fmt.Errorf("storage: get rollup %s/%s: %w", dayKey, plantID, err)
	}
	var sum DailySummary
	if err := json.Unmarshal(payload, &sum); err != nil {
		return DailySummary{}, false, fmt.Errorf("storage: decode rollup %s/%s: %w", dayKey, plantID, err)
	}
	return sum, true, nil
}
