package store

import "context"

// TaskMetrics mirrors the task_metrics view's per-task rollup.
type TaskMetrics struct {
	TaskID                int64
	SessionCount          int64
	TotalDurationSeconds  int64
	TotalTokensIn         int64
	TotalTokensOut        int64
	TotalCostDollars      float64
	TotalLinesAdded       int64
	TotalLinesRemoved     int64
}

// GetTaskMetrics loads the task_metrics rollup for one task, used by
// session-stats and the review summary verb.
func (s *Store) GetTaskMetrics(ctx context.Context, taskID int64) (*TaskMetrics, error) {
	var m TaskMetrics
	err := s.readDB.QueryRowContext(ctx, `
		SELECT task_id, session_count, total_duration_seconds, total_tokens_in,
		       total_tokens_out, total_cost_dollars, total_lines_added, total_lines_removed
		FROM task_metrics WHERE task_id = ?`, taskID).Scan(
		&m.TaskID, &m.SessionCount, &m.TotalDurationSeconds, &m.TotalTokensIn,
		&m.TotalTokensOut, &m.TotalCostDollars, &m.TotalLinesAdded, &m.TotalLinesRemoved)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// VelocityBucket mirrors one row of the v_velocity view.
type VelocityBucket struct {
	WeekBucket     string
	ClosedCount    int64
	AvgCostDollars float64
}

// ListVelocity returns the weekly velocity buckets, most recent first.
func (s *Store) ListVelocity(ctx context.Context) ([]VelocityBucket, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT week_bucket, closed_count, avg_cost_dollars FROM v_velocity ORDER BY week_bucket DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VelocityBucket
	for rows.Next() {
		var v VelocityBucket
		if err := rows.Scan(&v.WeekBucket, &v.ClosedCount, &v.AvgCostDollars); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
