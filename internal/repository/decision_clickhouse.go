package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
)

// ClickHouseHistory stores emitted decisions and periodic arm-posterior
// snapshots for observability. The engine only writes; the HTTP API reads
// recent decisions back.
type ClickHouseHistory struct {
	db             *sql.DB
	decisionTable  string
	posteriorTable string
}

func NewClickHouseHistory(db *sql.DB, database string) *ClickHouseHistory {
	return &ClickHouseHistory{
		db:             db,
		decisionTable:  database + ".decisions",
		posteriorTable: database + ".arm_posteriors",
	}
}

// Schema returns the DDL statements for the observability tables.
func Schema(database string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + database,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decisions (
			event_id String,
			ts DateTime64(3),
			symbol String,
			timeframe String,
			bar_index Int64,
			direction Int8,
			alpha Float64,
			chosen_arm String,
			pred_cal_bps Float64,
			veto_reasons Array(String)
		) ENGINE=MergeTree ORDER BY (symbol, timeframe, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.arm_posteriors (
			instance String,
			ts DateTime64(3),
			arm String,
			pulls Int64,
			mean_reward Float64,
			reward_variance Float64
		) ENGINE=MergeTree ORDER BY (instance, arm, ts)`, database),
	}
}

func (h *ClickHouseHistory) Emit(ctx context.Context, d *models.Decision) error {
	reasons := make([]string, 0, len(d.VetoReasons))
	for _, r := range d.VetoReasons {
		reasons = append(reasons, string(r))
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (event_id, ts, symbol, timeframe, bar_index, direction, alpha, chosen_arm, pred_cal_bps, veto_reasons) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		h.decisionTable,
	)
	if _, err := h.db.ExecContext(ctx, q,
		d.EventID, d.Timestamp, d.Symbol, d.Timeframe, d.BarIndex,
		int8(d.Direction), d.Alpha, d.ChosenArm, d.PredCalBps, reasons,
	); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (h *ClickHouseHistory) Recent(ctx context.Context, symbol, timeframe string, limit int) ([]*models.Decision, error) {
	q := fmt.Sprintf(
		"SELECT event_id, ts, bar_index, direction, alpha, chosen_arm, pred_cal_bps, veto_reasons FROM %s WHERE symbol = ? AND timeframe = ? ORDER BY ts DESC LIMIT %d",
		h.decisionTable, limit,
	)
	rows, err := h.db.QueryContext(ctx, q, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*models.Decision
	for rows.Next() {
		d := &models.Decision{Symbol: symbol, Timeframe: timeframe}
		var dir int8
		var reasons []string
		if err := rows.Scan(&d.EventID, &d.Timestamp, &d.BarIndex, &dir, &d.Alpha, &d.ChosenArm, &d.PredCalBps, &reasons); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Direction = int(dir)
		for _, r := range reasons {
			d.VetoReasons = append(d.VetoReasons, models.VetoReason(r))
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Snapshot writes one posterior row per arm. Batched into a single
// multi-row insert to keep the per-bar overhead flat.
func (h *ClickHouseHistory) Snapshot(ctx context.Context, instance string, arms []*models.ArmStats, at time.Time) error {
	if len(arms) == 0 {
		return nil
	}
	values := make([]string, 0, len(arms))
	args := make([]interface{}, 0, len(arms)*6)
	for _, a := range arms {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, instance, at, a.ID, a.Pulls, a.Mean, a.Variance())
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (instance, ts, arm, pulls, mean_reward, reward_variance) VALUES %s",
		h.posteriorTable, strings.Join(values, ","),
	)
	if _, err := h.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert posterior snapshot: %w", err)
	}
	return nil
}

func (h *ClickHouseHistory) Close() error { return nil } // pool owned by pkg/clickhouse client

var (
	_ drepo.DecisionHistory = (*ClickHouseHistory)(nil)
	_ drepo.PosteriorSink   = (*ClickHouseHistory)(nil)
)
