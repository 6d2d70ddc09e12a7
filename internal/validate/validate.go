// Package validate implements Tusk's integrity validator (spec.md 4.J):
// a read-only sweep for foreign-key violations, closed_reason
// inconsistencies, expired non-terminal tasks, dependency cycles,
// orphaned sessions/progress rows, and enum values that have drifted out
// of the current config.json.
package validate

import (
	"context"
	"fmt"
	"time"

	"tusk/internal/config"
	"tusk/internal/store"
)

// ForeignKeyViolation mirrors one row of SQLite's PRAGMA foreign_key_check.
type ForeignKeyViolation struct {
	Table       string `json:"table"`
	RowID       int64  `json:"row_id"`
	ParentTable string `json:"parent_table"`
}

// EnumViolation names a column whose stored value is not in the
// currently configured enum list.
type EnumViolation struct {
	Table  string `json:"table"`
	RowID  int64  `json:"row_id"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Report is the full result of one validation sweep. A zero-value Report
// (every slice empty) means the store is consistent with the config.
type Report struct {
	ForeignKeyViolations   []ForeignKeyViolation `json:"foreign_key_violations"`
	MissingClosedReason    []int64               `json:"missing_closed_reason"`
	UnexpectedClosedReason []int64               `json:"unexpected_closed_reason"`
	ExpiredNonTerminal     []int64               `json:"expired_non_terminal"`
	DependencyCycle        []int64               `json:"dependency_cycle,omitempty"`
	OrphanedSessions       []int64               `json:"orphaned_sessions"`
	OrphanedProgress       []int64               `json:"orphaned_progress"`
	EnumViolations         []EnumViolation       `json:"enum_violations"`
}

// Clean reports whether the sweep found nothing wrong.
func (r *Report) Clean() bool {
	return len(r.ForeignKeyViolations) == 0 &&
		len(r.MissingClosedReason) == 0 &&
		len(r.UnexpectedClosedReason) == 0 &&
		len(r.ExpiredNonTerminal) == 0 &&
		len(r.DependencyCycle) == 0 &&
		len(r.OrphanedSessions) == 0 &&
		len(r.OrphanedProgress) == 0 &&
		len(r.EnumViolations) == 0
}

// Engine runs validation sweeps against a store under a given config.
type Engine struct {
	Store  *store.Store
	Config *config.Config
}

// New builds a validation Engine.
func New(st *store.Store, cfg *config.Config) *Engine {
	return &Engine{Store: st, Config: cfg}
}

// Run executes every check in spec.md 4.J and returns the aggregate report.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	fkViolations, err := e.foreignKeyViolations(ctx)
	if err != nil {
		return nil, fmt.Errorf("foreign key check: %w", err)
	}
	report.ForeignKeyViolations = fkViolations

	terminal := e.Config.TerminalStatus()

	missing, err := e.queryIDs(ctx, `SELECT id FROM tasks WHERE status = ? AND closed_reason IS NULL`, terminal)
	if err != nil {
		return nil, fmt.Errorf("missing closed_reason check: %w", err)
	}
	report.MissingClosedReason = missing

	unexpected, err := e.queryIDs(ctx, `SELECT id FROM tasks WHERE status <> ? AND closed_reason IS NOT NULL`, terminal)
	if err != nil {
		return nil, fmt.Errorf("unexpected closed_reason check: %w", err)
	}
	report.UnexpectedClosedReason = unexpected

	now := time.Now().UTC().Format(time.RFC3339)
	expired, err := e.queryIDs(ctx,
		`SELECT id FROM tasks WHERE status <> ? AND expires_at IS NOT NULL AND expires_at < ?`, terminal, now)
	if err != nil {
		return nil, fmt.Errorf("expired non-terminal check: %w", err)
	}
	report.ExpiredNonTerminal = expired

	cycle, err := e.Store.FindAnyCycle(ctx)
	if err != nil {
		return nil, fmt.Errorf("cycle check: %w", err)
	}
	report.DependencyCycle = cycle

	orphanedSessions, err := e.queryIDs(ctx,
		`SELECT ts.id FROM task_sessions ts LEFT JOIN tasks t ON t.id = ts.task_id WHERE t.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("orphaned session check: %w", err)
	}
	report.OrphanedSessions = orphanedSessions

	orphanedProgress, err := e.queryIDs(ctx,
		`SELECT tp.id FROM task_progress tp LEFT JOIN tasks t ON t.id = tp.task_id WHERE t.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("orphaned progress check: %w", err)
	}
	report.OrphanedProgress = orphanedProgress

	enumViolations, err := e.enumViolations(ctx)
	if err != nil {
		return nil, fmt.Errorf("enum check: %w", err)
	}
	report.EnumViolations = enumViolations

	return report, nil
}

func (e *Engine) foreignKeyViolations(ctx context.Context) ([]ForeignKeyViolation, error) {
	rows, err := e.Store.ReadDB().QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ForeignKeyViolation
	for rows.Next() {
		var table, parentTable string
		var rowID int64
		var fkIndex int64
		if err := rows.Scan(&table, &rowID, &parentTable, &fkIndex); err != nil {
			return nil, err
		}
		out = append(out, ForeignKeyViolation{Table: table, RowID: rowID, ParentTable: parentTable})
	}
	return out, rows.Err()
}

func (e *Engine) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := e.Store.ReadDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// enumColumn is one tasks column checked against a currently configured
// enum list. Both required and nullable columns are queried with an
// IS NOT NULL guard, since a NULL value on a nullable column is never
// itself a violation.
type enumColumn struct {
	column string
	valid  []string
}

func (e *Engine) enumViolations(ctx context.Context) ([]EnumViolation, error) {
	columns := []enumColumn{
		{"priority", e.Config.Priorities},
		{"task_type", e.Config.TaskTypes},
		{"domain", e.Config.Domains},
		{"complexity", e.Config.Complexity},
		{"closed_reason", e.Config.ClosedReasons},
	}

	var out []EnumViolation
	for _, col := range columns {
		if len(col.valid) == 0 {
			// An unconfigured enum list (e.g. no domains configured at
			// all) can't drift, since every value would violate it.
			continue
		}
		query := fmt.Sprintf(`SELECT id, %s FROM tasks WHERE %s IS NOT NULL`, col.column, col.column)
		rows, err := e.Store.ReadDB().QueryContext(ctx, query)
		if err != nil {
			return nil, err
		}
		violations, err := scanEnumRows(rows, "tasks", col.column, col.valid)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, violations...)
	}
	return out, nil
}

func scanEnumRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}, table, column string, valid []string) ([]EnumViolation, error) {
	validSet := make(map[string]bool, len(valid))
	for _, v := range valid {
		validSet[v] = true
	}

	var out []EnumViolation
	for rows.Next() {
		var id int64
		var value string
		if err := rows.Scan(&id, &value); err != nil {
			return nil, err
		}
		if !validSet[value] {
			out = append(out, EnumViolation{Table: table, RowID: id, Column: column, Value: value})
		}
	}
	return out, rows.Err()
}
