// Package task implements Tusk's relational task engine: insert/update/
// close/reopen, session lifecycle gating, the dependency graph, and WSJF
// scoring (spec.md 4.B).
package task

import (
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"tusk/internal/config"
	"tusk/internal/logging"
	"tusk/internal/policy"
	"tusk/internal/store"
	"tusk/internal/tuskerr"
)

// Engine bundles the store and config a task handler needs. One Engine is
// constructed per CLI invocation, the way the teacher's dispatcher resolves
// store/config paths once and hands them to every subcommand.
type Engine struct {
	Store  *store.Store
	Config *config.Config
	Log    *logging.Logger

	// startGroup collapses concurrent task-start calls against the same
	// task id within one process into a single store round-trip, ahead
	// of the partial-unique-index race that the store layer still has to
	// handle across separate processes.
	startGroup singleflight.Group
}

// New builds an Engine.
func New(st *store.Store, cfg *config.Config, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{Store: st, Config: cfg, Log: log}
}

func (e *Engine) initialStatus() string  { return e.Config.InitialStatus() }
func (e *Engine) terminalStatus() string { return e.Config.TerminalStatus() }

// validateEnum checks value against valid, returning a tuskerr.Validation
// error with a fuzzy "did you mean" suggestion when value doesn't match.
func validateEnum(field, value string, valid []string) error {
	if value == "" {
		return nil
	}
	for _, v := range valid {
		if v == value {
			return nil
		}
	}
	suggestion := policy.SuggestEnum(value, valid)
	return tuskerr.Validation("invalid_enum", config.ValidEnumsMessage(field, value, valid, suggestion))
}

func ptrValidateEnum(field string, value *string, valid []string) error {
	if value == nil {
		return nil
	}
	return validateEnum(field, *value, valid)
}

func rollbackFriendlyf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// joinNames is a small formatting helper used across handler error text.
func joinNames(names []string) string {
	return strings.Join(names, ", ")
}

// txFunc adapts a *sql.Tx-based store call into the shape WithTx expects.
type txFunc = func(tx *sql.Tx) error
