// Package loop implements Tusk's autonomous loop dispatcher (spec.md
// 4.H): repeatedly select the top ready task, classify it as a chain
// head or a plain task, invoke the configured external agent against the
// matching skill, and stop on exhaustion, a tripped circuit breaker, or
// an aborting agent failure.
package loop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync/atomic"

	"tusk/internal/config"
	"tusk/internal/logging"
	"tusk/internal/store"
	"tusk/internal/task"
	"tusk/internal/tuskerr"
)

// Runner invokes the external agent for one task and returns its exit
// code and combined output. Abstracted behind an interface so tests can
// substitute a fake agent rather than shelling out.
type Runner interface {
	Run(ctx context.Context, agentBinary, skill string, taskID int64, onFailure string) (exitCode int, output string, err error)
}

// execRunner shells out to the configured agent binary, grounded on the
// teacher's adapter/git command pattern: context-bound exec.CommandContext,
// combined stdout+stderr capture, no shell interpolation.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, agentBinary, skill string, taskID int64, onFailure string) (int, string, error) {
	args := []string{"-p", "/" + skill, strconv.FormatInt(taskID, 10)}
	if onFailure != "" {
		args = append(args, "--on-failure", onFailure)
	}
	// #nosec G204 -- agentBinary comes from validated project config, not user input
	cmd := exec.CommandContext(ctx, agentBinary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return -1, out.String(), fmt.Errorf("invoke agent: %w", err)
		}
	}
	return exitCode, out.String(), nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if e, ok := err.(*exec.ExitError); ok {
		*target = e
		return true
	}
	return false
}

// DispatchRecord is one task's dispatch outcome within a loop run.
type DispatchRecord struct {
	TaskID   int64
	Skill    string
	ExitCode int
	Output   string
	Failed   bool
}

// Result summarizes a complete loop run.
type Result struct {
	Dispatched []DispatchRecord
	StopReason string // "max_tasks_reached" | "no_ready_tasks" | "circuit_open" | "agent_aborted"
}

// Dispatcher runs the autonomous loop. Config is held behind an
// atomic.Pointer (the same pattern the teacher uses for kanban.Engine's
// hot-swapped workflow state) rather than a plain field, because
// ConfigWatcher reloads and swaps it in from its own goroutine while
// Run may be reading it between task dispatches.
type Dispatcher struct {
	Store     *store.Store
	Task      *task.Engine
	Breaker   *CircuitBreaker
	Log       *logging.Logger
	Runner    Runner
	configPtr atomic.Pointer[config.Config]
}

// New builds a Dispatcher with the default (real-process) Runner.
func New(st *store.Store, cfg *config.Config, taskEngine *task.Engine, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.NewNop()
	}
	d := &Dispatcher{
		Store:   st,
		Task:    taskEngine,
		Breaker: NewCircuitBreaker(DefaultCircuitBreakerThreshold),
		Log:     log,
		Runner:  execRunner{},
	}
	d.SetConfig(cfg)
	return d
}

// Config returns the dispatcher's current config, safe to call
// concurrently with SetConfig.
func (d *Dispatcher) Config() *config.Config {
	return d.configPtr.Load()
}

// SetConfig atomically swaps the dispatcher's config, used by
// ConfigWatcher to apply a reloaded config.json without racing Run.
func (d *Dispatcher) SetConfig(cfg *config.Config) {
	d.configPtr.Store(cfg)
}

// Run drives the loop until maxTasks is reached, the ready queue is
// empty, the circuit breaker trips, or an agent failure aborts the run
// per the configured on_failure policy ("skip" moves past a failed task,
// "abort" stops the loop immediately — the conservative default matching
// spec.md 4.H's literal "a non-zero exit ... terminates the loop").
func (d *Dispatcher) Run(ctx context.Context, maxTasks int) (*Result, error) {
	if maxTasks <= 0 {
		maxTasks = d.Config().Loop.MaxTasks
	}

	result := &Result{}
	dispatched := make(map[int64]bool)

	for len(result.Dispatched) < maxTasks {
		if d.Breaker.IsOpen() {
			result.StopReason = "circuit_open"
			break
		}

		// Re-read the config each iteration: ConfigWatcher may have
		// hot-swapped it between dispatches, and on_failure/agent_binary
		// are meant to take effect without restarting the loop.
		cfg := d.Config()
		onFailure := cfg.Loop.OnFailure
		if onFailure == "" {
			onFailure = "abort"
		}

		t, err := d.Task.Select(ctx, "", dispatched)
		if err != nil {
			var tErr *tuskerr.Error
			if errors.As(err, &tErr) && tErr.Category == tuskerr.CategoryPolicyGated {
				result.StopReason = "no_ready_tasks"
				break
			}
			return result, err
		}

		skill, err := d.classifySkill(ctx, cfg, t.ID)
		if err != nil {
			return result, err
		}

		// Mark dispatched before invoking the agent: the silent-failure
		// guard requires that even a clean (exit 0) agent run that
		// leaves the task non-terminal is never retried within this loop.
		dispatched[t.ID] = true

		exitCode, output, err := d.Runner.Run(ctx, cfg.Loop.AgentBinary, skill, t.ID, onFailure)
		if err != nil {
			return result, fmt.Errorf("dispatch task %d: %w", t.ID, err)
		}

		rec := DispatchRecord{TaskID: t.ID, Skill: skill, ExitCode: exitCode, Output: output, Failed: exitCode != 0}
		result.Dispatched = append(result.Dispatched, rec)

		if exitCode != 0 {
			d.Log.Warn("agent exited non-zero", "task_id", t.ID, "skill", skill, "exit_code", exitCode)
			if d.Breaker.RecordFailure() {
				result.StopReason = "circuit_open"
				break
			}
			if onFailure == "abort" {
				result.StopReason = "agent_aborted"
				break
			}
			continue
		}
		d.Breaker.RecordSuccess()
	}

	if result.StopReason == "" {
		result.StopReason = "max_tasks_reached"
	}
	return result, nil
}

// classifySkill reports whether taskID is a chain head (v_chain_heads)
// and returns the configured skill name for that case vs. a plain task.
func (d *Dispatcher) classifySkill(ctx context.Context, cfg *config.Config, taskID int64) (string, error) {
	heads, err := d.Store.ListChainHeads(ctx)
	if err != nil {
		return "", err
	}
	for _, h := range heads {
		if h.ID == taskID {
			return cfg.Loop.ChainSkill, nil
		}
	}
	return cfg.Loop.TuskSkill, nil
}
