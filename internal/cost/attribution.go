package cost

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tusk/internal/config"
	"tusk/internal/logging"
	"tusk/internal/store"
	"tusk/internal/transcript"
)

// Engine bundles everything an attribution run needs: the store to write
// back into, the pricing catalog to resolve dollar rates, and a logger
// for the "unknown model" warning spec.md 4.F calls for.
type Engine struct {
	Store   *store.Store
	Config  *config.Config
	Catalog *Catalog
	Log     *logging.Logger
}

// New builds an Engine.
func New(st *store.Store, cfg *config.Config, catalog *Catalog, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	return &Engine{Store: st, Config: cfg, Catalog: catalog, Log: log}
}

// Result summarizes one attribution run for the CLI layer to print.
type Result struct {
	Dollars      float64
	TokensIn     int64
	TokensOut    int64
	Model        string
	RequestCount int
}

// toolBreakdown walks reqs once and returns the per-tool aggregate stats
// (call count, cost, tokens) and the flat list of individual tool-call
// events, in call order. Both writeAttribution and the shared-commit-group
// split in AttributeCriterion build on this single pass.
func (e *Engine) toolBreakdown(reqs []transcript.Request) (map[string]*store.ToolCallStats, []store.ToolCallEvent) {
	perTool := make(map[string]*store.ToolCallStats)
	var events []store.ToolCallEvent
	for _, req := range reqs {
		rates := e.Catalog.Resolve(req.Model, e.Log)
		for _, split := range SplitToolCalls(req) {
			toolTotals := Totals{Input: split.MarginalInputTokens, Output: split.MarginalOutputTokens}
			toolCost := toolTotals.Dollars(rates)

			st, ok := perTool[split.ToolName]
			if !ok {
				st = &store.ToolCallStats{ToolName: split.ToolName}
				perTool[split.ToolName] = st
			}
			st.CallCount++
			st.TotalCost += toolCost
			if toolCost > st.MaxCost {
				st.MaxCost = toolCost
			}
			st.TokensIn += toolTotals.TokensIn()
			st.TokensOut += toolTotals.TokensOut()

			events = append(events, store.ToolCallEvent{
				ToolName:    split.ToolName,
				CostDollars: toolCost,
				TokensIn:    toolTotals.TokensIn(),
				TokensOut:   toolTotals.TokensOut(),
				CalledAt:    req.Timestamp,
			})
		}
	}
	return perTool, events
}

func (e *Engine) writeAttribution(ctx context.Context, tx *sql.Tx, owner store.OwnerScope, reqs []transcript.Request) (Result, error) {
	agg := AggregateRequests(reqs)
	totals := agg.CombinedTotals()
	dollars := agg.Dollars(e.Catalog)

	perTool, events := e.toolBreakdown(reqs)

	for _, st := range perTool {
		st.TotalCost = round6(st.TotalCost)
		st.MaxCost = round6(st.MaxCost)
		if err := e.Store.UpsertToolCallStats(ctx, tx, owner, *st); err != nil {
			return Result{}, err
		}
	}
	if err := e.Store.ReplaceToolCallEvents(ctx, tx, owner, events); err != nil {
		return Result{}, err
	}

	return Result{
		Dollars:      dollars,
		TokensIn:     totals.TokensIn(),
		TokensOut:    totals.TokensOut(),
		Model:        agg.DominantModel,
		RequestCount: len(reqs),
	}, nil
}

// AttributeSession runs the session attribution path: parse transcriptDir
// for the session's window, upsert tool-call stats/events, and write back
// the session's totals and dominant model, all in one transaction.
func (e *Engine) AttributeSession(ctx context.Context, sessionID int64, transcriptDir string) (Result, error) {
	sess, err := e.Store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}

	reqs, err := e.parseWindow(transcriptDir, e.SessionWindow(sess))
	if err != nil {
		return Result{}, err
	}
	return e.attributeSessionRequests(ctx, sess, reqs)
}

// SessionWindow derives a session's attribution window, exported so
// callers that route several sessions' requests in one multi-file sweep
// (transcript.RouteMany) can build Targets without duplicating this rule.
func (e *Engine) SessionWindow(sess *store.TaskSession) transcript.Window {
	window := transcript.Window{Start: sess.StartedAt}
	if sess.EndedAt != nil {
		window.End = *sess.EndedAt
	}
	return window
}

// AttributeSessionFromRequests runs the session attribution path against
// requests already parsed and routed by the caller (e.g. a single
// transcript.RouteMany sweep shared across a task's sessions), instead of
// re-reading transcriptDir from scratch.
func (e *Engine) AttributeSessionFromRequests(ctx context.Context, sessionID int64, reqs []transcript.Request) (Result, error) {
	sess, err := e.Store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	return e.attributeSessionRequests(ctx, sess, reqs)
}

func (e *Engine) attributeSessionRequests(ctx context.Context, sess *store.TaskSession, reqs []transcript.Request) (Result, error) {
	var result Result
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		owner := store.OwnerScope{SessionID: sess.ID, TaskID: sess.TaskID}
		r, err := e.writeAttribution(ctx, tx, owner, reqs)
		if err != nil {
			return err
		}
		result = r
		if len(reqs) == 0 {
			e.Log.Warn("no transcript requests found in session window", "session_id", sess.ID)
			return nil
		}
		return e.Store.WriteSessionCost(ctx, tx, sess.ID, r.Dollars, r.TokensIn, r.TokensOut, r.Model)
	})
	return result, err
}

// AttributeSkillRun runs the skill-run attribution path.
func (e *Engine) AttributeSkillRun(ctx context.Context, skillRunID int64, transcriptDir string) (Result, error) {
	run, err := e.Store.GetSkillRun(ctx, skillRunID)
	if err != nil {
		return Result{}, fmt.Errorf("load skill run: %w", err)
	}
	if run.EndedAt == nil {
		return Result{}, fmt.Errorf("skill run %d has not finished", skillRunID)
	}

	window := transcript.Window{Start: run.StartedAt, End: *run.EndedAt}
	reqs, err := e.parseWindow(transcriptDir, window)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		owner := store.OwnerScope{SkillRunID: skillRunID}
		r, err := e.writeAttribution(ctx, tx, owner, reqs)
		if err != nil {
			return err
		}
		result = r
		if len(reqs) == 0 {
			e.Log.Warn("no transcript requests found in skill run window", "skill_run_id", skillRunID)
			return nil
		}
		return e.Store.WriteSkillRunCost(ctx, tx, skillRunID, r.Dollars, r.TokensIn, r.TokensOut, r.Model)
	})
	return result, err
}

// AttributeCriterion runs the criterion attribution path, including the
// shared-commit-group split: when criterionID's commit_hash is shared
// with other completed criteria on the same task, the group is windowed
// and attributed once, as a whole. The same divided ToolCallStats row
// (each counter divided by the group size, integer truncation for
// tokens/call counts, floating division for cost) is upserted for every
// member — they are identical rows, not independently recomputed slices —
// while the flat per-call ToolCallEvent list is round-robined across
// members by list order, per spec.md 4.F/§5's ordering guarantee and §8
// scenario 6.
func (e *Engine) AttributeCriterion(ctx context.Context, criterionID int64, transcriptDir string) (Result, error) {
	c, err := e.Store.GetCriterion(ctx, criterionID)
	if err != nil {
		return Result{}, fmt.Errorf("load criterion: %w", err)
	}
	if !c.IsCompleted {
		return Result{}, fmt.Errorf("criterion %d is not completed", criterionID)
	}

	group := []*store.Criterion{c}
	if c.CommitHash != nil {
		shared, err := e.Store.SharedCommitGroup(ctx, c.TaskID, *c.CommitHash)
		if err != nil {
			return Result{}, err
		}
		if len(shared) > 1 {
			group = shared
		}
	}

	groupIDs := make([]int64, len(group))
	for i, m := range group {
		groupIDs[i] = m.ID
	}
	windowStart, err := e.criterionWindowStart(ctx, c.TaskID, groupIDs)
	if err != nil {
		return Result{}, err
	}

	windowEnd := coalesceTime(c.CommittedAt, c.CompletedAt)
	for _, m := range group[1:] {
		t := coalesceTime(m.CommittedAt, m.CompletedAt)
		if t.After(windowEnd) {
			windowEnd = t
		}
	}

	window := transcript.Window{Start: windowStart, End: windowEnd}
	reqs, err := e.parseWindow(transcriptDir, window)
	if err != nil {
		return Result{}, err
	}

	agg := AggregateRequests(reqs)
	totals := agg.CombinedTotals()
	dollars := agg.Dollars(e.Catalog)
	n := int64(len(group))

	splitTokensIn := totals.TokensIn() / n
	splitTokensOut := totals.TokensOut() / n
	splitDollars := round6(dollars / float64(n))

	perTool, events := e.toolBreakdown(reqs)
	dividedStats := make(map[string]store.ToolCallStats, len(perTool))
	for name, st := range perTool {
		dividedStats[name] = store.ToolCallStats{
			ToolName:  name,
			CallCount: st.CallCount / n,
			TotalCost: round6(st.TotalCost / float64(n)),
			MaxCost:   round6(st.MaxCost / float64(n)),
			TokensIn:  st.TokensIn / n,
			TokensOut: st.TokensOut / n,
		}
	}

	var result Result
	err = e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		for i, member := range group {
			owner := store.OwnerScope{CriterionID: member.ID, TaskID: member.TaskID}
			for _, st := range dividedStats {
				if err := e.Store.UpsertToolCallStats(ctx, tx, owner, st); err != nil {
					return err
				}
			}
			memberEvents := roundRobinEvents(events, i, len(group))
			if err := e.Store.ReplaceToolCallEvents(ctx, tx, owner, memberEvents); err != nil {
				return err
			}
			if err := e.Store.WriteCriterionCost(ctx, tx, member.ID, splitDollars, splitTokensIn, splitTokensOut); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	result = Result{Dollars: splitDollars, TokensIn: splitTokensIn, TokensOut: splitTokensOut, Model: agg.DominantModel, RequestCount: len(reqs)}
	if len(reqs) == 0 {
		e.Log.Warn("no transcript requests found in criterion window", "criterion_id", criterionID)
	}
	return result, nil
}

// criterionWindowStart resolves the window start per spec.md 4.F's
// criterion attribution rule: the most recent other completed criterion
// on the same task (excluding the whole group), else the most recent
// session start for the task.
func (e *Engine) criterionWindowStart(ctx context.Context, taskID int64, excludeGroup []int64) (time.Time, error) {
	ts, err := e.Store.MostRecentOtherCompletion(ctx, taskID, excludeGroup)
	if err != nil {
		return time.Time{}, err
	}
	if ts != nil {
		return *ts, nil
	}

	sessions, err := e.Store.ListSessionsForTask(ctx, taskID)
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, s := range sessions {
		if s.StartedAt.After(latest) {
			latest = s.StartedAt
		}
	}
	return latest, nil
}

// roundRobinEvents returns the subset of events assigned to member index
// idx out of n members, distributing individual tool-call events (not
// whole requests, which may each bundle several tool_use calls) round-
// robin by list order, per spec.md §5's ordering guarantee.
func roundRobinEvents(events []store.ToolCallEvent, idx, n int) []store.ToolCallEvent {
	var out []store.ToolCallEvent
	for i, ev := range events {
		if i%n == idx {
			out = append(out, ev)
		}
	}
	return out
}

func (e *Engine) parseWindow(transcriptDir string, window transcript.Window) ([]transcript.Request, error) {
	files, err := transcript.ListFiles(transcriptDir, false)
	if err != nil {
		return nil, err
	}
	return transcript.ParseMany(files, window)
}

func coalesceTime(a, b *time.Time) time.Time {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return time.Time{}
}
