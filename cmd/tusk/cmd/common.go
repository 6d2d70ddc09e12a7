package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"tusk/internal/config"
	"tusk/internal/cost"
	"tusk/internal/criteria"
	"tusk/internal/finalize"
	"tusk/internal/loop"
	"tusk/internal/logging"
	"tusk/internal/policy"
	"tusk/internal/store"
	"tusk/internal/task"
	"tusk/internal/tuskerr"
	"tusk/internal/validate"
)

// invalidEnumErr builds a validation error for a CLI-supplied enum value
// that isn't in the currently configured list, with a fuzzy suggestion.
func invalidEnumErr(field, value string, valid []string) error {
	suggestion := policy.SuggestEnum(value, valid)
	return tuskerr.Validation("invalid_enum", config.ValidEnumsMessage(field, value, valid, suggestion))
}

// App bundles every engine a handler might need, built once per
// invocation from the resolved config and an open store connection.
type App struct {
	Config     *config.Config
	Log        *logging.Logger
	Store      *store.Store
	Task       *task.Engine
	Criteria   *criteria.Engine
	Policy     *policy.Engine
	Cost       *cost.Engine
	Validate   *validate.Engine
	Finalize   *finalize.Orchestrator
	VCS        finalize.VCS
	ProjectDir string
}

// newApp loads configuration, opens the store, and wires every engine.
// The returned close func must run before the process exits.
func newApp(ctx context.Context) (*App, func(), error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, func() {}, fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.State.Path = dbPath
	}
	if transcriptDir != "" {
		cfg.Transcript.Dir = transcriptDir
	}
	if pricingPath != "" {
		cfg.Pricing.Path = pricingPath
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, func() {}, fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	st, err := store.Open(ctx, cfg.State.Path, cfg.Statuses)
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening store: %w", err)
	}
	closeFn := func() { _ = st.Close() }

	catalog, err := cost.LoadCatalog(cfg.Pricing.Path)
	if err != nil {
		closeFn()
		return nil, func() {}, fmt.Errorf("loading pricing catalog: %w", err)
	}

	taskEngine := task.New(st, cfg, log)
	costEngine := cost.New(st, cfg, catalog, log)
	criteriaEngine := criteria.New(st, cfg, costEngine, cfg.Transcript.Dir, log)
	policyEngine := policy.New(st, cfg)
	validateEngine := validate.New(st, cfg)
	finalizeOrch := finalize.New(st, cfg, taskEngine, costEngine, cfg.Transcript.Dir, loader.ProjectDir(), log)

	return &App{
		Config:     cfg,
		Log:        log,
		Store:      st,
		Task:       taskEngine,
		Criteria:   criteriaEngine,
		Policy:     policyEngine,
		Cost:       costEngine,
		Validate:   validateEngine,
		Finalize:   finalizeOrch,
		VCS:        finalize.NewGitVCS(loader.ProjectDir()),
		ProjectDir: loader.ProjectDir(),
	}, closeFn, nil
}

// newDispatcher builds a loop.Dispatcher sharing the App's task engine,
// for the `loop` verb only — constructed separately since it is the one
// handler that runs its own internal loop rather than a single operation.
func (a *App) newDispatcher() *loop.Dispatcher {
	return loop.New(a.Store, a.Config, a.Task, a.Log)
}

// OutputJSON writes v to stdout as indented JSON, the uniform success
// shape every handler in spec.md §6 returns.
func OutputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// finish is the uniform tail of every handler's RunE: on success it
// prints the result as JSON; on error it prints a structured outcome to
// stdout (the "structurally negative but successful" case, e.g. a
// duplicate match) or a human line to stderr, per spec.md §7's
// propagation policy. The original error is always returned so main can
// translate it to an exit code via tuskerr.ExitCode.
func finish(v interface{}, err error) error {
	if err != nil {
		if outcome, ok := tuskerr.Outcome(err); ok {
			_ = OutputJSON(outcome)
			return err
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return OutputJSON(v)
}

// parseInt64 parses a CLI-supplied id, wrapping a failure as a validation
// error rather than a bare strconv error.
func parseInt64(field, value string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(value, "%d", &id)
	if err != nil || id <= 0 {
		return 0, tuskerr.Validation("invalid_id", fmt.Sprintf("%s must be a positive integer, got %q", field, value))
	}
	return id, nil
}

// optionalString turns a flag's raw value and its "was it set" bit into
// the **string update semantics task.UpdateInput expects: nil means
// untouched, pointer-to-nil means "clear", pointer-to-value means "set".
func optionalString(changed bool, value string) **string {
	if !changed {
		return nil
	}
	if value == "" {
		var nilPtr *string
		return &nilPtr
	}
	v := value
	p := &v
	return &p
}
