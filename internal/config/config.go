// Package config loads and validates the Tusk project configuration
// (config.json), the enumerations it names, and the policy knobs that
// drive the autoclose/backlog and merge subsystems.
package config

// Config holds the full Tusk project configuration, unmarshaled from
// config.json via viper.
type Config struct {
	Statuses       []string          `mapstructure:"statuses"`
	Priorities     []string          `mapstructure:"priorities"`
	ClosedReasons  []string          `mapstructure:"closed_reasons"`
	Domains        []string          `mapstructure:"domains"`
	TaskTypes      []string          `mapstructure:"task_types"`
	Complexity     []string          `mapstructure:"complexity"`
	Agents         map[string]string `mapstructure:"agents"`
	CriterionTypes []string          `mapstructure:"criterion_types"`
	BlockerTypes   []string          `mapstructure:"blocker_types"`
	ReviewCategories []string        `mapstructure:"review_categories"`
	ReviewSeverities []string        `mapstructure:"review_severities"`

	Dupes DupesConfig `mapstructure:"dupes"`
	Merge MergeConfig `mapstructure:"merge"`
	Review ReviewConfig `mapstructure:"review"`

	Log        LogConfig        `mapstructure:"log"`
	State      StateConfig      `mapstructure:"state"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Loop       LoopConfig       `mapstructure:"loop"`
	WSJF       WSJFConfig       `mapstructure:"wsjf"`
	SkillRuns  SkillRunsConfig  `mapstructure:"skill_runs"`
}

// LogConfig configures logging behavior (internal/logging.Config source).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StateConfig configures the embedded store location.
type StateConfig struct {
	Path       string `mapstructure:"path"`
	LockTTL    string `mapstructure:"lock_ttl"`
}

// PricingConfig locates the pricing catalog file the cost engine (4.F)
// reads; the catalog itself is plain JSON, not part of config.json, since
// `pricing-update` rewrites it independently of the rest of the config.
type PricingConfig struct {
	Path string `mapstructure:"path"`
}

// TranscriptConfig locates the directory of JSONL transcript files the
// cost engine (4.F) reads for best-effort attribution passes.
type TranscriptConfig struct {
	Dir string `mapstructure:"dir"`
}

// DupesConfig configures fuzzy duplicate detection (4.G).
type DupesConfig struct {
	CheckThreshold   float64  `mapstructure:"check_threshold"`
	SimilarThreshold float64  `mapstructure:"similar_threshold"`
	StripPrefixes    []string `mapstructure:"strip_prefixes"`
}

// MergeConfig configures the finalize orchestrator (4.I).
type MergeConfig struct {
	Mode string `mapstructure:"mode"` // "local" | "pr"
}

// ReviewConfig configures the code-review subsystem (4.C).
type ReviewConfig struct {
	Reviewers []string `mapstructure:"reviewers"`
}

// LoopConfig configures the autonomous loop dispatcher (4.H).
type LoopConfig struct {
	MaxTasks      int    `mapstructure:"max_tasks"`
	ChainSkill    string `mapstructure:"chain_skill"`
	TuskSkill     string `mapstructure:"tusk_skill"`
	AgentBinary   string `mapstructure:"agent_binary"`
	OnFailure     string `mapstructure:"on_failure"` // "skip" | "abort"
}

// WSJFConfig configures the WSJF scoring weight tables (4.B).
// See internal/task/wsjf.go for the formula and DESIGN.md for the Open
// Question this resolves.
type WSJFConfig struct {
	PriorityWeight   map[string]float64 `mapstructure:"priority_weight"`
	ComplexityWeight map[string]float64 `mapstructure:"complexity_weight"`
}

// SkillRunsConfig locates the directory `skill-run list --sync` scans for
// terminal marker files written by the external skill runtime on exit.
type SkillRunsConfig struct {
	MarkerDir string `mapstructure:"marker_dir"`
}

// TerminalStatus returns the configured terminal status: the last entry
// in Statuses (canonically "Done").
func (c *Config) TerminalStatus() string {
	if len(c.Statuses) == 0 {
		return ""
	}
	return c.Statuses[len(c.Statuses)-1]
}

// InitialStatus returns the configured initial status: the first entry
// in Statuses (canonically "To Do").
func (c *Config) InitialStatus() string {
	if len(c.Statuses) == 0 {
		return ""
	}
	return c.Statuses[0]
}

// IsTerminalStatus reports whether status is the configured terminal status.
func (c *Config) IsTerminalStatus(status string) bool {
	return status == c.TerminalStatus()
}

// InProgressStatus returns the status task-start moves a task into: the
// second entry in Statuses, or the terminal status itself if only two
// statuses are configured (no middle state to advance through).
func (c *Config) InProgressStatus() string {
	if len(c.Statuses) < 2 {
		return c.TerminalStatus()
	}
	return c.Statuses[1]
}

// contains reports whether list contains value.
func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// ValidPriority reports whether value is a configured priority.
func (c *Config) ValidPriority(value string) bool { return contains(c.Priorities, value) }

// ValidDomain reports whether value is a configured domain.
func (c *Config) ValidDomain(value string) bool { return contains(c.Domains, value) }

// ValidTaskType reports whether value is a configured task type.
func (c *Config) ValidTaskType(value string) bool { return contains(c.TaskTypes, value) }

// ValidComplexity reports whether value is a configured complexity tier.
func (c *Config) ValidComplexity(value string) bool { return contains(c.Complexity, value) }

// ValidCriterionType reports whether value is a configured criterion type.
func (c *Config) ValidCriterionType(value string) bool { return contains(c.CriterionTypes, value) }

// ValidBlockerType reports whether value is a configured blocker type.
func (c *Config) ValidBlockerType(value string) bool { return contains(c.BlockerTypes, value) }

// ValidStatus reports whether value is a configured status.
func (c *Config) ValidStatus(value string) bool { return contains(c.Statuses, value) }

// ValidClosedReason reports whether value is a configured closed reason.
func (c *Config) ValidClosedReason(value string) bool { return contains(c.ClosedReasons, value) }

// ValidAssignee reports whether value is a key in the configured agent map.
func (c *Config) ValidAssignee(value string) bool {
	_, ok := c.Agents[value]
	return ok
}

// ValidReviewCategory reports whether value is a configured review category.
func (c *Config) ValidReviewCategory(value string) bool { return contains(c.ReviewCategories, value) }

// ValidReviewSeverity reports whether value is a configured review severity.
func (c *Config) ValidReviewSeverity(value string) bool { return contains(c.ReviewSeverities, value) }
