package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any validation errors were collected.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }

// Validator validates a Config's enumerations and policy sections.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new Validator.
func NewValidator() *Validator { return &Validator{} }

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors { return v.errors }

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

// Validate validates the entire configuration, returning a non-nil error
// (ValidationErrors) if anything is wrong.
func (v *Validator) Validate(cfg *Config) error {
	v.validateEnumLists(cfg)
	v.validateDupes(&cfg.Dupes)
	v.validateMerge(&cfg.Merge)
	v.validateWSJF(cfg)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateEnumLists(cfg *Config) {
	if len(cfg.Statuses) < 2 {
		v.addError("statuses", cfg.Statuses, "must list at least an initial and a terminal status")
	}
	if len(cfg.Priorities) == 0 {
		v.addError("priorities", cfg.Priorities, "must not be empty")
	}
	if len(cfg.ClosedReasons) == 0 {
		v.addError("closed_reasons", cfg.ClosedReasons, "must not be empty")
	}
	if len(cfg.Complexity) == 0 {
		v.addError("complexity", cfg.Complexity, "must not be empty")
	}
	if len(cfg.CriterionTypes) == 0 {
		v.addError("criterion_types", cfg.CriterionTypes, "must not be empty")
	} else if !contains(cfg.CriterionTypes, "manual") {
		v.addError("criterion_types", cfg.CriterionTypes, "must include the default type \"manual\"")
	}
}

func (v *Validator) validateDupes(d *DupesConfig) {
	if d.CheckThreshold <= 0 || d.CheckThreshold > 1 {
		v.addError("dupes.check_threshold", d.CheckThreshold, "must be in (0, 1]")
	}
	if d.SimilarThreshold <= 0 || d.SimilarThreshold > 1 {
		v.addError("dupes.similar_threshold", d.SimilarThreshold, "must be in (0, 1]")
	}
	if d.SimilarThreshold > d.CheckThreshold {
		v.addError("dupes.similar_threshold", d.SimilarThreshold, "must not exceed dupes.check_threshold")
	}
}

func (v *Validator) validateMerge(m *MergeConfig) {
	if m.Mode != "local" && m.Mode != "pr" {
		v.addError("merge.mode", m.Mode, "must be one of: local, pr")
	}
}

func (v *Validator) validateWSJF(cfg *Config) {
	for _, p := range cfg.Priorities {
		if _, ok := cfg.WSJF.PriorityWeight[p]; !ok {
			v.addError("wsjf.priority_weight", p, "missing weight for configured priority")
		}
	}
	for _, c := range cfg.Complexity {
		if _, ok := cfg.WSJF.ComplexityWeight[c]; !ok {
			v.addError("wsjf.complexity_weight", c, "missing weight for configured complexity tier")
		}
	}
}

// ValidEnumsMessage formats the "valid values are …" message required by
// spec.md 4.B for a rejected enum value, naming the closest fuzzy match
// when one scores well (see internal/policy.SuggestEnum).
func ValidEnumsMessage(field, got string, valid []string, suggestion string) string {
	msg := fmt.Sprintf("invalid %s %q, valid values are: %s", field, got, strings.Join(valid, ", "))
	if suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return msg
}
