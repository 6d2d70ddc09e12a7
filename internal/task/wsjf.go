package task

import "tusk/internal/config"

// ScoreWSJF computes priority_score for one task from its priority and
// complexity tiers.
//
// The scoring formula itself is an open question: spec.md says it "is
// present in the source" and must be copied verbatim rather than
// reinvented, but the retrieved reference material never contains the file
// that actually computes it — only an opaque `tusk wsjf` subprocess call
// from the task-insert/task-update scripts. Absent that file, this
// implements the conventional Weighted-Shortest-Job-First ratio (cost of
// delay over job size) using the priority/complexity weight tables in
// config.json's wsjf section: higher priority weight and lower complexity
// weight raise the score. See DESIGN.md for the full rationale.
func ScoreWSJF(priority, complexity string, cfg *config.WSJFConfig) float64 {
	priorityWeight := cfg.PriorityWeight[priority]
	complexityWeight := cfg.ComplexityWeight[complexity]
	if complexityWeight <= 0 {
		// Unsized tasks still need a rank; treat as maximum job size so
		// they sort below any sized task of the same priority.
		complexityWeight = 1
		for _, w := range cfg.ComplexityWeight {
			if w > complexityWeight {
				complexityWeight = w
			}
		}
	}
	return priorityWeight / complexityWeight
}
