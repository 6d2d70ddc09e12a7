package config

// DefaultConfigJSON is the configuration written by `tusk init` and used
// whenever no config.json is found. Kept as a single literal the way the
// teacher keeps DefaultConfigYAML, so `init` and a future `config reset`
// stay byte-for-byte consistent.
const DefaultConfigJSON = `{
  "statuses": ["To Do", "In Progress", "Done"],
  "priorities": ["P0", "P1", "P2", "P3"],
  "closed_reasons": ["completed", "wont_do", "duplicate", "expired"],
  "domains": ["backend", "frontend", "infra", "docs"],
  "task_types": ["feature", "bug", "chore", "spike"],
  "complexity": ["XS", "S", "M", "L", "XL"],
  "agents": {
    "claude": "claude",
    "human": "human"
  },
  "criterion_types": ["manual", "code", "test", "file"],
  "blocker_types": ["external_api", "design_review", "legal", "infra", "other"],
  "review_categories": ["correctness", "security", "style", "performance", "test_coverage"],
  "review_severities": ["blocker", "major", "minor", "nit"],
  "dupes": {
    "check_threshold": 0.82,
    "similar_threshold": 0.6,
    "strip_prefixes": ["[Deferred]", "[Optional]"]
  },
  "merge": {
    "mode": "local"
  },
  "review": {
    "reviewers": []
  },
  "log": {
    "level": "info",
    "format": "auto"
  },
  "state": {
    "path": ".tusk/tusk.db",
    "lock_ttl": "1h"
  },
  "pricing": {
    "path": ".tusk/pricing.json"
  },
  "transcript": {
    "dir": ".tusk/transcripts"
  },
  "loop": {
    "max_tasks": 10,
    "chain_skill": "chain",
    "tusk_skill": "tusk",
    "agent_binary": "claude",
    "on_failure": "abort"
  },
  "wsjf": {
    "priority_weight": {"P0": 20, "P1": 13, "P2": 8, "P3": 3},
    "complexity_weight": {"XS": 1, "S": 2, "M": 3, "L": 5, "XL": 8}
  },
  "skill_runs": {
    "marker_dir": ".tusk/skill-run-markers"
  }
}
`
