package tuskerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"validation", Validation("BAD_ENUM", "unknown priority"), 2},
		{"not found", NotFound("task", "42"), 2},
		{"policy gated forceable", PolicyGated("OPEN_CRITERIA", "criteria incomplete"), 3},
		{"policy gated strict", PolicyGatedStrict("ALREADY_INITIAL", "already To Do"), 2},
		{"policy gated outcome", PolicyGatedOutcome("DUPLICATE", "duplicate found", map[string]any{"matched_task_id": 1}), 1},
		{"external", External("AGENT_FAILED", "agent exited 1"), 2},
		{"integrity", Integrity("FK_VIOLATION", "dangling dependency"), 2},
		{"plain error", errors.New("boom"), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestOutcome(t *testing.T) {
	err := PolicyGatedOutcome("DUPLICATE", "duplicate found", map[string]any{"matched_task_id": 7})
	outcome, ok := Outcome(err)
	require.True(t, ok)
	assert.Equal(t, 7, outcome["matched_task_id"])

	_, ok = Outcome(Validation("BAD", "nope"))
	assert.False(t, ok)
}

func TestIsForceable(t *testing.T) {
	assert.True(t, IsForceable(PolicyGated("X", "msg")))
	assert.False(t, IsForceable(PolicyGatedStrict("X", "msg")))
	assert.False(t, IsForceable(Validation("X", "msg")))
}

func TestWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := External("WRITE_FAILED", "could not write").WithCause(cause).WithRecovery("run tusk validate")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, "run tusk validate", err.Recovery)
}
