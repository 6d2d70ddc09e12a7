package loop

import "testing"

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2)
	if cb.IsOpen() {
		t.Fatal("new breaker must start closed")
	}
	if tripped := cb.RecordFailure(); tripped {
		t.Fatal("first failure must not trip a threshold-2 breaker")
	}
	if cb.IsOpen() {
		t.Fatal("breaker must still be closed after 1 of 2 failures")
	}
	if tripped := cb.RecordFailure(); !tripped {
		t.Fatal("second consecutive failure must trip the breaker")
	}
	if !cb.IsOpen() {
		t.Fatal("breaker must report open after tripping")
	}
}

func TestCircuitBreaker_SuccessResetsStreakButNotOpenState(t *testing.T) {
	cb := NewCircuitBreaker(2)
	cb.RecordFailure()
	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Fatal("breaker must be open after 2 consecutive failures")
	}
	cb.RecordSuccess()
	if !cb.IsOpen() {
		t.Fatal("RecordSuccess must not close an already-open breaker")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveCountBeforeTripping(t *testing.T) {
	cb := NewCircuitBreaker(2)
	cb.RecordFailure()
	cb.RecordSuccess()
	if cb.ConsecutiveFailures() != 0 {
		t.Fatalf("expected the streak to reset, got %d", cb.ConsecutiveFailures())
	}
	if tripped := cb.RecordFailure(); tripped {
		t.Fatal("a single failure after a reset must not trip the breaker")
	}
	if cb.IsOpen() {
		t.Fatal("breaker must remain closed")
	}
}

func TestCircuitBreaker_ZeroOrNegativeThresholdUsesDefault(t *testing.T) {
	cb := NewCircuitBreaker(0)
	for i := 0; i < DefaultCircuitBreakerThreshold-1; i++ {
		if tripped := cb.RecordFailure(); tripped {
			t.Fatalf("breaker tripped early at failure %d", i+1)
		}
	}
	if tripped := cb.RecordFailure(); !tripped {
		t.Fatal("breaker must trip once the default threshold is reached")
	}
}
