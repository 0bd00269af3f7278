package domain

import "testing"

func TestCanTransitionTo(t *testing.T) {
	allowed := map[SessionState][]SessionState{
		SessionOpen:       {SessionClosed, SessionFailed},
		SessionClosed:     {SessionProcessing, SessionFailed},
		SessionProcessing: {SessionDone, SessionFailed},
		SessionDone:       {},
		SessionFailed:     {},
	}
	states := []SessionState{SessionOpen, SessionClosed, SessionProcessing, SessionDone, SessionFailed}
	for from, targets := range allowed {
		ok := map[SessionState]bool{from: true} // self-transition is a no-op
		for _, to := range targets {
			ok[to] = true
		}
		for _, to := range states {
			if got := from.CanTransitionTo(to); got != ok[to] {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, ok[to], got)
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	if SessionOpen.Terminal() || SessionClosed.Terminal() || SessionProcessing.Terminal() {
		t.Fatal("non-terminal state reported as terminal")
	}
	if !SessionDone.Terminal() || !SessionFailed.Terminal() {
		t.Fatal("terminal state not reported as terminal")
	}
}
