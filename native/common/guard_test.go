package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "fairlaunch"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	set := NewPauseSet(" FairLaunch ")
	if err := Guard(set, "fairlaunch"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(set, "bank"); err != nil {
		t.Fatalf("other modules unaffected: %v", err)
	}
	set.Set("fairlaunch", false)
	if err := Guard(set, "fairlaunch"); err != nil {
		t.Fatalf("expected resumed, got %v", err)
	}
	var empty *PauseSet
	if empty.IsPaused("fairlaunch") {
		t.Fatalf("nil set is never paused")
	}
}
