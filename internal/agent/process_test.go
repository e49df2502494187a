package agent

import (
	"context"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

// TestProcessManagerKillAll verifies that KillAll terminates tracked
// subprocesses, as done on shutdown.
func TestProcessManagerKillAll(t *testing.T) {
	pm := NewProcessManager()

	cmd := exec.CommandContext(context.Background(), "sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}

	pm.Track(cmd)
	if count := pm.Count(); count != 1 {
		t.Errorf("Expected 1 tracked process, got %d", count)
	}

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not terminate after KillAll()")
	}

	// KillAll doesn't untrack; executeCommand's defer does
	if count := pm.Count(); count != 1 {
		t.Errorf("Expected process to still be tracked after KillAll, got count=%d", count)
	}
	pm.Untrack(cmd)
	if count := pm.Count(); count != 0 {
		t.Errorf("Expected 0 tracked processes after Untrack, got %d", count)
	}
}

func TestProcessManagerIgnoresUnstarted(t *testing.T) {
	pm := NewProcessManager()
	cmd := exec.Command("true")
	pm.Track(cmd)
	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("unstarted command should not be tracked")
	}
}
