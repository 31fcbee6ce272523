package proctrack

import (
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func TestKillAllEmpty(t *testing.T) {
	tr := NewTracker()
	res := tr.KillAll()
	if res.Killed == nil || res.Failed == nil {
		t.Fatal("KillAll must return empty slices, not nil")
	}
	if len(res.Killed) != 0 || len(res.Failed) != 0 {
		t.Errorf("KillAll on empty tracker = %+v", res)
	}
}

func TestTrackUntrackList(t *testing.T) {
	tr := NewTracker()
	tr.Track(1111, "sleep 10")
	tr.Track(2222, "cat file")

	if !tr.IsTracked(1111) || !tr.IsTracked(2222) {
		t.Fatal("tracked pids not reported")
	}
	if got := len(tr.List()); got != 2 {
		t.Fatalf("List returned %d entries, want 2", got)
	}

	tr.Untrack(1111)
	if tr.IsTracked(1111) {
		t.Error("pid still tracked after Untrack")
	}
	if got := len(tr.List()); got != 1 {
		t.Errorf("List returned %d entries, want 1", got)
	}
}

func TestKillAllAlreadyExited(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signal semantics differ on windows")
	}
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Wait(); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker()
	tr.Track(pid, "true")

	res := tr.KillAll()
	if len(res.Failed) != 1 || res.Failed[0] != pid {
		t.Errorf("Failed = %v, want [%d]", res.Failed, pid)
	}
	if len(res.Killed) != 0 {
		t.Errorf("Killed = %v, want empty", res.Killed)
	}
	if tr.IsTracked(pid) {
		t.Error("already-exited pid still tracked after KillAll")
	}
}

func TestKillAllRunningProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signal semantics differ on windows")
	}
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid
	defer cmd.Process.Kill()

	tr := NewTracker()
	tr.Track(pid, "sleep 30")

	res := tr.KillAll()
	if len(res.Killed) != 1 || res.Killed[0] != pid {
		t.Fatalf("Killed = %v, want [%d]", res.Killed, pid)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		// SIGTERM delivered; exit error expected.
	case <-time.After(3 * time.Second):
		t.Error("process still running after graceful kill")
	}
}
