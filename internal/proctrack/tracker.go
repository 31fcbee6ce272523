// Package proctrack tracks child processes spawned by the command sandbox
// so they can be terminated as a group on shutdown or timeout.
package proctrack

import (
	"sort"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/logger"
)

var log = logger.New("proctrack")

// killGracePeriod is how long a process gets between the graceful signal
// and the forced kill.
const killGracePeriod = 5 * time.Second

// TrackedProcess records one live child.
type TrackedProcess struct {
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
}

// KillResult reports the outcome of a KillAll sweep. A PID in Failed means
// the graceful signal could not be delivered, which almost always means the
// process had already exited.
type KillResult struct {
	Killed []int `json:"killed"`
	Failed []int `json:"failed"`
}

// Tracker owns the set of live children. The sandbox registers a process
// right after spawn and unregisters it on natural exit; anything still
// registered at KillAll time gets the two-stage termination.
type Tracker struct {
	mu    sync.Mutex
	procs map[int]TrackedProcess
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{procs: make(map[int]TrackedProcess)}
}

// Track registers a spawned child.
func (t *Tracker) Track(pid int, command string) {
	t.mu.Lock()
	t.procs[pid] = TrackedProcess{PID: pid, Command: command, StartedAt: time.Now()}
	t.mu.Unlock()
	log.Debug("tracking pid %d: %s", pid, command)
}

// Untrack removes a child, typically on natural exit.
func (t *Tracker) Untrack(pid int) {
	t.mu.Lock()
	delete(t.procs, pid)
	t.mu.Unlock()
}

// IsTracked reports whether pid is currently tracked.
func (t *Tracker) IsTracked(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.procs[pid]
	return ok
}

// List returns the tracked processes sorted by start time.
func (t *Tracker) List() []TrackedProcess {
	t.mu.Lock()
	out := make([]TrackedProcess, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// KillAll sends the graceful termination signal to every tracked process
// and returns immediately with the per-PID outcome. A failed signal means
// the process is already gone, so it is untracked on the spot. Survivors
// get the forced kill after the grace period — but only if still tracked,
// so a process that exited in the interim is not signalled into the void.
func (t *Tracker) KillAll() KillResult {
	t.mu.Lock()
	pids := make([]int, 0, len(t.procs))
	for pid := range t.procs {
		pids = append(pids, pid)
	}
	t.mu.Unlock()
	sort.Ints(pids)

	res := KillResult{Killed: []int{}, Failed: []int{}}
	for _, pid := range pids {
		if err := signalGroup(pid, false); err != nil {
			log.Debug("graceful signal to %d failed: %v", pid, err)
			res.Failed = append(res.Failed, pid)
			t.Untrack(pid)
			continue
		}
		res.Killed = append(res.Killed, pid)
	}

	if len(res.Killed) > 0 {
		go t.escalate(res.Killed)
	}
	return res
}

// Kill terminates a single tracked process with the same two-stage
// escalation as KillAll.
func (t *Tracker) Kill(pid int) error {
	if !t.IsTracked(pid) {
		return nil
	}
	if err := signalGroup(pid, false); err != nil {
		t.Untrack(pid)
		return err
	}
	go t.escalate([]int{pid})
	return nil
}

func (t *Tracker) escalate(pids []int) {
	time.Sleep(killGracePeriod)
	for _, pid := range pids {
		if !t.IsTracked(pid) {
			continue
		}
		if err := signalGroup(pid, true); err != nil {
			log.Debug("forced kill of %d failed: %v", pid, err)
		} else {
			log.Warn("force-killed pid %d after grace period", pid)
		}
		t.Untrack(pid)
	}
}
