// Package audit implements an append-only, hash-chained log of privileged
// actions. Each line of the log file is one self-describing JSON record;
// every record carries the hash of its predecessor, so altering or removing
// any line breaks every subsequent link.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/fileutil"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/types"
)

var log = logger.New("audit")

// Entry is one line in the log. All fields are plain struct fields (no
// map[string]any) so json.Marshal produces a deterministic field order and
// the hash is reproducible.
type Entry struct {
	Timestamp string       `json:"timestamp"`
	Actor     types.Actor  `json:"actor"`
	Action    string       `json:"action"`
	Target    string       `json:"target"`
	Result    types.Result `json:"result"`
	Details   string       `json:"details,omitempty"`
	PrevHash  string       `json:"prev_hash"`
	Hash      string       `json:"hash,omitempty"`
}

// Input is the caller-supplied part of an entry; timestamp and chain fields
// are filled in by Append.
type Input struct {
	Actor   types.Actor
	Action  string
	Target  string
	Result  types.Result
	Details string
}

// Report is the outcome of a VerifyIntegrity replay.
type Report struct {
	Valid    bool `json:"valid"`
	BrokenAt int  `json:"broken_at"` // index of the first bad entry, -1 when valid
	Entries  int  `json:"entries"`
	Segments int  `json:"segments"` // chain segments seen (restarts start a new one)
}

// Log appends hash-chained entries to a single file. The chain head lives in
// process memory only: a restart starts a new chain segment rather than
// reloading the previous tail hash from disk. VerifyIntegrity counts the
// segments so operators can see the discontinuities.
type Log struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	lastHash string
}

// Open opens (creating if needed) the audit log at path. The file and its
// directory are created with owner-only permissions.
func Open(path string) (*Log, error) {
	if err := fileutil.SecureMkdirAll(filepath.Dir(path)); err != nil {
		return nil, errdefs.Transient("audit.Open", err)
	}
	f, err := fileutil.SecureOpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
	if err != nil {
		return nil, errdefs.Transient("audit.Open", err)
	}
	return &Log{path: path, f: f}, nil
}

// Append records one entry. Appends are serialized under a single writer
// lock so the chain invariant holds under concurrent callers.
func (l *Log) Append(in Input) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Actor:     in.Actor,
		Action:    in.Action,
		Target:    in.Target,
		Result:    in.Result,
		Details:   in.Details,
		PrevHash:  l.lastHash,
	}
	e.Hash = hashEntry(e)

	line, err := json.Marshal(e)
	if err != nil {
		return errdefs.Transient("audit.Append", err)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return errdefs.Transient("audit.Append", err)
	}
	l.lastHash = e.Hash
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// hashEntry computes the SHA-256 of the entry's canonical JSON with the
// Hash field cleared. The omitempty tag drops the empty hash from the
// hashed representation.
func hashEntry(e Entry) string {
	e.Hash = ""
	b, err := json.Marshal(e)
	if err != nil {
		// Entry is all plain strings; Marshal cannot fail on it.
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity replays the log from the start, confirming that each
// entry's prev_hash matches the hash carried forward and that each stored
// hash matches a recomputation over the stored fields. An empty prev_hash
// after the first entry is treated as the start of a new chain segment,
// which is where a process restart resumed the log.
func (l *Log) VerifyIntegrity() (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verifyFile(l.path)
}

// VerifyFile verifies a log file without an open Log, for offline checks.
func VerifyFile(path string) (Report, error) {
	return verifyFile(path)
}

func verifyFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, errdefs.Transient("audit.VerifyIntegrity", err)
	}
	defer f.Close()

	rep := Report{Valid: true, BrokenAt: -1}
	carried := ""
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	i := 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			log.Warn("audit entry %d unparseable: %v", i, err)
			return Report{Valid: false, BrokenAt: i, Entries: rep.Entries, Segments: rep.Segments}, nil
		}
		if e.PrevHash == "" {
			rep.Segments++
			if i > 0 {
				log.Warn("audit chain segment restart at entry %d", i)
			}
		} else if e.PrevHash != carried {
			return Report{Valid: false, BrokenAt: i, Entries: rep.Entries, Segments: rep.Segments}, nil
		}
		if hashEntry(e) != e.Hash {
			return Report{Valid: false, BrokenAt: i, Entries: rep.Entries, Segments: rep.Segments}, nil
		}
		carried = e.Hash
		rep.Entries++
		i++
	}
	if err := sc.Err(); err != nil {
		return Report{}, errdefs.Transient("audit.VerifyIntegrity", err)
	}
	return rep, nil
}
