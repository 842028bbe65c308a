// internal/conversation/transcript.go
package conversation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/user/samarth/internal/types"
)

// Entry is one line of a transcript file.
type Entry struct {
	Seq       int64           `json:"seq"`
	SessionID types.SessionID `json:"session_id"`
	Message   types.Message   `json:"message"`
}

// Transcript is a JSONL-backed append-only export of conversations.
// Each session is written to transcripts/<sessionID>.jsonl. It is never read
// back into a Store.
type Transcript struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewTranscript creates a Transcript rooted at the given directory.
func NewTranscript(root string) *Transcript {
	return &Transcript{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (t *Transcript) getLock(sessionID types.SessionID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lock, ok := t.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	t.locks[sessionID] = lock
	return lock
}

func (t *Transcript) dir() string {
	return filepath.Join(t.root, "transcripts")
}

// Path returns the transcript file for a session.
func (t *Transcript) Path(sessionID types.SessionID) string {
	return filepath.Join(t.dir(), string(sessionID)+".jsonl")
}

// count reads the transcript file and counts lines. Caller must hold the session lock.
func (t *Transcript) count(sessionID types.SessionID) (int64, error) {
	f, err := os.Open(t.Path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan transcript: %w", err)
	}
	return count, nil
}

// Record appends msg to the session's transcript with the next sequence number.
func (t *Transcript) Record(_ context.Context, sessionID types.SessionID, msg types.Message) error {
	lock := t.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(t.dir(), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}

	existing, err := t.count(sessionID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(&Entry{
		Seq:       existing + 1,
		SessionID: sessionID,
		Message:   msg,
	})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	f, err := os.OpenFile(t.Path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// Tail returns the last N entries for the given session. A limit <= 0
// returns every entry.
func (t *Transcript) Tail(_ context.Context, sessionID types.SessionID, limit int) ([]*Entry, error) {
	lock := t.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(t.Path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("transcript not found: %s", sessionID)
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Count returns the number of entries recorded for the given session.
func (t *Transcript) Count(_ context.Context, sessionID types.SessionID) (int64, error) {
	lock := t.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return t.count(sessionID)
}

// Info summarizes one transcript file.
type Info struct {
	SessionID types.SessionID
	ModTime   string
	Size      int64
}

// List returns all recorded sessions, most recently modified first.
func (t *Transcript) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(t.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript dir: %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			SessionID: types.SessionID(strings.TrimSuffix(name, ".jsonl")),
			ModTime:   fi.ModTime().Format("2006-01-02 15:04:05"),
			Size:      fi.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ModTime > out[j].ModTime
	})
	return out, nil
}
