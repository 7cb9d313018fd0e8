package session

import (
	"sync"

	"github.com/sidelinehq/sideline/pkg/types"
)

// Entry is one ingested recording in the session cache.
type Entry struct {
	// LocalIndex is the cache's own append position, assigned by
	// [RecordingCache.Append] in strict increasing order from 0. It is not
	// interchangeable with the remote ids below.
	LocalIndex int

	// KeyMomentID and TranscriptID reference the persisted records.
	KeyMomentID  string
	TranscriptID string

	// Text is the transcript text, kept locally so the UI can render the
	// entry without re-reading the remote store.
	Text string

	Window types.Window

	// FeedbackFor lists the roster members the feedback was attributed to.
	FeedbackFor []types.RosterMember
}

// RecordingCache is the in-memory, append-only, session-scoped ledger of
// already-ingested recordings. Entries are appended in pipeline completion
// order, which is the order the UI shows them in; a clip that fails anywhere
// in the pipeline contributes no entry and consumes no index.
//
// Exclusive-write, shared-read: appends take the write lock, snapshots the
// read lock. Safe for concurrent use.
type RecordingCache struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewRecordingCache returns an empty cache whose next index is 0.
func NewRecordingCache() *RecordingCache {
	return &RecordingCache{}
}

// Append stores e at the next local index and returns the index it was
// assigned. Any LocalIndex already set on e is ignored; indices are owned by
// the cache and are never reused or reassigned.
func (c *RecordingCache) Append(e Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.LocalIndex = len(c.entries)
	c.entries = append(c.entries, e)
	return e.LocalIndex
}

// All returns a read-only snapshot of every entry in append order.
func (c *RecordingCache) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of cached entries.
func (c *RecordingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
