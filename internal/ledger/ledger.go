// Package ledger keeps the authoritative ball position for every frame the
// sender produced, keyed by frame sequence.
package ledger

import "sync"

// Record is the ground truth for one frame.
type Record struct {
	Seq int64   `json:"frame_no"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

// Ledger is an append-only map of sequence to position. When window is
// positive only the most recent window records are kept; older sequences are
// evicted in insertion order.
type Ledger struct {
	mu      sync.RWMutex
	records map[int64]Record
	order   []int64
	head    int
	window  int
	evicted uint64
}

// New creates a ledger retaining at most window records (0 = unbounded).
func New(window int) *Ledger {
	if window < 0 {
		window = 0
	}
	l := &Ledger{records: make(map[int64]Record), window: window}
	if window > 0 {
		l.order = make([]int64, 0, window)
	}
	return l
}

// Record stores the position for seq, replacing any previous entry.
func (l *Ledger) Record(seq int64, x, y float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, exists := l.records[seq]
	l.records[seq] = Record{Seq: seq, X: x, Y: y}
	if l.window == 0 || exists {
		return
	}
	if len(l.order) < l.window {
		l.order = append(l.order, seq)
		return
	}
	// ring is full: overwrite the oldest slot
	delete(l.records, l.order[l.head])
	l.evicted++
	l.order[l.head] = seq
	l.head = (l.head + 1) % l.window
}

// Lookup returns the record for seq.
func (l *Ledger) Lookup(seq int64) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.records[seq]
	return r, ok
}

// Len returns the number of retained records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Evicted returns how many records the window has dropped.
func (l *Ledger) Evicted() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}
