// Package queue is the bounded durable FIFO of serialized messages that
// failed transmission. Entries are opaque byte records; the queue never
// inspects message contents.
package queue

import (
	"bytes"
	"io"

	"github.com/charmbracelet/log"
	"github.com/juju/errors"
	"github.com/temoto/extremofile"
)

// ErrFull is returned by Enqueue when the queue already holds Capacity
// entries. The newest record is dropped; stored entries are kept.
var ErrFull = errors.New("offline queue full")

var recordSep = []byte{'\n'}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Queue keeps the authoritative copy on disk; the in-memory slice mirrors
// it. Single-threaded by contract (see the device concurrency model), so no
// locking. Every mutation rewrites the whole record set through extremofile,
// which syncs main and backup copies before returning — a crash mid-write
// leaves either the old or the new state, never a mixture.
type Queue struct {
	log      *log.Logger
	capacity int
	entries  [][]byte
	storage  storage
}

// Open loads whatever survived in dir. Unreadable or corrupted storage
// degrades to an empty queue: losing the backlog is preferable to halting
// the device, and repairing partial records is out of scope.
func Open(dir string, capacity int, lg *log.Logger) *Queue {
	if capacity <= 0 {
		panic("code error queue capacity must be positive")
	}
	q := &Queue{
		log:      lg,
		capacity: capacity,
	}
	q.storage = extremofile.New(extremofile.Config{
		Dir:      dir,
		DirPerm:  0755,
		FilePerm: 0644,
	})
	b, err := q.storage.Read()
	if b == nil && err != nil {
		q.log.Errorf("queue storage unreadable, starting empty: %v", err)
		return q
	}
	if err != nil {
		// backup copy recovered the data
		q.log.Errorf("queue storage ignore non-critical err=%v", err)
	}
	q.entries = parseRecords(b)
	if len(q.entries) > q.capacity {
		// capacity was lowered since the backlog was written
		q.log.Errorf("queue recovered %d messages over capacity %d, dropping newest", len(q.entries), q.capacity)
		q.entries = q.entries[:q.capacity]
	}
	if n := len(q.entries); n > 0 {
		q.log.Infof("queue recovered %d/%d stored messages", n, q.capacity)
	}
	return q
}

// Enqueue appends m at the tail and persists before returning. Records must
// be newline-free; the wire format is compact JSON so this never fires for
// messages built by this device.
func (q *Queue) Enqueue(m []byte) error {
	if bytes.Contains(m, recordSep) {
		return errors.Errorf("queue: record contains newline")
	}
	if len(q.entries) >= q.capacity {
		return ErrFull
	}
	entries := append(q.entries, m)
	if err := q.store(entries); err != nil {
		return errors.Annotate(err, "queue enqueue")
	}
	q.entries = entries
	q.log.Infof("stored message offline (%d/%d)", len(q.entries), q.capacity)
	return nil
}

func (q *Queue) Count() int { return len(q.entries) }

// DrainAll returns all entries oldest-first without removing them. Callers
// publish each entry and call Clear only after every one was delivered.
func (q *Queue) DrainAll() [][]byte {
	out := make([][]byte, len(q.entries))
	copy(out, q.entries)
	return out
}

// Clear removes all entries. Partial removal is deliberately not offered:
// flush is all-or-retry-next-cycle, which keeps replay order trivial.
func (q *Queue) Clear() error {
	if err := q.store(nil); err != nil {
		return errors.Annotate(err, "queue clear")
	}
	q.entries = nil
	q.log.Debug("queue cleared")
	return nil
}

func (q *Queue) store(entries [][]byte) error {
	_, err := q.storage.Write(bytes.Join(entries, recordSep))
	return err
}

func parseRecords(b []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(b, recordSep) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			out = append(out, line)
		}
	}
	return out
}
