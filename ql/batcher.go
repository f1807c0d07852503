package ql

import (
	"time"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// BatchSpec is the caller-facing batch budget for a scan: row count, byte
// estimate, wall-clock, or any combination. Zero fields are unlimited.
type BatchSpec struct {
	MaxEls      int64
	MaxSize     int64
	MaxDuration time.Duration
}

func (s BatchSpec) ToBatcher() *Batcher {
	b := &Batcher{spec: s}
	if s.MaxDuration > 0 {
		b.deadline = time.Now().Add(s.MaxDuration)
	}
	return b
}

// Batcher tracks accumulated scan output against the budget.
// ShouldSendBatch is monotone: once true it stays true until the caller
// flushes the batch and builds a new Batcher.
type Batcher struct {
	spec     BatchSpec
	deadline time.Time
	els      int64
	size     int64
}

// NoteEl registers one output element and its serialized-size estimate.
func (b *Batcher) NoteEl(d *datum.Datum) {
	b.els++
	b.size += int64(len(datum.Encode(d)))
}

func (b *Batcher) ShouldSendBatch() bool {
	if b.spec.MaxEls > 0 && b.els >= b.spec.MaxEls {
		return true
	}
	if b.spec.MaxSize > 0 && b.size >= b.spec.MaxSize {
		return true
	}
	if !b.deadline.IsZero() && !time.Now().Before(b.deadline) {
		return true
	}
	return false
}
