package rethinkdb

import (
	"context"
	"sync"

	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/learn-decentralized-systems/toytlv"

	"github.com/mukteshkrmishra/rethinkdb/datum"
	"github.com/mukteshkrmishra/rethinkdb/rdberrors"
)

// ChangeLog is the ordered stream of committed modifications, encoded as
// TLV records:
//
//	'M' ( 'K' primary-key, 'D' deleted-bytes?, 'A' added-bytes? )
//	'E' ( 'L' left-key, 'G' flags, 'R' right-key? )
//
// Pushes happen under the store's ordering lock, before the matching
// index updates, so consumers observe log order equal to apply order. The
// log is bounded; the oldest records fall off when producers outrun the
// consumer.
type ChangeLog struct {
	mu      sync.Mutex
	recs    toyqueue.Records
	limit   int
	dropped int64
	closed  bool
	signal  chan struct{}
}

func NewChangeLog(limit int) *ChangeLog {
	return &ChangeLog{limit: limit, signal: make(chan struct{}, 1)}
}

const eraseFlagRightUnbounded = 0x01

func (l *ChangeLog) push(rec []byte) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if l.limit > 0 && len(l.recs) >= l.limit {
		l.recs = l.recs[1:]
		l.dropped++
	}
	l.recs = append(l.recs, rec)
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *ChangeLog) PushModReport(r *ModReport) {
	body := toytlv.Record('K', r.PrimaryKey)
	if r.Info.HasDeleted() {
		body = toytlv.Concat(body, toytlv.Record('D', r.Info.Deleted.Bytes))
	}
	if r.Info.HasAdded() {
		body = toytlv.Concat(body, toytlv.Record('A', r.Info.Added.Bytes))
	}
	l.push(toytlv.Record('M', body))
}

func (l *ChangeLog) PushEraseRange(rng datum.KeyRange) {
	flags := byte(0)
	if rng.RightUnbounded {
		flags |= eraseFlagRightUnbounded
	}
	body := toytlv.Concat(
		toytlv.Record('L', rng.Left),
		toytlv.Record('G', []byte{flags}),
	)
	if !rng.RightUnbounded {
		body = toytlv.Concat(body, toytlv.Record('R', rng.Right))
	}
	l.push(toytlv.Record('E', body))
}

// Feed drains the pending records, blocking until at least one arrives.
// A closed log returns ErrClosed once drained.
func (l *ChangeLog) Feed(ctx context.Context) (toyqueue.Records, error) {
	for {
		l.mu.Lock()
		if len(l.recs) > 0 {
			out := l.recs
			l.recs = nil
			l.mu.Unlock()
			return out, nil
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil, rdberrors.ErrClosed
		}
		select {
		case <-l.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dropped reports how many records fell off the bounded log unread.
func (l *ChangeLog) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *ChangeLog) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// ChangeRecord is one decoded change-log record: either a modification or
// a range erase.
type ChangeRecord struct {
	Key     datum.StoreKey
	Deleted []byte
	Added   []byte

	IsErase bool
	Erased  datum.KeyRange
}

// ParseChangeRecord decodes one log record.
func ParseChangeRecord(rec []byte) (*ChangeRecord, error) {
	lit, body, rest := toytlv.TakeAny(rec)
	if body == nil || len(rest) != 0 {
		return nil, rdberrors.ErrBadValue
	}
	switch lit {
	case 'M':
		key, body := toytlv.Take('K', body)
		if key == nil {
			return nil, rdberrors.ErrBadValue
		}
		out := &ChangeRecord{Key: datum.StoreKey(key).Clone()}
		if d, more := toytlv.Take('D', body); d != nil {
			out.Deleted = append([]byte(nil), d...)
			body = more
		}
		if a, _ := toytlv.Take('A', body); a != nil {
			out.Added = append([]byte(nil), a...)
		}
		return out, nil
	case 'E':
		left, body := toytlv.Take('L', body)
		if left == nil {
			return nil, rdberrors.ErrBadValue
		}
		flags, body := toytlv.Take('G', body)
		if len(flags) != 1 {
			return nil, rdberrors.ErrBadValue
		}
		out := &ChangeRecord{IsErase: true}
		out.Erased.Left = datum.StoreKey(left).Clone()
		if flags[0]&eraseFlagRightUnbounded != 0 {
			out.Erased.RightUnbounded = true
			return out, nil
		}
		right, _ := toytlv.Take('R', body)
		if right == nil {
			return nil, rdberrors.ErrBadValue
		}
		out.Erased.Right = datum.StoreKey(right).Clone()
		return out, nil
	}
	return nil, rdberrors.ErrBadValue
}
