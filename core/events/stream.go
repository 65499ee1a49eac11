package events

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultStreamHistory = 1024

// Record is a committed event tagged with its position in the stream.
type Record struct {
	Sequence uint64
	Cursor   string
	Event    Event
	Observed time.Time
}

// Stream keeps a bounded history of committed events and fans them out to
// live subscribers. Slow subscribers miss events rather than blocking Emit;
// they can reconnect with their last cursor to replay from history.
type Stream struct {
	mu      sync.Mutex
	limit   int
	seq     uint64
	history []Record
	subs    map[uint64]chan Record
	nextID  uint64
	nowFn   func() time.Time
}

// NewStream creates a stream retaining up to limit records. A non-positive
// limit selects the default.
func NewStream(limit int) *Stream {
	if limit <= 0 {
		limit = defaultStreamHistory
	}
	return &Stream{limit: limit, subs: make(map[uint64]chan Record), nowFn: time.Now}
}

// Emit implements the Emitter interface.
func (s *Stream) Emit(evt Event) {
	if s == nil || evt == nil {
		return
	}
	s.mu.Lock()
	s.seq++
	rec := Record{
		Sequence: s.seq,
		Cursor:   strconv.FormatUint(s.seq, 10),
		Event:    evt,
		Observed: s.nowFn().UTC(),
	}
	s.history = append(s.history, rec)
	if len(s.history) > s.limit {
		trimmed := make([]Record, s.limit)
		copy(trimmed, s.history[len(s.history)-s.limit:])
		s.history = trimmed
	}
	// Sends stay under the lock so cancel cannot close a channel mid-send.
	for _, ch := range s.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	s.mu.Unlock()
}

// Subscribe registers for records after cursor. The backlog holds the retained
// records the caller has not seen yet. The channel is closed when cancel is
// called or ctx ends.
func (s *Stream) Subscribe(ctx context.Context, cursor string) (<-chan Record, func(), []Record) {
	updates := make(chan Record, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]Record, 0, len(s.history))
	for _, rec := range s.history {
		if rec.Sequence > since {
			backlog = append(backlog, rec)
		}
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

// Multi fans every event out to each non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	sinks := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			sinks = append(sinks, e)
		}
	}
	return EmitterFunc(func(evt Event) {
		for _, sink := range sinks {
			sink.Emit(evt)
		}
	})
}
