package errcapture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cthulhu/internal/observable"
)

const (
	DefaultMaxItems     = 5
	DefaultDedupeWindow = 10 * time.Second

	// SinkTimeout bounds one archive write.
	SinkTimeout = 2 * time.Second
	sinkBacklog = 64
)

// Options zero values fall back to the defaults; AutoDismiss zero means records stay until
// dismissed.
type Options struct {
	MaxItems     int
	DedupeWindow time.Duration
	AutoDismiss  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxItems <= 0 {
		o.MaxItems = DefaultMaxItems
	}
	if o.DedupeWindow <= 0 {
		o.DedupeWindow = DefaultDedupeWindow
	}
	if o.AutoDismiss < 0 {
		o.AutoDismiss = 0
	}
	return o
}

// Sink observes records as they are captured. duplicate is true when an existing record
// only had its timestamp refreshed.
type Sink interface {
	Record(ctx context.Context, rec ErrorRecord, duplicate bool) error
}

// Notifier owns the capped error list. The published slice is never mutated after Set;
// every change publishes a fresh copy.
type Notifier struct {
	mu       sync.Mutex
	opts     Options
	messages StatusMessageMap
	records  *observable.Value[[]ErrorRecord]
	sink     Sink
	now      func() time.Time

	// Sink writes are queued and drained by one goroutine so capture never waits on disk.
	sinkMu     sync.Mutex
	sinkQueue  chan sinkWrite
	sinkClosed bool
	sinkDone   chan struct{}
}

type sinkWrite struct {
	rec       ErrorRecord
	duplicate bool
}

type NotifierOption func(*Notifier)

func WithClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

func WithSink(s Sink) NotifierOption {
	return func(n *Notifier) { n.sink = s }
}

// NewNotifier uses DefaultStatusMessages when messages has no entries at all.
func NewNotifier(opts Options, messages StatusMessageMap, options ...NotifierOption) *Notifier {
	if len(messages.Status) == 0 && messages.Default == "" && messages.Network == "" {
		messages = DefaultStatusMessages()
	}
	n := &Notifier{
		opts:     opts.withDefaults(),
		messages: messages,
		records:  observable.NewValue([]ErrorRecord{}),
		now:      time.Now,
	}
	for _, o := range options {
		o(n)
	}
	if n.sink != nil {
		n.sinkQueue = make(chan sinkWrite, sinkBacklog)
		n.sinkDone = make(chan struct{})
		go n.drainSink()
	}
	return n
}

// Close stops the archive writer after the queued records are written. Records captured
// afterwards are no longer archived.
func (n *Notifier) Close() {
	if n.sink == nil {
		return
	}
	n.sinkMu.Lock()
	if !n.sinkClosed {
		n.sinkClosed = true
		close(n.sinkQueue)
	}
	n.sinkMu.Unlock()
	<-n.sinkDone
}

func (n *Notifier) Options() Options { return n.opts }

// AddFailure classifies f and adds it. Client-side aborts carry no HTTP meaning and are
// dropped.
func (n *Notifier) AddFailure(f Failure) {
	if f.Err != nil && errors.Is(f.Err, context.Canceled) {
		return
	}
	n.AddRecord(Classify(f, n.messages, n.now()))
}

func (n *Notifier) AddRecord(rec ErrorRecord) {
	n.mu.Lock()
	now := n.now()
	current := n.records.Get()
	for i, r := range current {
		if r.Status == rec.Status && r.URL == rec.URL && r.Message == rec.Message &&
			now.Sub(r.Timestamp) < n.opts.DedupeWindow {
			next := append([]ErrorRecord(nil), current...)
			next[i].Timestamp = now
			refreshed := next[i]
			n.records.Set(next)
			n.mu.Unlock()
			n.archive(refreshed, true)
			return
		}
	}

	next := make([]ErrorRecord, 0, len(current)+1)
	next = append(next, rec)
	next = append(next, current...)
	if len(next) > n.opts.MaxItems {
		next = next[:n.opts.MaxItems]
	}
	n.records.Set(next)
	n.mu.Unlock()

	log.Debug().Str("component", "errcapture").Int("status", rec.Status).Str("url", rec.URL).
		Str("id", rec.ID).Msg("error captured")
	n.archive(rec, false)

	if n.opts.AutoDismiss > 0 {
		id := rec.ID
		time.AfterFunc(n.opts.AutoDismiss, func() { n.Dismiss(id) })
	}
}

// Dismiss is a no-op for unknown ids.
func (n *Notifier) Dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	current := n.records.Get()
	next := make([]ErrorRecord, 0, len(current))
	for _, r := range current {
		if r.ID != id {
			next = append(next, r)
		}
	}
	if len(next) == len(current) {
		return
	}
	n.records.Set(next)
}

func (n *Notifier) ClearAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records.Set([]ErrorRecord{})
}

func (n *Notifier) Snapshot() []ErrorRecord {
	return append([]ErrorRecord(nil), n.records.Get()...)
}

// Subscribe follows the list; the first value is the current list.
func (n *Notifier) Subscribe() (<-chan []ErrorRecord, func()) {
	return n.records.Subscribe()
}

func (n *Notifier) archive(rec ErrorRecord, duplicate bool) {
	if n.sink == nil {
		return
	}
	n.sinkMu.Lock()
	defer n.sinkMu.Unlock()
	if n.sinkClosed {
		return
	}
	select {
	case n.sinkQueue <- sinkWrite{rec: rec, duplicate: duplicate}:
	default:
		log.Warn().Str("component", "errcapture").Str("id", rec.ID).Msg("archive backlog full, record not archived")
	}
}

func (n *Notifier) drainSink() {
	defer close(n.sinkDone)
	for w := range n.sinkQueue {
		ctx, cancel := context.WithTimeout(context.Background(), SinkTimeout)
		if err := n.sink.Record(ctx, w.rec, w.duplicate); err != nil {
			log.Warn().Err(err).Str("component", "errcapture").Str("id", w.rec.ID).Msg("archive error record")
		}
		cancel()
	}
}
