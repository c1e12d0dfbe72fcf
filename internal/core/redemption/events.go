package redemption

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	EventRequestCreated  EventKind = "RequestCreated"
	EventRequestApproved EventKind = "RequestApproved"
	EventRequestRejected EventKind = "RequestRejected"
	EventRequestSettled  EventKind = "RequestSettled"
	EventVoucherMinted   EventKind = "VoucherMinted"
)

// Event carries a full request snapshot taken when the event was raised.
type Event struct {
	ID        string
	Kind      EventKind
	Request   Request
	Reason    string
	Payout    string
	Fee       string
	VoucherID uint64
	At        time.Time
}

// EventSink receives events after the operation that raised them commits.
type EventSink interface {
	Publish(ev Event)
}

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging at Info.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("events")}
}

// Publish implements EventSink.
func (s *LogSink) Publish(ev Event) {
	fields := []zap.Field{
		zap.String("eventID", ev.ID),
		zap.Uint64("requestID", ev.Request.ID),
		zap.String("owner", ev.Request.Owner.String()),
		zap.Stringer("status", ev.Request.Status),
		zap.Stringer("channel", ev.Request.Channel),
		zap.String("grossAmount", ev.Request.GrossAmount.Dec()),
		zap.Time("at", ev.At),
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if ev.Payout != "" {
		fields = append(fields, zap.String("payout", ev.Payout), zap.String("fee", ev.Fee))
	}
	if ev.VoucherID != 0 {
		fields = append(fields, zap.Uint64("voucherID", ev.VoucherID))
	}
	s.logger.Info(string(ev.Kind), fields...)
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements EventSink.
func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// MultiSink fans events out to several sinks.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

func (e *Engine) raise(kind EventKind, r *Request, mutate func(*Event)) {
	ev := Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Request: *r.Clone(),
		At:      e.clock.Now(),
	}
	if mutate != nil {
		mutate(&ev)
	}
	e.outbox = append(e.outbox, ev)
}
