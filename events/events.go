// Package events defines the typed events the modem control plane
// broadcasts to webhook and live-listener sinks, and the fan-out
// broadcaster itself.
package events

import (
	"log/slog"

	"i4.energy/across/smsgw/modem"
	"i4.energy/across/smsgw/sms"
)

// Kind tags an Event's variant. At most 8 kinds exist so a single byte
// can hold a subscriber's mask.
type Kind uint8

const (
	KindIncomingMessage Kind = 1 << iota
	KindOutgoingMessage
	KindDeliveryReport
	KindModemStatusUpdate
	KindGnssPositionReport
)

// AllKinds is the mask matching every event kind; a subscriber mask of
// 0 is treated as AllKinds.
const AllKinds = KindIncomingMessage | KindOutgoingMessage | KindDeliveryReport |
	KindModemStatusUpdate | KindGnssPositionReport

// Event is the sum type broadcast to sinks. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Event struct {
	Kind Kind

	Message sms.SmsMessage

	DeliveryReport struct {
		MessageID int64
		Report    sms.SmsDeliveryReport
	}

	StatusUpdate struct {
		Previous, Current modem.ModemStatus
	}

	GnssPosition string
}

// Matches reports whether mask accepts this event's kind. A zero mask
// accepts everything.
func (e Event) Matches(mask Kind) bool {
	if mask == 0 {
		return true
	}
	return mask&e.Kind != 0
}

// Sink receives broadcast events. Submit must never block the
// broadcaster for long; implementations that talk to slow downstreams
// queue internally.
type Sink interface {
	Submit(e Event)
}

// Broadcaster fans each event out to zero or more sinks, in emission
// order per sink.
type Broadcaster struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewBroadcaster builds a Broadcaster delivering to the given sinks.
func NewBroadcaster(logger *slog.Logger, sinks ...Sink) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{sinks: sinks, logger: logger}
}

// Broadcast delivers e to every registered sink. Submit is expected to
// be infallible at this level; sinks own their own delivery semantics
// (queueing, dropping, retrying).
func (b *Broadcaster) Broadcast(e Event) {
	for _, sink := range b.sinks {
		sink.Submit(e)
	}
}
