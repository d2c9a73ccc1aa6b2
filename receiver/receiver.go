// Package receiver dispatches unsolicited modem messages to the
// multipart assembler, storage, and the event broadcaster. It sits
// above the leaf `sms`, `store`, and `events` packages, which must
// not depend back on it (sms.SmsMessage/SmsDeliveryReport are the
// shared currency those leaves and this package all pass around).
package receiver

import (
	"context"
	"log/slog"

	"i4.energy/across/smsgw/events"
	"i4.energy/across/smsgw/modem"
	"i4.energy/across/smsgw/sms"
	"i4.energy/across/smsgw/store"
)

// Store is the subset of store.Store the Receiver depends on, so
// tests can supply a fake without pulling in SQLite.
type Store interface {
	InsertMessage(ctx context.Context, msg sms.SmsMessage, isFinal bool) (int64, error)
	FindOpenOutgoing(ctx context.Context, phoneNumber string, referenceID uint8) (int64, bool, error)
	UpdateMessageStatus(ctx context.Context, messageID int64, status uint8, completed bool) error
	InsertDeliveryReport(ctx context.Context, messageID int64, status uint8, isFinal bool) (int64, error)
}

var _ Store = (store.Store)(nil)

// Receiver dispatches ModemIncomingMessage values to the
// MultipartAssembler, storage, and the Broadcaster, per spec.md §4.8.
type Receiver struct {
	assembler   *sms.MultipartAssembler
	store       Store
	broadcaster *events.Broadcaster
	logger      *slog.Logger
}

// New builds a Receiver. broadcaster may be nil if no sinks are
// configured.
func New(assembler *sms.MultipartAssembler, st Store, broadcaster *events.Broadcaster, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{assembler: assembler, store: st, broadcaster: broadcaster, logger: logger}
}

// Run consumes incoming until the channel closes or ctx is done.
func (r *Receiver) Run(ctx context.Context, incoming <-chan modem.ModemIncomingMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			r.Handle(ctx, msg)
		}
	}
}

// Handle dispatches a single ModemIncomingMessage, per spec.md §4.8.
func (r *Receiver) Handle(ctx context.Context, msg modem.ModemIncomingMessage) {
	switch msg.Kind {
	case modem.UnsolicitedIncomingSms:
		r.handleIncomingSms(ctx, msg)
	case modem.UnsolicitedDeliveryReport:
		r.handleDeliveryReport(ctx, msg)
	case modem.UnsolicitedModemStatusUpdate:
		r.broadcast(events.Event{
			Kind: events.KindModemStatusUpdate,
			StatusUpdate: struct{ Previous, Current modem.ModemStatus }{
				Previous: msg.StatusUpdate.Previous,
				Current:  msg.StatusUpdate.Current,
			},
		})
	case modem.UnsolicitedGnssPositionReport:
		r.broadcast(events.Event{Kind: events.KindGnssPositionReport, GnssPosition: msg.Content})
	default:
		r.logger.Warn("receiver: unhandled unsolicited message kind", "kind", msg.Kind)
	}
}

func (r *Receiver) handleIncomingSms(ctx context.Context, msg modem.ModemIncomingMessage) {
	decoded, err := modem.DecodeDeliverPDU(msg.Content)
	if err != nil {
		r.logger.Error("receiver: decode incoming SMS PDU", "error", err)
		return
	}
	sender := sms.NormalizeSenderAddress(decoded.From)

	total, index := 1, 1
	if decoded.IsConcatenated {
		total, index = int(decoded.ConcatTotalParts), int(decoded.ConcatPartNumber)
	}

	reference := decoded.ConcatReference
	complete, ok := r.assembler.AddPart(sender, reference, total, index, decoded.Text)
	if !ok {
		return
	}
	complete.CreatedAt = decoded.SentAt

	messageID, err := r.store.InsertMessage(ctx, complete, true)
	if err != nil {
		r.logger.Error("receiver: persist incoming message", "error", err)
		return
	}
	complete.MessageID = messageID

	r.broadcast(events.Event{Kind: events.KindIncomingMessage, Message: complete})
}

func (r *Receiver) handleDeliveryReport(ctx context.Context, msg modem.ModemIncomingMessage) {
	report, err := modem.DecodeStatusReportPDU(msg.Content)
	if err != nil {
		r.logger.Error("receiver: decode delivery report PDU", "error", err)
		return
	}
	recipient := sms.NormalizeSenderAddress(report.Recipient)

	messageID, found, err := r.store.FindOpenOutgoing(ctx, recipient, report.MessageReference)
	if err != nil {
		r.logger.Error("receiver: look up open outgoing message", "error", err)
		return
	}
	if !found {
		r.logger.Warn("receiver: delivery report with no matching outgoing message",
			"phone_number", recipient, "message_reference", report.MessageReference)
		return
	}

	final := sms.IsFinalStatus(report.Status)
	if err := r.store.UpdateMessageStatus(ctx, messageID, report.Status, final); err != nil {
		r.logger.Error("receiver: update message status", "error", err)
		return
	}
	reportID, err := r.store.InsertDeliveryReport(ctx, messageID, report.Status, final)
	if err != nil {
		r.logger.Error("receiver: persist delivery report", "error", err)
		return
	}

	r.broadcast(events.Event{
		Kind: events.KindDeliveryReport,
		DeliveryReport: struct {
			MessageID int64
			Report    sms.SmsDeliveryReport
		}{
			MessageID: messageID,
			Report: sms.SmsDeliveryReport{
				ReportID:  reportID,
				MessageID: messageID,
				Status:    report.Status,
				IsFinal:   final,
			},
		},
	})
}

func (r *Receiver) broadcast(e events.Event) {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.Broadcast(e)
}
