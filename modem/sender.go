package modem

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	gsm7SingleLimit = 160
	gsm7ConcatLimit = 153
	ucs2SingleLimit = 70
	ucs2ConcatLimit = 67
)

// SmsOutgoingMessage is the high-level send request a caller hands to
// the Sender. Only To and Content are required.
type SmsOutgoingMessage struct {
	To             string
	Content        string
	Flash          bool
	ValidityPeriod time.Duration
	Timeout        time.Duration
}

// concatReferenceCounter assigns the 8-bit concatenated-message
// reference used in a multipart UDH. It wraps at 256, which is fine:
// 3GPP TS 23.040 only requires the reference be distinct among
// messages concurrently in flight to the same recipient.
var concatReferenceCounter atomic.Uint32

func nextConcatReference() uint8 {
	return uint8(concatReferenceCounter.Add(1))
}

// Sender turns SmsOutgoingMessage values into one or more
// ModemRequest.SendSms commands, dispatching each through a bounded,
// non-blocking queue and awaiting its reply in turn.
type Sender struct {
	commandQueue   chan OutgoingCommand
	defaultTimeout time.Duration
}

// NewSender wraps the command queue the Worker drains. defaultTimeout
// is used for parts that don't specify their own.
func NewSender(commandQueue chan OutgoingCommand, defaultTimeout time.Duration) *Sender {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Sender{commandQueue: commandQueue, defaultTimeout: defaultTimeout}
}

// Send splits msg into one or more PDU parts and dispatches them in
// order, aborting on the first part that comes back as an error. It
// returns the TP-Message-Reference of each part that was acknowledged.
func (s *Sender) Send(ctx context.Context, msg SmsOutgoingMessage) ([]uint8, error) {
	parts, err := splitMessage(msg.Content)
	if err != nil {
		return nil, err
	}

	timeout := msg.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	timeout = max(timeout, ModemRequest{Kind: RequestSendSms}.DefaultTimeout())
	deadline := timeout + time.Second

	var references []uint8
	for i, part := range parts {
		pduHex, tpduLen, err := EncodeSubmitPDU(msg.To, part.text, msg.Flash, msg.ValidityPeriod, part.udh)
		if err != nil {
			return references, fmt.Errorf("sms part %d/%d: %w", i+1, len(parts), err)
		}

		cmd := OutgoingCommand{
			Sequence: NextCommandSequence(),
			Request: ModemRequest{
				Kind:    RequestSendSms,
				PDUHex:  pduHex,
				TPDULen: tpduLen,
			},
			Timeout: timeout,
			reply:   newReplySink(),
		}

		select {
		case s.commandQueue <- cmd:
		default:
			return references, ErrQueueFull
		}

		resp, err := awaitReply(ctx, cmd.reply, deadline)
		if err != nil {
			return references, fmt.Errorf("sms part %d/%d: %w", i+1, len(parts), err)
		}
		if resp.IsError() {
			return references, fmt.Errorf("sms part %d/%d: %s", i+1, len(parts), resp.Error())
		}
		references = append(references, resp.ReferenceID)
	}
	return references, nil
}

func awaitReply(ctx context.Context, reply replySink, deadline time.Duration) (ModemResponse, error) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case resp := <-reply:
		return resp, nil
	case <-timer.C:
		return ModemResponse{}, ErrCommandTimedOut
	case <-ctx.Done():
		return ModemResponse{}, ctx.Err()
	}
}

type messagePart struct {
	text string
	udh  []byte
}

// splitMessage segments text per spec.md §4.6: single-part when it
// fits the encoding's unsegmented limit, otherwise GSM-7/UCS-2
// concatenation with an 8-bit-reference user data header on every part.
func splitMessage(text string) ([]messagePart, error) {
	if text == "" {
		return nil, fmt.Errorf("sms: empty message content")
	}
	runes := []rune(text)
	isUCS2 := false
	for _, r := range runes {
		if r > 127 {
			isUCS2 = true
			break
		}
	}

	singleLimit, concatLimit := gsm7SingleLimit, gsm7ConcatLimit
	if isUCS2 {
		singleLimit, concatLimit = ucs2SingleLimit, ucs2ConcatLimit
	}

	if len(runes) <= singleLimit {
		return []messagePart{{text: text}}, nil
	}

	total := (len(runes) + concatLimit - 1) / concatLimit
	if total > 255 {
		return nil, fmt.Errorf("sms: message too long (%d parts)", total)
	}
	ref := nextConcatReference()

	parts := make([]messagePart, 0, total)
	for i := 0; i < total; i++ {
		start := i * concatLimit
		end := min(start+concatLimit, len(runes))
		udh := []byte{0x00, 0x03, ref, byte(total), byte(i + 1)}
		parts = append(parts, messagePart{text: string(runes[start:end]), udh: udh})
	}
	return parts, nil
}
