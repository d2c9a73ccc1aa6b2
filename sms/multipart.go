package sms

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// multipartKey identifies one in-progress concatenated message.
type multipartKey struct {
	phoneNumber      string
	messageReference uint8
}

type multipartState struct {
	parts        []string
	receivedCount int
	firstMessage part0
	lastUpdate   time.Time
}

// part0 captures the fields that should come from the message's first
// arriving part, regardless of arrival order, so the reassembled
// SmsMessage reflects the sender and reference the whole group shares.
type part0 struct {
	phoneNumber      string
	messageReference uint8
}

// MultipartAssembler reassembles concatenated SMS parts keyed by
// (phone_number, message_reference). It is safe for concurrent use.
type MultipartAssembler struct {
	mu      sync.Mutex
	entries map[multipartKey]*multipartState
	logger  *slog.Logger
}

// NewMultipartAssembler returns an empty assembler.
func NewMultipartAssembler(logger *slog.Logger) *MultipartAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultipartAssembler{entries: make(map[multipartKey]*multipartState), logger: logger}
}

// AddPart places one part of a concatenated message. total and index
// are 1-based per 3GPP TS 23.040's UDH; index values outside [1,total]
// are ignored. When the group completes, AddPart returns the
// reassembled message and true.
func (a *MultipartAssembler) AddPart(phoneNumber string, messageReference uint8, total, index int, text string) (SmsMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if index < 1 || index > total {
		return SmsMessage{}, false
	}

	key := multipartKey{phoneNumber: phoneNumber, messageReference: messageReference}
	state, ok := a.entries[key]
	if !ok {
		state = &multipartState{
			parts:      make([]string, total),
			firstMessage: part0{phoneNumber: phoneNumber, messageReference: messageReference},
		}
		a.entries[key] = state
	}

	slot := index - 1
	if state.parts[slot] == "" && state.receivedCount < total {
		state.parts[slot] = strings.TrimSuffix(text, "@")
		state.receivedCount++
	}
	state.lastUpdate = time.Now()

	if total == 1 {
		a.logger.Warn("single-part message routed through multipart assembler", "phone_number", phoneNumber)
	}

	if state.receivedCount != total {
		return SmsMessage{}, false
	}

	delete(a.entries, key)
	msg := SmsMessage{
		PhoneNumber:      state.firstMessage.phoneNumber,
		MessageReference: state.firstMessage.messageReference,
		MessageContent:   strings.Join(state.parts, ""),
	}
	return msg, true
}

// SweepStalled removes any entry whose lastUpdate is older than
// staleAfter, logging a warning for each. Intended to run on a
// periodic ticker (spec.md's 10-minute cadence against a 30-minute
// threshold).
func (a *MultipartAssembler) SweepStalled(staleAfter time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	removed := 0
	for key, state := range a.entries {
		if state.lastUpdate.Before(cutoff) {
			delete(a.entries, key)
			removed++
			a.logger.Warn("multipart message stalled, discarding",
				"phone_number", key.phoneNumber, "message_reference", key.messageReference)
		}
	}
	return removed
}

// RunCleanup blocks, sweeping stalled entries every interval, until
// stop is closed.
func (a *MultipartAssembler) RunCleanup(interval, staleAfter time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.SweepStalled(staleAfter)
		}
	}
}
