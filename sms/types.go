// Package sms holds the stored message shapes, reassembles multipart
// SMS parts into complete messages, classifies delivery-report status
// codes, and applies the carrier-specific sender corrections the field
// deployment needs. Routing notifications to storage and the event
// broadcaster is done by package receiver.
package sms

import "time"

// SmsMessage is the persisted, reassembled shape of one inbound or
// outbound SMS conversation turn.
type SmsMessage struct {
	MessageID        int64
	PhoneNumber      string
	MessageContent   string
	MessageReference uint8
	IsOutgoing       bool
	Status           *uint8
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// SmsDeliveryReport is one row recording a status-report event against
// a previously sent message.
type SmsDeliveryReport struct {
	ReportID  int64
	MessageID int64
	Status    uint8
	IsFinal   bool
	CreatedAt time.Time
}
