// Package store persists SMS messages, delivery reports, and friendly
// names, and provides the AES-256-GCM envelope that protects message
// content at rest.
package store

import (
	"context"

	"i4.energy/across/smsgw/sms"
)

// Page bounds a paginated query. A zero Limit means "no limit".
type Page struct {
	Limit   uint64
	Offset  uint64
	Reverse bool
}

// Store is the persistence contract the Receiver and HTTP API use.
// SQLiteStore is the only implementation, but the interface keeps the
// domain logic free of SQL.
type Store interface {
	InsertMessage(ctx context.Context, msg sms.SmsMessage, isFinal bool) (int64, error)
	InsertSendFailure(ctx context.Context, messageID int64, errMsg string) (int64, error)
	InsertDeliveryReport(ctx context.Context, messageID int64, status uint8, isFinal bool) (int64, error)

	FindOpenOutgoing(ctx context.Context, phoneNumber string, referenceID uint8) (int64, bool, error)
	UpdateMessageStatus(ctx context.Context, messageID int64, status uint8, completed bool) error

	UpdateFriendlyName(ctx context.Context, phoneNumber string, friendlyName *string) error
	GetFriendlyName(ctx context.Context, phoneNumber string) (*string, error)

	GetLatestNumbers(ctx context.Context, page Page) ([]NumberSummary, error)
	GetMessages(ctx context.Context, phoneNumber string, page Page) ([]sms.SmsMessage, error)
	GetDeliveryReports(ctx context.Context, messageID int64, page Page) ([]sms.SmsDeliveryReport, error)

	Close() error
}

// NumberSummary pairs a phone number with its optional friendly name,
// as returned by GetLatestNumbers.
type NumberSummary struct {
	PhoneNumber  string
	FriendlyName *string
}
