package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"i4.energy/across/smsgw/sms"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	message_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	phone_number      TEXT NOT NULL,
	message_content   TEXT NOT NULL,
	message_reference INTEGER NOT NULL,
	is_outgoing       INTEGER NOT NULL,
	status            INTEGER,
	created_at        INTEGER NOT NULL DEFAULT (unixepoch()),
	completed_at      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_phone_number ON messages (phone_number);
CREATE INDEX IF NOT EXISTS idx_messages_open_outgoing ON messages (phone_number, message_reference, completed_at);

CREATE TABLE IF NOT EXISTS send_failures (
	failure_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id    INTEGER NOT NULL REFERENCES messages(message_id),
	error_message TEXT NOT NULL,
	created_at    INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS delivery_reports (
	report_id  INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL REFERENCES messages(message_id),
	status     INTEGER NOT NULL,
	is_final   INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (unixepoch())
);
CREATE INDEX IF NOT EXISTS idx_delivery_reports_message_id ON delivery_reports (message_id);

CREATE TABLE IF NOT EXISTS friendly_names (
	phone_number  TEXT PRIMARY KEY,
	friendly_name TEXT NOT NULL
);
`

// SQLiteStore implements Store atop database/sql and
// github.com/mattn/go-sqlite3, with message content protected by an
// Encryptor before it ever reaches disk.
type SQLiteStore struct {
	db         *sql.DB
	encryption *Encryptor
}

// OpenSQLiteStore opens (creating if missing) the SQLite database at
// path, applies the schema, and wires encryption for message content.
func OpenSQLiteStore(path string, encryption *Encryptor) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(20)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db, encryption: encryption}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, msg sms.SmsMessage, isFinal bool) (int64, error) {
	encrypted, err := s.encryption.Encrypt(msg.MessageContent)
	if err != nil {
		return 0, fmt.Errorf("store: encrypt message content: %w", err)
	}

	query := "INSERT INTO messages (phone_number, message_content, message_reference, is_outgoing, status) VALUES (?, ?, ?, ?, ?)"
	if isFinal {
		query = "INSERT INTO messages (phone_number, message_content, message_reference, is_outgoing, status, completed_at) VALUES (?, ?, ?, ?, ?, unixepoch())"
	}
	result, err := s.db.ExecContext(ctx, query, msg.PhoneNumber, encrypted, msg.MessageReference, msg.IsOutgoing, msg.Status)
	if err != nil {
		return 0, fmt.Errorf("store: insert message: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) InsertSendFailure(ctx context.Context, messageID int64, errMsg string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO send_failures (message_id, error_message) VALUES (?, ?)", messageID, errMsg)
	if err != nil {
		return 0, fmt.Errorf("store: insert send failure: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) InsertDeliveryReport(ctx context.Context, messageID int64, status uint8, isFinal bool) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO delivery_reports (message_id, status, is_final) VALUES (?, ?, ?)", messageID, status, isFinal)
	if err != nil {
		return 0, fmt.Errorf("store: insert delivery report: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) FindOpenOutgoing(ctx context.Context, phoneNumber string, referenceID uint8) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id FROM messages
		 WHERE completed_at IS NULL AND is_outgoing = 1 AND phone_number = ? AND message_reference = ?
		 ORDER BY message_id DESC LIMIT 1`, phoneNumber, referenceID)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: find open outgoing: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, messageID int64, status uint8, completed bool) error {
	query := "UPDATE messages SET status = ? WHERE message_id = ?"
	if completed {
		query = "UPDATE messages SET status = ?, completed_at = unixepoch() WHERE message_id = ?"
	}
	if _, err := s.db.ExecContext(ctx, query, status, messageID); err != nil {
		return fmt.Errorf("store: update message status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateFriendlyName(ctx context.Context, phoneNumber string, friendlyName *string) error {
	var err error
	if friendlyName == nil {
		_, err = s.db.ExecContext(ctx, "DELETE FROM friendly_names WHERE phone_number = ?", phoneNumber)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO friendly_names (phone_number, friendly_name) VALUES (?, ?)
			 ON CONFLICT(phone_number) DO UPDATE SET friendly_name = excluded.friendly_name`,
			phoneNumber, *friendlyName)
	}
	if err != nil {
		return fmt.Errorf("store: update friendly name: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFriendlyName(ctx context.Context, phoneNumber string) (*string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT friendly_name FROM friendly_names WHERE phone_number = ?", phoneNumber)
	var name string
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get friendly name: %w", err)
	}
	return &name, nil
}

func (s *SQLiteStore) GetLatestNumbers(ctx context.Context, page Page) ([]NumberSummary, error) {
	query := buildPaginationQuery(
		`SELECT m.phone_number, f.friendly_name FROM messages m
		 LEFT JOIN friendly_names f ON f.phone_number = m.phone_number
		 GROUP BY m.phone_number`,
		"MAX(m.created_at)", page)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: get latest numbers: %w", err)
	}
	defer rows.Close()

	var out []NumberSummary
	for rows.Next() {
		var summary NumberSummary
		var friendlyName sql.NullString
		if err := rows.Scan(&summary.PhoneNumber, &friendlyName); err != nil {
			return nil, fmt.Errorf("store: scan latest number: %w", err)
		}
		if friendlyName.Valid {
			summary.FriendlyName = &friendlyName.String
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetMessages(ctx context.Context, phoneNumber string, page Page) ([]sms.SmsMessage, error) {
	query := buildPaginationQuery(
		`SELECT message_id, phone_number, message_content, message_reference, is_outgoing, status, created_at, completed_at
		 FROM messages WHERE phone_number = ?`,
		"created_at", page)

	rows, err := s.db.QueryContext(ctx, query, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("store: get messages: %w", err)
	}
	defer rows.Close()

	var out []sms.SmsMessage
	for rows.Next() {
		var msg sms.SmsMessage
		var encryptedContent string
		var status sql.NullInt64
		var createdAt int64
		var completedAt sql.NullInt64
		if err := rows.Scan(&msg.MessageID, &msg.PhoneNumber, &encryptedContent, &msg.MessageReference,
			&msg.IsOutgoing, &status, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}

		content, err := s.encryption.Decrypt(encryptedContent)
		if err != nil {
			return nil, fmt.Errorf("store: decrypt message %d: %w", msg.MessageID, err)
		}
		msg.MessageContent = content
		msg.CreatedAt = time.Unix(createdAt, 0).UTC()
		if status.Valid {
			v := uint8(status.Int64)
			msg.Status = &v
		}
		if completedAt.Valid {
			t := time.Unix(completedAt.Int64, 0).UTC()
			msg.CompletedAt = &t
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetDeliveryReports(ctx context.Context, messageID int64, page Page) ([]sms.SmsDeliveryReport, error) {
	query := buildPaginationQuery(
		"SELECT report_id, message_id, status, is_final, created_at FROM delivery_reports WHERE message_id = ?",
		"created_at", page)

	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("store: get delivery reports: %w", err)
	}
	defer rows.Close()

	var out []sms.SmsDeliveryReport
	for rows.Next() {
		var report sms.SmsDeliveryReport
		var createdAt int64
		if err := rows.Scan(&report.ReportID, &report.MessageID, &report.Status, &report.IsFinal, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan delivery report: %w", err)
		}
		report.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, report)
	}
	return out, rows.Err()
}

func buildPaginationQuery(baseQuery, orderBy string, page Page) string {
	direction := "DESC"
	if page.Reverse {
		direction = "ASC"
	}
	var b strings.Builder
	b.WriteString(baseQuery)
	fmt.Fprintf(&b, " ORDER BY %s %s", orderBy, direction)
	if page.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", page.Limit)
	}
	if page.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", page.Offset)
	}
	return b.String()
}
