package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// DDL of the four store tables, applied by RunMigrations. Data types are
// PostgreSQL; tests build an equivalent schema for their driver.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS processes (
		row_id       SERIAL PRIMARY KEY,
		process_id   TEXT NOT NULL UNIQUE,
		process_data JSONB NOT NULL,
		bundle       BYTEA NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		row_id        SERIAL PRIMARY KEY,
		process_id    TEXT NOT NULL,
		message_id    TEXT NOT NULL,
		assignment_id TEXT,
		message_data  JSONB NOT NULL,
		epoch         INTEGER NOT NULL,
		nonce         INTEGER NOT NULL,
		timestamp     BIGINT NOT NULL,
		bundle        BYTEA NOT NULL,
		hash_chain    TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_process_timestamp
		ON messages (process_id, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages (message_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_assignment_id ON messages (assignment_id);`,
	`CREATE TABLE IF NOT EXISTS schedulers (
		row_id        SERIAL PRIMARY KEY,
		url           TEXT NOT NULL UNIQUE,
		process_count INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS process_schedulers (
		row_id           SERIAL PRIMARY KEY,
		process_id       TEXT NOT NULL UNIQUE,
		scheduler_row_id INTEGER NOT NULL
	);`,
}

// RunMigrations applies the store schema against the primary endpoint.
// Statements are idempotent and safe to re-run at every startup.
func (s *Store) RunMigrations(ctx context.Context) error {
	var conn, err = s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, stmt := range migrations {
		if _, err = conn.ExecContext(ctx, stmt); err != nil {
			return newError(DatabaseError, "error applying migrations: %v", err)
		}
	}
	return nil
}

// dbMessage is a full messages row.
type dbMessage struct {
	rowID        int32
	processID    string
	messageID    string
	assignmentID sql.NullString
	messageData  json.RawMessage
	epoch        int32
	nonce        int32
	timestamp    int64
	bundle       []byte
	hashChain    string
}

// dbMessageMeta is a messages row without its document or payload bytes,
// selected when payloads are read from the blob tier instead.
type dbMessageMeta struct {
	rowID        int32
	processID    string
	messageID    string
	assignmentID sql.NullString
	epoch        int32
	nonce        int32
	timestamp    int64
	hashChain    string
}

const messageCols = `row_id, process_id, message_id, assignment_id,
	message_data, epoch, nonce, timestamp, bundle, hash_chain`

const messageMetaCols = `row_id, process_id, message_id, assignment_id,
	epoch, nonce, timestamp, hash_chain`

func scanMessage(row interface{ Scan(...interface{}) error }) (dbMessage, error) {
	var m dbMessage
	var err = row.Scan(&m.rowID, &m.processID, &m.messageID, &m.assignmentID,
		&m.messageData, &m.epoch, &m.nonce, &m.timestamp, &m.bundle, &m.hashChain)
	return m, err
}

func scanMessageMeta(row interface{ Scan(...interface{}) error }) (dbMessageMeta, error) {
	var m dbMessageMeta
	var err = row.Scan(&m.rowID, &m.processID, &m.messageID, &m.assignmentID,
		&m.epoch, &m.nonce, &m.timestamp, &m.hashChain)
	return m, err
}

// nullable maps an empty string to a SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
