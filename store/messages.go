package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.sustore.dev/core/bytestore"
	"go.sustore.dev/core/dal"
	"go.sustore.dev/core/metrics"
)

// defaultPageLimit is the page size of GetMessages when the caller names none.
const defaultPageLimit = 5000

// CheckExistingMessage guards against duplicate data items. A message which
// carries no payload (an assignment) always passes. Otherwise, if a row
// sharing the same message id already holds a payload, MessageExists is
// returned; a payload-less match or no match at all passes.
func (s *Store) CheckExistingMessage(ctx context.Context, message *dal.Message) error {
	if message.IsAssignment() {
		return nil
	}

	var existing, err = s.GetMessage(ctx, message.MessageID())
	switch {
	case err == nil:
		if !existing.IsAssignment() {
			return newError(MessageExists, "Message already exists")
		}
		return nil
	case IsNotFound(err):
		// The message wasn't found at all, so it can be written.
		return nil
	default:
		return newError(DatabaseError, "Error checking message")
	}
}

// SaveMessage appends |message| to its process's sequence. On successful
// insert, if the disk tier is enabled, the payload bytes are mirrored into
// the blob store before SaveMessage returns (write-through). A blob write
// failure surfaces as an error but does not roll back the relational row;
// the row is repaired into the blob tier by a later resync.
func (s *Store) SaveMessage(ctx context.Context, message *dal.Message, bundle []byte) error {
	var conn, err = s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = s.CheckExistingMessage(ctx, message); err != nil {
		return err
	}

	var result sql.Result
	result, err = conn.ExecContext(ctx,
		`INSERT INTO messages (process_id, message_id, assignment_id, message_data,
			epoch, nonce, timestamp, bundle, hash_chain)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		message.ProcessID(), message.MessageID(), nullable(message.AssignmentID()),
		[]byte(message.Document()), message.Epoch(), message.Nonce(),
		message.Timestamp(), bundle, message.HashChain())
	if err != nil {
		return databaseErr(err)
	}

	var n int64
	if n, err = result.RowsAffected(); err != nil {
		return databaseErr(err)
	} else if n == 0 {
		return newError(DatabaseError, "Error saving message")
	}

	if s.useDisk {
		if err = s.blobs.SaveBinary(messageBinaryID(message), bundle); err != nil {
			return newError(DatabaseError, "%v", err)
		}
		metrics.ByteStoreWriteBytesTotal.Add(float64(len(bundle)))
	}
	metrics.MessagesSavedTotal.Inc()

	return nil
}

func messageBinaryID(m *dal.Message) bytestore.BinaryID {
	return bytestore.BinaryID{
		MessageID:    m.MessageID(),
		AssignmentID: m.AssignmentID(),
		ProcessID:    m.ProcessID(),
		Timestamp:    strconv.FormatInt(m.Timestamp(), 10),
	}
}

// GetMessage returns the earliest-timestamp message whose message id or
// assignment id equals |id|, or NotFound. In the case of a message which has
// later assignments, the earliest match is the original message itself.
func (s *Store) GetMessage(ctx context.Context, id string) (*dal.Message, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var row = conn.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE message_id = $1 OR assignment_id = $2
		 ORDER BY timestamp ASC LIMIT 1`, id, id)

	var m dbMessage
	if m, err = scanMessage(row); err == sql.ErrNoRows {
		return nil, newError(NotFound, "Message not found")
	} else if err != nil {
		return nil, databaseErr(err)
	}

	var message *dal.Message
	if message, err = dal.MessageFromDocument(m.messageData, m.bundle); err != nil {
		return nil, jsonErr(err)
	}
	return message, nil
}

// getMessageInternal fetches the earliest-timestamp full row of a message id
// and optional assignment id. It backs the per-row relational fallback of
// GetMessages when a payload is missing from the blob tier.
func (s *Store) getMessageInternal(ctx context.Context, messageID string, assignmentID sql.NullString) (*dal.Message, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var row *sql.Row
	if assignmentID.Valid {
		row = conn.QueryRowContext(ctx,
			`SELECT `+messageCols+` FROM messages
			 WHERE message_id = $1 AND assignment_id = $2
			 ORDER BY timestamp ASC LIMIT 1`, messageID, assignmentID.String)
	} else {
		row = conn.QueryRowContext(ctx,
			`SELECT `+messageCols+` FROM messages
			 WHERE message_id = $1
			 ORDER BY timestamp ASC LIMIT 1`, messageID)
	}

	var m dbMessage
	if m, err = scanMessage(row); err == sql.ErrNoRows {
		return nil, newError(NotFound, "Message not found")
	} else if err != nil {
		return nil, databaseErr(err)
	}

	var message *dal.Message
	if message, err = dal.MessageFromDocument(m.messageData, m.bundle); err != nil {
		return nil, jsonErr(err)
	}
	return message, nil
}

// GetLatestMessage returns the most recently inserted message of a process,
// by surrogate insertion order, or nil if the process has no messages.
//
// This must use the primary pool: callers use the result for sequencing
// decisions, which cannot tolerate replica lag.
func (s *Store) GetLatestMessage(ctx context.Context, processID string) (*dal.Message, error) {
	var conn, err = s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var row = conn.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE process_id = $1
		 ORDER BY row_id DESC LIMIT 1`, processID)

	var m dbMessage
	if m, err = scanMessage(row); err == sql.ErrNoRows {
		return nil, nil // No messages found.
	} else if err != nil {
		return nil, databaseErr(err)
	}

	var message *dal.Message
	if message, err = dal.MessageFromDocument(m.messageData, m.bundle); err != nil {
		return nil, jsonErr(err)
	}
	return message, nil
}

// GetMessages returns one page of a process's messages ordered by ascending
// timestamp, filtered to timestamp > |from| and timestamp <= |to| where
// provided. Bounds are string cursors; a bound which doesn't parse as an
// integer is an IntError. One row beyond |limit| is fetched to determine
// whether a next page exists, and discarded from the returned page.
//
// With the disk tier enabled only lightweight metadata columns are queried,
// and payload bytes are bulk-fetched from the blob store; any id absent
// there falls back to a per-row relational fetch.
func (s *Store) GetMessages(ctx context.Context, processID string, from, to *string, limit *int) (*dal.PaginatedMessages, error) {
	var limitVal = defaultPageLimit
	if limit != nil {
		limitVal = *limit
	}

	var where = `WHERE process_id = $1`
	var args = []interface{}{processID}

	if from != nil {
		var fromTS, err = strconv.ParseInt(*from, 10, 64)
		if err != nil {
			return nil, intErr(err)
		}
		args = append(args, fromTS)
		where += fmt.Sprintf(" AND timestamp > $%d", len(args))
	}
	if to != nil {
		var toTS, err = strconv.ParseInt(*to, 10, 64)
		if err != nil {
			return nil, intErr(err)
		}
		args = append(args, toTS)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	args = append(args, limitVal+1) // Over-fetch by one to probe for a next page.
	var clauses = where + fmt.Sprintf(" ORDER BY timestamp ASC LIMIT $%d", len(args))

	if s.useDisk {
		return s.getMessagesFromDisk(ctx, clauses, args, limitVal)
	}
	return s.getMessagesFromDB(ctx, clauses, args, limitVal)
}

// queryMessageMetas runs the lightweight metadata query within a scoped
// connection checkout, so that no connection is held during blob reads or
// per-row fallback fetches.
func (s *Store) queryMessageMetas(ctx context.Context, clauses string, args []interface{}) ([]dbMessageMeta, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows *sql.Rows
	rows, err = conn.QueryContext(ctx,
		`SELECT `+messageMetaCols+` FROM messages `+clauses, args...)
	if err != nil {
		return nil, databaseErr(err)
	}
	defer rows.Close()

	var metas []dbMessageMeta
	for rows.Next() {
		var m dbMessageMeta
		if m, err = scanMessageMeta(rows); err != nil {
			return nil, databaseErr(err)
		}
		metas = append(metas, m)
	}
	if err = rows.Err(); err != nil {
		return nil, databaseErr(err)
	}
	return metas, nil
}

func (s *Store) getMessagesFromDisk(ctx context.Context, clauses string, args []interface{}, limitVal int) (*dal.PaginatedMessages, error) {
	var metas, err = s.queryMessageMetas(ctx, clauses, args)
	if err != nil {
		return nil, err
	}

	var hasNextPage = len(metas) > limitVal
	if hasNextPage {
		metas = metas[:limitVal]
	}

	var ids = make([]bytestore.BinaryID, 0, len(metas))
	for _, m := range metas {
		ids = append(ids, bytestore.BinaryID{
			MessageID:    m.messageID,
			AssignmentID: m.assignmentID.String,
			ProcessID:    m.processID,
			Timestamp:    strconv.FormatInt(m.timestamp, 10),
		})
	}
	var binaries = s.blobs.ReadBinaries(ids)

	var messages = make([]*dal.Message, 0, len(metas))
	for i, m := range metas {
		if data, ok := binaries[ids[i]]; ok {
			var message *dal.Message
			if message, err = dal.MessageFromBytes(data); err != nil {
				return nil, jsonErr(err)
			}
			messages = append(messages, message)
		} else {
			// Tier miss. Fall back to the full relational row.
			metrics.ByteStoreMissTotal.Inc()

			var message *dal.Message
			if message, err = s.getMessageInternal(ctx, m.messageID, m.assignmentID); err != nil {
				return nil, err
			}
			messages = append(messages, message)
		}
	}
	return dal.PaginateMessages(messages, hasNextPage), nil
}

func (s *Store) getMessagesFromDB(ctx context.Context, clauses string, args []interface{}, limitVal int) (*dal.PaginatedMessages, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows *sql.Rows
	rows, err = conn.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages `+clauses, args...)
	if err != nil {
		return nil, databaseErr(err)
	}
	defer rows.Close()

	var dbMessages []dbMessage
	for rows.Next() {
		var m dbMessage
		if m, err = scanMessage(rows); err != nil {
			return nil, databaseErr(err)
		}
		dbMessages = append(dbMessages, m)
	}
	if err = rows.Err(); err != nil {
		return nil, databaseErr(err)
	}

	var hasNextPage = len(dbMessages) > limitVal
	if hasNextPage {
		dbMessages = dbMessages[:limitVal]
	}

	var messages = make([]*dal.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		var message *dal.Message
		if message, err = dal.MessageFromDocument(m.messageData, m.bundle); err != nil {
			return nil, jsonErr(err)
		}
		messages = append(messages, message)
	}
	return dal.PaginateMessages(messages, hasNextPage), nil
}

// MessageCount returns the total number of stored message rows.
func (s *Store) MessageCount(ctx context.Context) (int64, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int64
	if err = conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, databaseErr(err)
	}
	return count, nil
}

// MigrationMessage is the lightweight projection of a messages row moved
// between tiers by the backfill migrator.
type MigrationMessage struct {
	MessageID    string
	AssignmentID string
	ProcessID    string
	Timestamp    int64
	Bundle       []byte
}

// BinaryID of the MigrationMessage within the blob tier.
func (m MigrationMessage) BinaryID() bytestore.BinaryID {
	return bytestore.BinaryID{
		MessageID:    m.MessageID,
		AssignmentID: m.AssignmentID,
		ProcessID:    m.ProcessID,
		Timestamp:    strconv.FormatInt(m.Timestamp, 10),
	}
}

// AllMessages returns migration projections of rows [from, to) in ascending
// timestamp order.
func (s *Store) AllMessages(ctx context.Context, from, to int64) ([]MigrationMessage, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows *sql.Rows
	rows, err = conn.QueryContext(ctx,
		`SELECT message_id, assignment_id, process_id, timestamp, bundle
		 FROM messages ORDER BY timestamp ASC LIMIT $1 OFFSET $2`,
		to-from, from)
	if err != nil {
		return nil, databaseErr(err)
	}
	defer rows.Close()

	var out []MigrationMessage
	for rows.Next() {
		var m MigrationMessage
		var assignmentID sql.NullString
		if err = rows.Scan(&m.MessageID, &assignmentID, &m.ProcessID,
			&m.Timestamp, &m.Bundle); err != nil {
			return nil, databaseErr(err)
		}
		m.AssignmentID = assignmentID.String
		out = append(out, m)
	}
	if err = rows.Err(); err != nil {
		return nil, databaseErr(err)
	}
	return out, nil
}

// MessageByOffsetFromEnd returns the migration projection of the row |offset|
// positions from the newest end of the table, or nil past the oldest row.
func (s *Store) MessageByOffsetFromEnd(ctx context.Context, offset int64) (*MigrationMessage, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var m MigrationMessage
	var assignmentID sql.NullString
	err = conn.QueryRowContext(ctx,
		`SELECT message_id, assignment_id, process_id, timestamp, bundle
		 FROM messages ORDER BY timestamp DESC LIMIT 1 OFFSET $1`, offset).
		Scan(&m.MessageID, &assignmentID, &m.ProcessID, &m.Timestamp, &m.Bundle)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, databaseErr(err)
	}
	m.AssignmentID = assignmentID.String
	return &m, nil
}
