package store

import (
	"context"
	"database/sql"

	"go.sustore.dev/core/dal"
)

// SaveProcess stores |process| if its process id is not already present.
// Saving an already-stored process id is a no-op, never an error.
func (s *Store) SaveProcess(ctx context.Context, process *dal.Process, bundle []byte) error {
	var conn, err = s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx,
		`INSERT INTO processes (process_id, process_data, bundle) VALUES ($1, $2, $3)
		 ON CONFLICT (process_id) DO NOTHING`,
		process.ProcessID(), []byte(process.Document()), bundle)
	if err != nil {
		return databaseErr(err)
	}
	return nil
}

// GetProcess returns the Process stored under |processID|, or NotFound.
func (s *Store) GetProcess(ctx context.Context, processID string) (*dal.Process, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var doc, bundle []byte
	err = conn.QueryRowContext(ctx,
		`SELECT process_data, bundle FROM processes WHERE process_id = $1`,
		processID).Scan(&doc, &bundle)

	if err == sql.ErrNoRows {
		return nil, newError(NotFound, "Process not found")
	} else if err != nil {
		return nil, databaseErr(err)
	}

	var process *dal.Process
	if process, err = dal.ProcessFromDocument(doc, bundle); err != nil {
		return nil, jsonErr(err)
	}
	return process, nil
}
