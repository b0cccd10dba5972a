package store

import (
	"context"
	"database/sql"

	"go.sustore.dev/core/dal"
)

// SaveScheduler stores |scheduler| if its url is not already present.
func (s *Store) SaveScheduler(ctx context.Context, scheduler *dal.Scheduler) error {
	var conn, err = s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx,
		`INSERT INTO schedulers (url, process_count) VALUES ($1, $2)
		 ON CONFLICT (url) DO NOTHING`,
		scheduler.URL, scheduler.ProcessCount)
	if err != nil {
		return databaseErr(err)
	}
	return nil
}

// UpdateScheduler updates the url and process count of the scheduler at
// |scheduler.RowID|, which must be a known surrogate id.
func (s *Store) UpdateScheduler(ctx context.Context, scheduler *dal.Scheduler) error {
	var conn, err = s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var result sql.Result
	result, err = conn.ExecContext(ctx,
		`UPDATE schedulers SET process_count = $1, url = $2 WHERE row_id = $3`,
		scheduler.ProcessCount, scheduler.URL, scheduler.RowID)
	if err != nil {
		return databaseErr(err)
	}

	if n, err := result.RowsAffected(); err != nil {
		return databaseErr(err)
	} else if n == 0 {
		return newError(NotFound, "Scheduler not found")
	}
	return nil
}

// GetScheduler returns the Scheduler at surrogate id |rowID|, or NotFound.
func (s *Store) GetScheduler(ctx context.Context, rowID int32) (*dal.Scheduler, error) {
	return s.querySchedulerRow(ctx, `SELECT row_id, url, process_count
		FROM schedulers WHERE row_id = $1`, rowID)
}

// GetSchedulerByURL returns the Scheduler having |url|, or NotFound.
func (s *Store) GetSchedulerByURL(ctx context.Context, url string) (*dal.Scheduler, error) {
	return s.querySchedulerRow(ctx, `SELECT row_id, url, process_count
		FROM schedulers WHERE url = $1`, url)
}

func (s *Store) querySchedulerRow(ctx context.Context, query string, arg interface{}) (*dal.Scheduler, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var scheduler dal.Scheduler
	err = conn.QueryRowContext(ctx, query, arg).
		Scan(&scheduler.RowID, &scheduler.URL, &scheduler.ProcessCount)

	if err == sql.ErrNoRows {
		return nil, newError(NotFound, "Scheduler not found")
	} else if err != nil {
		return nil, databaseErr(err)
	}
	return &scheduler, nil
}

// GetAllSchedulers returns every Scheduler, ordered by surrogate id.
func (s *Store) GetAllSchedulers(ctx context.Context) ([]dal.Scheduler, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rows *sql.Rows
	rows, err = conn.QueryContext(ctx,
		`SELECT row_id, url, process_count FROM schedulers ORDER BY row_id ASC`)
	if err != nil {
		return nil, databaseErr(err)
	}
	defer rows.Close()

	var out []dal.Scheduler
	for rows.Next() {
		var scheduler dal.Scheduler
		if err = rows.Scan(&scheduler.RowID, &scheduler.URL,
			&scheduler.ProcessCount); err != nil {
			return nil, databaseErr(err)
		}
		out = append(out, scheduler)
	}
	if err = rows.Err(); err != nil {
		return nil, databaseErr(err)
	}
	return out, nil
}

// SaveProcessScheduler binds a process to its owning scheduler if no binding
// is already present. An existing binding is never overwritten.
func (s *Store) SaveProcessScheduler(ctx context.Context, ps *dal.ProcessScheduler) error {
	var conn, err = s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx,
		`INSERT INTO process_schedulers (process_id, scheduler_row_id) VALUES ($1, $2)
		 ON CONFLICT (process_id) DO NOTHING`,
		ps.ProcessID, ps.SchedulerRowID)
	if err != nil {
		return databaseErr(err)
	}
	return nil
}

// GetProcessScheduler returns the scheduler binding of |processID|, or
// NotFound.
func (s *Store) GetProcessScheduler(ctx context.Context, processID string) (*dal.ProcessScheduler, error) {
	var conn, err = s.readConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var ps dal.ProcessScheduler
	err = conn.QueryRowContext(ctx,
		`SELECT row_id, process_id, scheduler_row_id FROM process_schedulers
		 WHERE process_id = $1`, processID).
		Scan(&ps.RowID, &ps.ProcessID, &ps.SchedulerRowID)

	if err == sql.ErrNoRows {
		return nil, newError(NotFound, "Process scheduler not found")
	} else if err != nil {
		return nil, databaseErr(err)
	}
	return &ps, nil
}
