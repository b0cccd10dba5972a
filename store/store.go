// Package store is the durable persistence layer of the scheduler unit. It
// pairs the authoritative relational metadata store (two pooled endpoints:
// a primary for writes and a read replica for scalable reads) with an
// embedded blob-mode byte store holding large message payloads, and keeps
// the two consistent with an explicit two-step write-through protocol.
//
// There is no transaction spanning both tiers. A crash between the
// relational commit and the blob write leaves a relational-only row, which
// is durable and correct but unmirrored; SyncByteStore or MigrateToDisk
// repair the blob tier idempotently from relational truth.
package store

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // Driver of the production database endpoints.

	"go.sustore.dev/core/bytestore"
)

// Config is the runtime configuration of a Store.
type Config struct {
	DatabaseURL        string `long:"database-url" env:"DATABASE_URL" description:"Primary (writer) database connection URL"`
	DatabaseReadURL    string `long:"database-read-url" env:"DATABASE_READ_URL" description:"Read-replica connection URL. Defaults to the primary URL"`
	UseDisk            bool   `long:"use-disk" env:"USE_DISK" description:"Mirror message payload bytes into the local blob store"`
	DataDir            string `long:"data-dir" env:"DATA_DIR" default:"/var/lib/sustore" description:"Directory of the embedded blob store"`
	MigrationBatchSize int    `long:"migration-batch-size" env:"MIGRATION_BATCH_SIZE" default:"100" description:"Rows per batch moved by the range migrator"`
	MaxConns           int    `long:"max-conns" env:"MAX_CONNS" default:"10" description:"Maximum open connections of each pool"`
}

// Store orchestrates the relational metadata store and the blob tier, and is
// the sole entry point for all domain operations.
type Store struct {
	db      *sql.DB // Primary (writer) endpoint.
	readDB  *sql.DB // Read-replica endpoint.
	useDisk bool
	blobs   *bytestore.ByteStore
}

// Open a Store per |cfg|, dialing both database endpoints and, if the disk
// tier is enabled, opening the blob store.
func Open(cfg Config) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, envVarErr("DATABASE_URL")
	}
	var readURL = cfg.DatabaseReadURL
	if readURL == "" {
		readURL = cfg.DatabaseURL
	}

	var db, err = sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, newError(DatabaseError, "failed to initialize connection pool: %v", err)
	}
	readDB, err := sql.Open("postgres", readURL)
	if err != nil {
		return nil, newError(DatabaseError, "failed to initialize read connection pool: %v", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	readDB.SetMaxOpenConns(cfg.MaxConns)

	var blobs *bytestore.ByteStore
	if cfg.UseDisk {
		if blobs, err = bytestore.Open(cfg.DataDir); err != nil {
			return nil, newError(DatabaseError, "%v", err)
		}
	}
	return NewStore(db, readDB, blobs), nil
}

// NewStore composes a Store from already-opened database handles and an
// optional ByteStore. A nil |blobs| disables the disk tier.
func NewStore(db, readDB *sql.DB, blobs *bytestore.ByteStore) *Store {
	return &Store{
		db:      db,
		readDB:  readDB,
		useDisk: blobs != nil,
		blobs:   blobs,
	}
}

// ByteStore of the Store, or nil if the disk tier is disabled.
func (s *Store) ByteStore() *bytestore.ByteStore { return s.blobs }

// conn checks a connection out of the primary pool, validating its liveness.
// The caller must Close it on every exit path.
func (s *Store) conn(ctx context.Context) (*sql.Conn, error) {
	return checkout(ctx, s.db)
}

// readConn checks a connection out of the read-replica pool, validating its
// liveness. The caller must Close it on every exit path.
func (s *Store) readConn(ctx context.Context) (*sql.Conn, error) {
	return checkout(ctx, s.readDB)
}

func checkout(ctx context.Context, db *sql.DB) (*sql.Conn, error) {
	var conn, err = db.Conn(ctx)
	if err != nil {
		return nil, newError(DatabaseError, "failed to get connection from pool")
	}
	if err = conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, newError(DatabaseError, "failed to get connection from pool")
	}
	return conn, nil
}

// Close both pools and the blob tier.
func (s *Store) Close() error {
	var err = s.db.Close()
	if rErr := s.readDB.Close(); err == nil {
		err = rErr
	}
	if s.blobs != nil {
		s.blobs.Close()
	}
	return err
}
