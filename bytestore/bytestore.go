// Package bytestore persists large message payloads in an embedded RocksDB
// instance running in integrated blob mode. Large binaries are expensive to
// store and compact inside a row-oriented relational table; isolating them in
// a log-structured blob store reduces write amplification and relational
// storage footprint, while queryable metadata remains solely in the
// relational store. The bytestore holds a derived, fully-reconstructable copy
// and is never authoritative.
//
// Keys embed the process id, then the timestamp, then the message id, so
// entries of one process cluster and sort chronologically. Only point access
// is ever issued here; the ordering benefit accrues to RocksDB's storage
// locality and compaction.
package bytestore

import (
	"sync"

	"github.com/linxGnu/grocksdb"
	"github.com/pkg/errors"
)

const (
	// maxBlobFileSize bounds the compaction unit size of blob files.
	maxBlobFileSize = 5 << 30
	// minBlobSize is set low so nearly all payloads are separated into
	// blob files rather than inlined into SSTs.
	minBlobSize = 1 << 10
)

// BinaryID is the logical identity of one stored payload. AssignmentID is
// empty when the row carries no assignment and is itself canonical.
type BinaryID struct {
	MessageID    string
	AssignmentID string
	ProcessID    string
	Timestamp    string
}

// key renders the composite textual RocksDB key of the BinaryID.
func (id BinaryID) key() []byte {
	var b = make([]byte, 0, 10+len(id.ProcessID)+len(id.Timestamp)+len(id.MessageID)+len(id.AssignmentID)+12)
	b = append(b, "message___"...)
	b = append(b, id.ProcessID...)
	b = append(b, "___"...)
	b = append(b, id.Timestamp...)
	b = append(b, "___"...)
	b = append(b, id.MessageID...)
	if id.AssignmentID != "" {
		b = append(b, "___"...)
		b = append(b, id.AssignmentID...)
	}
	return b
}

// ByteStore is an embedded blob-mode RocksDB holding message payload bytes.
// It is safe for unbounded concurrent readers and writers.
type ByteStore struct {
	db   *grocksdb.DB
	opts *grocksdb.Options
	ro   *grocksdb.ReadOptions
	wo   *grocksdb.WriteOptions
}

// Open the ByteStore rooted at |dir|, creating it if missing.
func Open(dir string) (*ByteStore, error) {
	var opts = grocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetEnableBlobFiles(true)
	opts.SetBlobFileSize(maxBlobFileSize)
	opts.SetMinBlobSize(minBlobSize)

	var db, err = grocksdb.OpenDb(opts, dir)
	if err != nil {
		opts.Destroy()
		return nil, errors.WithMessagef(err, "opening blob store %q", dir)
	}
	return &ByteStore{
		db:   db,
		opts: opts,
		ro:   grocksdb.NewDefaultReadOptions(),
		wo:   grocksdb.NewDefaultWriteOptions(),
	}, nil
}

// SaveBinary writes |data| under |id|, unconditionally overwriting any
// previous value.
func (bs *ByteStore) SaveBinary(id BinaryID, data []byte) error {
	if err := bs.db.Put(bs.wo, id.key(), data); err != nil {
		return errors.WithMessage(err, "writing to blob store")
	}
	return nil
}

// Exists probes for the presence of |id|.
func (bs *ByteStore) Exists(id BinaryID) bool {
	var v, err = bs.db.Get(bs.ro, id.key())
	if err != nil {
		return false
	}
	defer v.Free()
	return v.Exists()
}

// ReadBinaries point-gets each of |ids| concurrently, returning a mapping
// from BinaryID to payload bytes. Ids not present in the store are simply
// absent from the result; callers must treat absence as a fallback trigger,
// never as an error.
func (bs *ByteStore) ReadBinaries(ids []BinaryID) map[BinaryID][]byte {
	var mu sync.Mutex
	var out = make(map[BinaryID][]byte, len(ids))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id BinaryID) {
			defer wg.Done()

			var v, err = bs.db.Get(bs.ro, id.key())
			if err != nil {
				return
			}
			defer v.Free()

			if !v.Exists() {
				return
			}
			var data = append([]byte(nil), v.Data()...)

			mu.Lock()
			out[id] = data
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return out
}

// Close the ByteStore. Blocks until background compaction has completed.
func (bs *ByteStore) Close() {
	bs.db.Close()
	bs.opts.Destroy()
	bs.ro.Destroy()
	bs.wo.Destroy()
}
