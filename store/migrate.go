package store

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.sustore.dev/core/metrics"
)

// progressInterval is the cadence of the range migrator's progress reporter.
const progressInterval = 10 * time.Second

// ParseRange parses an operator offset-range argument of the form "<from>"
// or "<from>-<to>". A nil |to| means end-of-table.
func ParseRange(arg string) (from int64, to *int64, err error) {
	var parts = strings.SplitN(arg, "-", 2)

	if from, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, nil, intErr(err)
	}
	if len(parts) == 2 {
		var t int64
		if t, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return 0, nil, intErr(err)
		}
		to = &t
	}
	return from, to, nil
}

// SyncByteStore catches the blob tier up with the tail of the messages
// table. It scans rows newest to oldest, writing each into the blob store,
// and stops at the first row already present: once a row is found synced,
// every older row was synced by a previous run, so scanning further is
// unnecessary. A row fetch error is logged and skipped so one bad row
// cannot block catching up the remaining history.
//
// Returns the number of rows written.
func (s *Store) SyncByteStore(ctx context.Context) (int64, error) {
	if s.blobs == nil {
		return 0, newError(DatabaseError, "bytestore is not enabled")
	}
	log.Info("syncing the tail of the messages table")
	var start = time.Now()

	var total, err = s.MessageCount(ctx)
	if err != nil {
		return 0, err
	}
	var synced int64

	for offset := int64(0); offset < total; offset++ {
		var message, err = s.MessageByOffsetFromEnd(ctx, offset)
		if err != nil {
			log.WithField("err", err).Error("error fetching message")
			continue
		} else if message == nil {
			log.Info("no more messages to process")
			break
		}

		if s.blobs.Exists(message.BinaryID()) {
			break // All older rows were synced by a previous run.
		}
		if err = s.blobs.SaveBinary(message.BinaryID(), message.Bundle); err != nil {
			return synced, newError(DatabaseError, "%v", err)
		}
		metrics.ByteStoreWriteBytesTotal.Add(float64(len(message.Bundle)))
		synced++
	}

	log.WithFields(log.Fields{
		"elapsed": time.Since(start),
		"synced":  synced,
	}).Info("finished syncing message bytes")

	return synced, nil
}

// MigrateToDisk copies the relational payload bytes of message rows
// [from, to) into the blob tier, where |rangeArg| is "<from>" or
// "<from>-<to>" and |to| is clamped to the true row count. Rows move in
// batches of |batchSize|: one bulk relational fetch per batch, then one
// concurrent blob write per row, waiting for all before advancing. Any
// row-level write failure aborts the run; the migration is operator-invoked
// and safely re-runnable. A batch fetch error is logged and the batch
// skipped.
//
// Returns the number of rows written.
func (s *Store) MigrateToDisk(ctx context.Context, rangeArg string, batchSize int) (int64, error) {
	if s.blobs == nil {
		return 0, newError(DatabaseError, "bytestore is not enabled")
	}
	var start = time.Now()

	var from, to, err = ParseRange(rangeArg)
	if err != nil {
		return 0, err
	}

	var count int64
	if count, err = s.MessageCount(ctx); err != nil {
		return 0, err
	}
	var total = count - from
	if to != nil && *to < count {
		total = *to - from
	}
	if total <= 0 {
		log.Info("no messages to process")
		return 0, nil
	}
	log.WithField("total", total).Info("migrating messages to the blob store")

	var processed atomic.Int64

	// Progress reporter, coordinated with the migration only through
	// |processed|. It terminates once the counter reaches the expected total.
	go func() {
		for range time.Tick(progressInterval) {
			var n = processed.Load()
			log.WithField("processed", n).Info("messages processed update")
			if n >= total {
				return
			}
		}
	}()

	for batchStart := from; batchStart < from+total; batchStart += int64(batchSize) {
		var batchEnd = batchStart + int64(batchSize)
		if batchEnd > from+total {
			batchEnd = from + total
		}

		var messages, err = s.AllMessages(ctx, batchStart, batchEnd)
		if err != nil {
			log.WithField("err", err).Error("error fetching messages")
			continue
		}

		var group errgroup.Group
		for _, message := range messages {
			group.Go(func() error {
				if err := s.blobs.SaveBinary(message.BinaryID(), message.Bundle); err != nil {
					return err
				}
				metrics.ByteStoreWriteBytesTotal.Add(float64(len(message.Bundle)))
				metrics.MigratedMessagesTotal.Inc()
				processed.Add(1)
				return nil
			})
		}
		if err = group.Wait(); err != nil {
			return processed.Load(), newError(DatabaseError, "%v", err)
		}
	}

	log.WithFields(log.Fields{
		"elapsed":   time.Since(start),
		"processed": processed.Load(),
	}).Info("finished data migration")

	return processed.Load(), nil
}
