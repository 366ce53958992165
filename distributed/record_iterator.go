package distributed

import (
	"io"

	"github.com/go-sif/geopart"
	"github.com/rs/zerolog"
)

// recordIterator normalises a shard's native records on demand. Records which fail
// to normalise are logged and skipped.
type recordIterator struct {
	shard     geopart.ShardHandle
	raw       geopart.RawIterator
	normalize func(raw []byte) (geopart.Record, error)
	log       zerolog.Logger
	next      geopart.Record
	readErr   error // sticky: a shard which cannot be read is not retried
	position  int   // native records consumed in the current pass
	delivered int64
	skipped   int64
}

func newRecordIterator(shard geopart.ShardHandle, normalize func(raw []byte) (geopart.Record, error), log zerolog.Logger) (*recordIterator, error) {
	raw, err := shard.Open()
	if err != nil {
		return nil, err
	}
	return &recordIterator{shard: shard, raw: raw, normalize: normalize, log: log}, nil
}

// HasNextRecord returns true iff NextRecord will produce a Record or an error
func (it *recordIterator) HasNextRecord() bool {
	if it.next != nil || it.readErr != nil {
		return true
	}
	for it.raw.HasNext() {
		raw, err := it.raw.Next()
		if err != nil {
			it.readErr = err
			return true
		}
		it.position++
		record, err := it.normalize(raw)
		if err != nil {
			it.skipped++
			it.log.Warn().Err(err).Int("shard", it.shard.Index()).Int("record", it.position-1).Msg("skipping record which cannot be normalised")
			continue
		}
		it.next = record
		return true
	}
	return false
}

// NextRecord returns the next Record, or io.EOF when the shard is exhausted
func (it *recordIterator) NextRecord() (geopart.Record, error) {
	if !it.HasNextRecord() {
		return nil, io.EOF
	}
	if it.readErr != nil {
		return nil, it.readErr
	}
	record := it.next
	it.next = nil
	it.delivered++
	return record, nil
}

func (it *recordIterator) close() error {
	return it.raw.Close()
}

// restartableRecordIterator is handed to Converters when the shard can be re-read
type restartableRecordIterator struct {
	*recordIterator
}

// Restart rewinds to the first Record of the shard
func (it *restartableRecordIterator) Restart() error {
	it.raw.Close()
	it.raw = exhausted{}
	it.next = nil
	raw, err := it.shard.Open()
	if err != nil {
		it.readErr = err
		return err
	}
	it.raw = raw
	it.next = nil
	it.readErr = nil
	it.position = 0
	it.delivered = 0
	it.skipped = 0
	return nil
}

func (it *recordIterator) forConverter() geopart.RecordIterator {
	if it.shard.Restartable() {
		return &restartableRecordIterator{it}
	}
	return it
}

// exhausted stands in for a raw iterator which could not be reopened
type exhausted struct{}

func (exhausted) HasNext() bool { return false }
func (exhausted) Next() ([]byte, error) { return nil, io.EOF }
func (exhausted) Close() error { return nil }
