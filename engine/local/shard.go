package local

import (
	"bufio"
	"io"
	"os"

	"github.com/docker/docker/pkg/locker"
	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/internal/codec"
)

// memoryShard holds its records in memory, and can be replayed any number of times
type memoryShard struct {
	index   int
	records [][]byte
}

func (s *memoryShard) Index() int { return s.index }
func (s *memoryShard) Len() int { return len(s.records) }
func (s *memoryShard) Restartable() bool { return true }

func (s *memoryShard) Open() (geopart.RawIterator, error) {
	return &memoryIterator{records: s.records}, nil
}

type memoryIterator struct {
	records [][]byte
	next    int
}

func (it *memoryIterator) HasNext() bool {
	return it.next < len(it.records)
}

func (it *memoryIterator) Next() ([]byte, error) {
	if it.next >= len(it.records) {
		return nil, io.EOF
	}
	r := it.records[it.next]
	it.next++
	return r, nil
}

func (it *memoryIterator) Close() error {
	it.next = len(it.records)
	return nil
}

// spilledShard lives in a compressed file, and is re-read from disk each time it is opened
type spilledShard struct {
	index int
	len   int
	path  string
	codec codec.Codec
	locks *locker.Locker
}

func (s *spilledShard) Index() int { return s.index }
func (s *spilledShard) Len() int { return s.len }
func (s *spilledShard) Restartable() bool { return true }

func (s *spilledShard) Open() (geopart.RawIterator, error) {
	s.locks.Lock(s.path)
	defer s.locks.Unlock(s.path)
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	rc, err := s.codec.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &spillIterator{f: f, rc: rc, r: bufio.NewReader(rc), remaining: s.len}, nil
}

type spillIterator struct {
	f         *os.File
	rc        io.ReadCloser
	r         *bufio.Reader
	remaining int
}

func (it *spillIterator) HasNext() bool {
	return it.remaining > 0
}

func (it *spillIterator) Next() ([]byte, error) {
	if it.remaining <= 0 {
		return nil, io.EOF
	}
	record, err := codec.ReadRecord(it.r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	it.remaining--
	return record, nil
}

func (it *spillIterator) Close() error {
	it.remaining = 0
	it.rc.Close()
	return it.f.Close()
}

// shardSizes balances n records over k shards: sizes differ by at most one,
// and earlier shards take the extra records
func shardSizes(n int, k int) []int {
	sizes := make([]int, k)
	base, extra := n/k, n%k
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}
