// Package text provides a Partitioner for header-delimited, line-oriented text.
// Partitions are balanced by byte size and each begins with the source header.
package text

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/charset"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/logging"
	"github.com/rs/zerolog"
	"golang.org/x/text/transform"
)

// NoQuote disables quote tracking when used as Conf.Quote
const NoQuote rune = -1

// Conf configures a text Partitioner
type Conf struct {
	Delimiter rune            // The delimiter separating columns in the header. Defaults to ,
	Quote     rune            // Quote character; line breaks inside quotes do not end a record. Defaults to ". NoQuote disables.
	Logger    *zerolog.Logger // Defaults to a disabled logger
}

// Partitioner splits delimited text into partitions of roughly equal byte size
type Partitioner struct {
	conf *Conf
	log  zerolog.Logger
}

// CreatePartitioner returns a new text Partitioner
func CreatePartitioner(conf *Conf) *Partitioner {
	if conf == nil {
		conf = &Conf{}
	}
	if conf.Delimiter == 0 {
		conf.Delimiter = ','
	}
	if conf.Quote == 0 {
		conf.Quote = '"'
	}
	return &Partitioner{conf: conf, log: logging.Component(logging.OrNop(conf.Logger), "text-partitioner")}
}

// partWriter is the partition currently being filled
type partWriter struct {
	part   geopart.Partition
	f      *os.File
	w      *bufio.Writer
	digest *xxhash.Digest
	size   int64 // data bytes written, excluding BOM and header
}

// Split divides req.InputPath into partitions of about size(input)/req.NumPartitions bytes.
// Splitting is greedy: a partition closes when the next record would push it past the
// threshold, so fewer partitions than requested may result, and a single oversized
// record forms a partition on its own.
func (p *Partitioner) Split(ctx context.Context, req geopart.SplitRequest) ([]geopart.Partition, error) {
	if err := geopart.ValidatePartitionCount(req.NumPartitions); err != nil {
		return nil, err
	}
	f, err := os.Open(req.InputPath)
	if err != nil {
		return nil, errors.InputAccessError{Path: req.InputPath, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.InputAccessError{Path: req.InputPath, Err: err}
	}
	if info.IsDir() {
		return nil, errors.InputAccessError{Path: req.InputPath, Err: fmt.Errorf("is a directory")}
	}

	br := bufio.NewReaderSize(f, 64*1024)
	prefix, err := br.Peek(4)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errors.InputAccessError{Path: req.InputPath, Err: err}
	}
	cs, fallback, err := charset.Resolve(req.Encoding, prefix)
	if err != nil {
		return nil, err
	}
	if fallback {
		p.log.Debug().Str("input", req.InputPath).Msg("no byte-order mark found, assuming UTF-8")
	}
	totalBytes := info.Size()
	var bom []byte // written to every partition iff the source starts with it
	if cs.HasBOM() && bytes.HasPrefix(prefix, cs.BOM) {
		bom = cs.BOM
		if _, err := br.Discard(len(cs.BOM)); err != nil {
			return nil, errors.InputAccessError{Path: req.InputPath, Err: err}
		}
		totalBytes -= int64(len(cs.BOM))
	}
	var decoded io.Reader = br
	if !cs.IsUTF8() {
		decoded = transform.NewReader(br, cs.Encoding().NewDecoder())
	}
	records := newRecordReader(bufio.NewReader(decoded), p.conf.Quote)

	plan, err := geopart.ByteSizePlan(totalBytes, req.NumPartitions)
	if err != nil {
		return nil, err
	}

	// the first record is the header, replicated into every partition
	header, unterminated, err := records.next()
	if err != nil && err != io.EOF {
		return nil, errors.InputAccessError{Path: req.InputPath, Err: err}
	}
	if len(header) == 0 {
		return nil, errors.FormatError{Path: req.InputPath, Reason: "missing header line"}
	}
	if unterminated {
		return nil, errors.FormatError{Path: req.InputPath, Reason: "header contains an unterminated quoted field"}
	}
	exhausted := err == io.EOF
	encodedHeader, err := cs.Encode(header)
	if err != nil {
		return nil, errors.FormatError{Path: req.InputPath, Reason: "header cannot be encoded as " + cs.Name, Err: err}
	}
	p.log.Debug().
		Str("input", req.InputPath).
		Str("encoding", cs.Name).
		Strs("columns", splitHeader(header, p.conf.Delimiter, p.conf.Quote)).
		Int64("threshold", plan.Threshold).
		Msg("planned text split")

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create output directory %s: %w", req.OutputDir, err)
	}

	var partitions []geopart.Partition
	openPartition := func() (*partWriter, error) {
		k := len(partitions) + 1
		path := geopart.PartitionPath(req.OutputDir, req.InputPath, k)
		pf, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("unable to create partition %s: %w", path, err)
		}
		pw := &partWriter{
			part:   geopart.Partition{Index: k, Path: path},
			f:      pf,
			w:      bufio.NewWriter(pf),
			digest: xxhash.New(),
		}
		if _, err := pw.w.Write(bom); err != nil {
			pf.Close()
			return nil, fmt.Errorf("unable to write byte-order mark to partition %s: %w", path, err)
		}
		if _, err := pw.w.Write(encodedHeader); err != nil {
			pf.Close()
			return nil, fmt.Errorf("unable to write header to partition %s: %w", path, err)
		}
		return pw, nil
	}
	closePartition := func(pw *partWriter) error {
		if err := pw.w.Flush(); err != nil {
			pw.f.Close()
			return fmt.Errorf("unable to write partition %s: %w", pw.part.Path, err)
		}
		if err := pw.f.Close(); err != nil {
			return fmt.Errorf("unable to close partition %s: %w", pw.part.Path, err)
		}
		if st, err := os.Stat(pw.part.Path); err == nil {
			pw.part.Bytes = st.Size()
		}
		pw.part.Checksum = pw.digest.Sum64()
		partitions = append(partitions, pw.part)
		p.log.Debug().Str("partition", pw.part.Path).Int64("records", pw.part.Records).Int64("bytes", pw.size).Msg("closed partition")
		return nil
	}

	current, err := openPartition()
	if err != nil {
		return nil, err
	}
	for !exhausted {
		if err := ctx.Err(); err != nil {
			current.f.Close()
			return nil, err
		}
		record, unterminated, err := records.next()
		if err == io.EOF {
			exhausted = true
		} else if err != nil {
			current.f.Close()
			return nil, errors.InputAccessError{Path: req.InputPath, Err: err}
		}
		if len(record) == 0 {
			continue
		}
		if unterminated {
			p.log.Warn().Str("input", req.InputPath).Msg("input ends inside a quoted field; keeping the trailing record as-is")
		}
		encoded, err := cs.Encode(record)
		if err != nil {
			current.f.Close()
			return nil, errors.FormatError{Path: req.InputPath, Reason: "record cannot be encoded as " + cs.Name, Err: err}
		}
		recordSize := int64(len(encoded))
		if current.part.Records > 0 && current.size+recordSize > plan.Threshold {
			if err := closePartition(current); err != nil {
				return nil, err
			}
			if current, err = openPartition(); err != nil {
				return nil, err
			}
		}
		if _, err := current.w.Write(encoded); err != nil {
			current.f.Close()
			return nil, fmt.Errorf("unable to write partition %s: %w", current.part.Path, err)
		}
		current.digest.Write(encoded)
		current.size += recordSize
		current.part.Records++
	}
	if err := closePartition(current); err != nil {
		return nil, err
	}
	p.log.Info().
		Str("input", req.InputPath).
		Int("requested", req.NumPartitions).
		Int("produced", len(partitions)).
		Msg("split text input")
	return partitions, nil
}
