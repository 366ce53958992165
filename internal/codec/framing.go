package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteRecord writes a uvarint length prefix followed by the record
func WriteRecord(w io.Writer, record []byte) error {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(record)))
	if _, err := w.Write(prefix[:n]); err != nil {
		return err
	}
	_, err := w.Write(record)
	return err
}

// ReadRecord reads one length-prefixed record. It returns io.EOF only when the
// stream ends cleanly between records.
func ReadRecord(r *bufio.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	record := make([]byte, size)
	if _, err := io.ReadFull(r, record); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("truncated record of %d bytes: %w", size, err)
	}
	return record, nil
}
