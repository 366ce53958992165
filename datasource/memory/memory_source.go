// Package memory provides a Source over Records held in memory, useful in tests and
// for callers which have already parsed their data.
package memory

import (
	"context"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/datasource"
)

// Source is a slice of Records which will be distributed by an Engine
type Source struct {
	name    string
	records []geopart.Record
}

// CreateSource is a factory for in-memory Sources
func CreateSource(name string, records []geopart.Record) *Source {
	return &Source{name: name, records: records}
}

// Name returns the name this Source was created with
func (s *Source) Name() string {
	return "memory:" + s.name
}

// Scan emits every Record, in order, as a JSON object
func (s *Source) Scan(ctx context.Context, emit func(raw []byte) error) error {
	for _, r := range s.records {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := datasource.EncodeFields(r)
		if err != nil {
			return err
		}
		if err := emit(raw); err != nil {
			return err
		}
	}
	return nil
}

// Normalize decodes a Record emitted by Scan
func (s *Source) Normalize(raw []byte) (geopart.Record, error) {
	return datasource.ObjectRecord(raw, "", geopart.DefaultGeometryField)
}
