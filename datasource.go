package geopart

import "context"

// Record is the uniform representation of a single source record handed to a Converter:
// a mapping from field name to string value. Geometry is carried as WKT under a
// synthesised field.
type Record map[string]string

// DefaultGeometryField is the synthesised field name holding a record's WKT geometry
const DefaultGeometryField = "wkt"

// Source is a dataset which can be loaded into an Engine. Scan produces native records
// in source order as opaque byte payloads, and Normalize converts one payload into a Record.
// Normalize runs on workers, so it must not depend on Scan having run in the same process.
type Source interface {
	Name() string                                                // for logging
	Scan(ctx context.Context, emit func(raw []byte) error) error // emits every native record, in order
	Normalize(raw []byte) (Record, error)                        // converts a native record into a Record
}
