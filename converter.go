package geopart

import "context"

// ConverterParams is everything a Converter is constructed with
type ConverterParams struct {
	Settings   interface{}    // opaque converter configuration
	Rules      interface{}    // opaque classification rules
	OutputPath string         // where this shard's output goes
	SourceSRID string         // spatial reference of the input geometry
	TargetSRID string         // spatial reference the output should use
	Records    RecordIterator // the shard's records, in shard order
	ShardIndex int
}

// Converter turns one partition of records into output, as a side effect
type Converter interface {
	Apply(ctx context.Context) error
}

// ConverterFactory constructs a Converter for one shard
type ConverterFactory func(params ConverterParams) (Converter, error)
