package geopart

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Format tags the structural family of an input, selecting a partitioning strategy
type Format string

const (
	// FormatText is header-delimited, line-oriented text (CSV, TSV, ...)
	FormatText Format = "text"
	// FormatShapefile is an ESRI Shapefile with a typed attribute schema and CRS
	FormatShapefile Format = "shapefile"
	// FormatJSONL is row-oriented JSON lines, supported in distributed mode
	FormatJSONL Format = "jsonl"
	// FormatGeoJSON is a nested-array GeoJSON FeatureCollection, supported in distributed mode
	FormatGeoJSON Format = "geojson"
)

// A Partition is a contiguous, non-overlapping, self-describing portion of a dataset,
// ready to be handed to a Converter once it has been returned by a Partitioner.
type Partition struct {
	Index    int    // serial index: 1-based for local partitions, 0-based for shards
	Path     string // location of the partition (local) or of the converter output (shard)
	Records  int64  // number of data records, excluding any header
	Bytes    int64  // size of the partition file, when one was written
	Checksum uint64 // xxhash64 of the record payload, excluding header and schema
}

// SplitRequest describes a single local split
type SplitRequest struct {
	InputPath     string
	OutputDir     string
	NumPartitions int
	Encoding      string // empty means detect from the source
}

// Partitioner splits a source file into partitions written to a working directory.
// Implementations hold only configuration, so one Partitioner may serve concurrent Splits.
type Partitioner interface {
	Split(ctx context.Context, req SplitRequest) ([]Partition, error)
}

// PartitionPath returns the location of the k-th (1-based) local partition of inputPath,
// named <basename>_part<k><ext> inside outputDir
func PartitionPath(outputDir string, inputPath string, k int) string {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), ext)
	return filepath.Join(outputDir, fmt.Sprintf("%s_part%d%s", base, k, ext))
}

// ShardPath inserts a 0-based shard index immediately before the extension of outputPath
func ShardPath(outputPath string, shard int) string {
	ext := filepath.Ext(outputPath)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(outputPath, ext), shard, ext)
}
