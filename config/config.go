// Package config loads partitioning jobs from YAML files.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/charset"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/codec"
	"github.com/go-sif/geopart/partitioner"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Mode selects how a job partitions its input
type Mode string

const (
	// ModeLocal splits the input into self-describing files on this host
	ModeLocal Mode = "local"
	// ModeDistributed shards the input across an Engine and converts each shard
	ModeDistributed Mode = "distributed"
)

const (
	// LogFormatJSON writes one JSON object per log event
	LogFormatJSON = "json"
	// LogFormatConsole writes human-readable log lines
	LogFormatConsole = "console"
)

// Job describes one partitioning run
type Job struct {
	// Format of the input: text (or dsv), shapefile, jsonl or geojson. Inferred from the input's extension when empty.
	Format string `yaml:"format"`
	Mode   Mode   `yaml:"mode"`
	// Input is a path in local mode and a glob in distributed mode
	Input string `yaml:"input"`

	// OutputDir receives the partitions of a local job
	OutputDir string `yaml:"output_dir"`
	// OutputPath is the Converter output of a distributed job. Each shard inserts its index before the extension.
	OutputPath string `yaml:"output_path"`
	Partitions int    `yaml:"partitions"`

	Encoding       string    `yaml:"encoding"`
	Delimiter      string    `yaml:"delimiter"`
	Quote          string    `yaml:"quote"` // empty disables quote tracking
	EncodingPolicy string    `yaml:"encoding_policy"`
	Bounds         []float64 `yaml:"bounds"` // minx, miny, maxx, maxy

	Parallelism int    `yaml:"parallelism"`
	Workers     int    `yaml:"workers"`
	SpillDir    string `yaml:"spill_dir"`
	SpillCodec  string `yaml:"spill_codec"`

	SourceSRID    string                 `yaml:"source_srid"`
	TargetSRID    string                 `yaml:"target_srid"`
	GeometryField string                 `yaml:"geometry_field"`
	XColumn       string                 `yaml:"x_column"`
	YColumn       string                 `yaml:"y_column"`
	Settings      map[string]interface{} `yaml:"settings"`
	Rules         interface{}            `yaml:"rules"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console
}

// Default returns a Job holding every default value
func Default() *Job {
	return &Job{
		Mode:           ModeLocal,
		Delimiter:      ",",
		Quote:          "\"",
		EncodingPolicy: charset.Truncate.String(),
		SpillCodec:     codec.LZ4,
		GeometryField:  geopart.DefaultGeometryField,
		LogLevel:       "info",
		LogFormat:      LogFormatJSON,
	}
}

// Load reads and validates a YAML job file
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML job. Unknown keys are rejected.
func Parse(data []byte) (*Job, error) {
	job := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(job); err != nil && err != io.EOF {
		return nil, errors.ConfigError{Field: "job", Reason: err.Error()}
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks the Job for consistency, inferring the format when it is not given
func (j *Job) Validate() error {
	switch j.Mode {
	case ModeLocal, ModeDistributed:
	default:
		return errors.ConfigError{Field: "mode", Reason: fmt.Sprintf("must be local or distributed, was %q", j.Mode)}
	}
	if j.Input == "" {
		return errors.ConfigError{Field: "input", Reason: "is required"}
	}
	format, err := j.InputFormat()
	if err != nil {
		return err
	}
	j.Format = string(format)

	if j.Mode == ModeLocal {
		if j.OutputDir == "" {
			return errors.ConfigError{Field: "output_dir", Reason: "is required in local mode"}
		}
		if err := geopart.ValidatePartitionCount(j.Partitions); err != nil {
			return errors.ConfigError{Field: "partitions", Reason: fmt.Sprintf("must be positive, was %d", j.Partitions)}
		}
		if _, err := partitioner.ForFormat(format, nil); err != nil {
			return err
		}
	} else {
		if j.OutputPath == "" {
			return errors.ConfigError{Field: "output_path", Reason: "is required in distributed mode"}
		}
		if j.Parallelism < 0 {
			return errors.ConfigError{Field: "parallelism", Reason: fmt.Sprintf("must not be negative, was %d", j.Parallelism)}
		}
		if j.Workers < 0 {
			return errors.ConfigError{Field: "workers", Reason: fmt.Sprintf("must not be negative, was %d", j.Workers)}
		}
		if _, err := codec.ForName(j.SpillCodec); err != nil {
			return err
		}
		// distributed text is read with encoding/csv, which only knows "
		if format == geopart.FormatText && j.Quote != "\"" {
			return errors.ConfigError{Field: "quote", Reason: fmt.Sprintf("distributed text inputs must use the \" quote character, was %q", j.Quote)}
		}
	}

	if _, err := j.DelimiterRune(); err != nil {
		return err
	}
	if _, err := j.QuoteRune(); err != nil {
		return err
	}
	if _, err := charset.ParsePolicy(j.EncodingPolicy); err != nil {
		return err
	}
	if j.Encoding != "" {
		if _, err := charset.Lookup(j.Encoding); err != nil {
			return err
		}
	}
	if _, err := j.Bound(); err != nil {
		return err
	}
	if (j.XColumn == "") != (j.YColumn == "") {
		return errors.ConfigError{Field: "x_column", Reason: "x_column and y_column must be set together"}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(j.LogLevel)); err != nil {
		return errors.ConfigError{Field: "log_level", Reason: err.Error()}
	}
	if j.LogFormat != LogFormatJSON && j.LogFormat != LogFormatConsole {
		return errors.ConfigError{Field: "log_format", Reason: fmt.Sprintf("must be json or console, was %q", j.LogFormat)}
	}
	return nil
}

// InputFormat returns the Format of the input. dsv is an alias of text.
func (j *Job) InputFormat() (geopart.Format, error) {
	switch strings.ToLower(strings.TrimSpace(j.Format)) {
	case "":
		return partitioner.DetectFormat(j.Input)
	case "dsv", string(geopart.FormatText):
		return geopart.FormatText, nil
	case string(geopart.FormatShapefile), "shp":
		return geopart.FormatShapefile, nil
	case string(geopart.FormatJSONL), "ndjson":
		return geopart.FormatJSONL, nil
	case string(geopart.FormatGeoJSON):
		return geopart.FormatGeoJSON, nil
	}
	return "", errors.ConfigError{Field: "format", Reason: fmt.Sprintf("unknown format %q", j.Format)}
}

// DelimiterRune returns the column delimiter, which must be a single character
func (j *Job) DelimiterRune() (rune, error) {
	if utf8.RuneCountInString(j.Delimiter) != 1 {
		return 0, errors.ConfigError{Field: "delimiter", Reason: fmt.Sprintf("must be a single character, was %q", j.Delimiter)}
	}
	r, _ := utf8.DecodeRuneInString(j.Delimiter)
	return r, nil
}

// QuoteRune returns the quote character, or text.NoQuote (-1) when quoting is disabled
func (j *Job) QuoteRune() (rune, error) {
	if j.Quote == "" {
		return -1, nil
	}
	if utf8.RuneCountInString(j.Quote) != 1 {
		return 0, errors.ConfigError{Field: "quote", Reason: fmt.Sprintf("must be a single character, was %q", j.Quote)}
	}
	r, _ := utf8.DecodeRuneInString(j.Quote)
	if string(r) == j.Delimiter {
		return 0, errors.ConfigError{Field: "quote", Reason: "must differ from the delimiter"}
	}
	return r, nil
}

// Policy returns the parsed encoding policy
func (j *Job) Policy() charset.Policy {
	p, _ := charset.ParsePolicy(j.EncodingPolicy)
	return p
}

// Bound returns the target bounds, or nil when none are configured
func (j *Job) Bound() (*orb.Bound, error) {
	if len(j.Bounds) == 0 {
		return nil, nil
	}
	if len(j.Bounds) != 4 {
		return nil, errors.ConfigError{Field: "bounds", Reason: fmt.Sprintf("expected [minx, miny, maxx, maxy], found %d values", len(j.Bounds))}
	}
	b := orb.Bound{Min: orb.Point{j.Bounds[0], j.Bounds[1]}, Max: orb.Point{j.Bounds[2], j.Bounds[3]}}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return nil, errors.ConfigError{Field: "bounds", Reason: "minimum exceeds maximum"}
	}
	return &b, nil
}
