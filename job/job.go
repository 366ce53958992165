// Package job runs a configured partitioning job: it picks the strategy for the
// job's mode and format, and returns the partitions produced.
package job

import (
	"context"
	"fmt"
	"os"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/config"
	"github.com/go-sif/geopart/datasource/dsv"
	"github.com/go-sif/geopart/datasource/geojson"
	"github.com/go-sif/geopart/datasource/jsonl"
	"github.com/go-sif/geopart/datasource/shapefile"
	"github.com/go-sif/geopart/distributed"
	"github.com/go-sif/geopart/engine/local"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/logging"
	"github.com/go-sif/geopart/partitioner"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Run executes cfg, logging to stderr as configured. factory is only needed in
// distributed mode.
func Run(ctx context.Context, cfg *config.Job, factory geopart.ConverterFactory) ([]geopart.Partition, error) {
	return RunWithLogger(ctx, cfg, factory, Logger(cfg))
}

// Logger builds the stderr logger cfg asks for
func Logger(cfg *config.Job) zerolog.Logger {
	if cfg.LogFormat == config.LogFormatConsole {
		return logging.NewConsole(cfg.LogLevel)
	}
	return logging.New(cfg.LogLevel, os.Stderr)
}

// RunWithLogger executes cfg using the given logger
func RunWithLogger(ctx context.Context, cfg *config.Job, factory geopart.ConverterFactory, log zerolog.Logger) ([]geopart.Partition, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logging.Component(log, "job")
	log.Info().Str("mode", string(cfg.Mode)).Str("format", cfg.Format).Str("input", cfg.Input).Msg("starting job")
	if cfg.Mode == config.ModeDistributed {
		return runDistributed(ctx, cfg, factory, log)
	}
	return runLocal(ctx, cfg, log)
}

func runLocal(ctx context.Context, cfg *config.Job, log zerolog.Logger) ([]geopart.Partition, error) {
	format, _ := cfg.InputFormat()
	delimiter, _ := cfg.DelimiterRune()
	quote, _ := cfg.QuoteRune()
	bounds, _ := cfg.Bound()
	p, err := partitioner.ForFormat(format, &partitioner.Conf{
		Delimiter: delimiter,
		Quote:     quote,
		Policy:    cfg.Policy(),
		Bounds:    bounds,
		Logger:    &log,
	})
	if err != nil {
		return nil, err
	}
	return p.Split(ctx, geopart.SplitRequest{
		InputPath:     cfg.Input,
		OutputDir:     cfg.OutputDir,
		NumPartitions: cfg.Partitions,
		Encoding:      cfg.Encoding,
	})
}

// Source builds the distributed-mode Source for the job's input
func Source(cfg *config.Job) (geopart.Source, error) {
	format, err := cfg.InputFormat()
	if err != nil {
		return nil, err
	}
	switch format {
	case geopart.FormatText:
		delimiter, err := cfg.DelimiterRune()
		if err != nil {
			return nil, err
		}
		return dsv.CreateSource(cfg.Input, &dsv.SourceConf{
			Delimiter:     delimiter,
			Encoding:      cfg.Encoding,
			GeometryField: cfg.GeometryField,
			XColumn:       cfg.XColumn,
			YColumn:       cfg.YColumn,
		}), nil
	case geopart.FormatShapefile:
		return shapefile.CreateSource(cfg.Input, &shapefile.SourceConf{
			Encoding:      cfg.Encoding,
			GeometryField: cfg.GeometryField,
		}), nil
	case geopart.FormatJSONL:
		return jsonl.CreateSource(cfg.Input, &jsonl.SourceConf{
			GeometryField: cfg.GeometryField,
		}), nil
	case geopart.FormatGeoJSON:
		return geojson.CreateSource(cfg.Input, &geojson.SourceConf{
			GeometryField: cfg.GeometryField,
		}), nil
	}
	return nil, errors.ConfigError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
}

func runDistributed(ctx context.Context, cfg *config.Job, factory geopart.ConverterFactory, log zerolog.Logger) (parts []geopart.Partition, err error) {
	if factory == nil {
		return nil, errors.ConfigError{Field: "converter", Reason: "distributed jobs need a Converter factory"}
	}
	source, err := Source(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := local.CreateEngine(&local.Options{
		Workers:  cfg.Workers,
		SpillDir: cfg.SpillDir,
		Codec:    cfg.SpillCodec,
		Logger:   &log,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	p, err := distributed.CreatePartitioner(engine, &distributed.Conf{
		Parallelism:  cfg.Parallelism,
		OutputPath:   cfg.OutputPath,
		Settings:     cfg.Settings,
		Rules:        cfg.Rules,
		SourceSRID:   cfg.SourceSRID,
		TargetSRID:   cfg.TargetSRID,
		NewConverter: factory,
		Logger:       &log,
	})
	if err != nil {
		return nil, err
	}
	parts, err = p.Run(ctx, source)
	if err != nil {
		return nil, err
	}
	stats := engine.Stats()
	log.Info().
		Int64("shards", stats.GetNumShardsProcessed()).
		Int64("records", stats.GetNumRecordsDistributed()).
		Dur("runtime", stats.GetRuntime()).
		Dur("recent_shard_time", stats.GetCurrentShardProcessingTime()).
		Msg("finished distributed job")
	return parts, nil
}
