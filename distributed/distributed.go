// Package distributed hands partitioning to a cluster-compute Engine: the Engine
// balances a Source into shards, and a Converter runs once per shard over the
// shard's normalised Records.
package distributed

import (
	"context"
	"fmt"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/util"
	"github.com/go-sif/geopart/logging"
	"github.com/rs/zerolog"
)

// Conf configures a distributed Partitioner
type Conf struct {
	Parallelism  int                      // number of shards. 0 lets the Engine decide
	OutputPath   string                   // [REQUIRED] converter output location; each shard inserts its index before the extension
	Settings     interface{}              // passed through to each Converter
	Rules        interface{}              // passed through to each Converter
	SourceSRID   string                   // passed through to each Converter
	TargetSRID   string                   // passed through to each Converter
	NewConverter geopart.ConverterFactory // [REQUIRED] constructs the Converter for each shard
	Logger       *zerolog.Logger          // defaults to a disabled logger
}

// Partitioner runs a conversion over the shards of an Engine
type Partitioner struct {
	engine geopart.Engine
	conf   *Conf
	log    zerolog.Logger
}

// CreatePartitioner returns a new distributed Partitioner using engine
func CreatePartitioner(engine geopart.Engine, conf *Conf) (*Partitioner, error) {
	if engine == nil {
		return nil, errors.ConfigError{Field: "engine", Reason: "an Engine is required"}
	}
	if conf == nil || conf.NewConverter == nil {
		return nil, errors.ConfigError{Field: "converter", Reason: "a Converter factory is required"}
	}
	if conf.OutputPath == "" {
		return nil, errors.ConfigError{Field: "output_path", Reason: "must not be empty"}
	}
	if conf.Parallelism < 0 {
		return nil, errors.ConfigError{Field: "parallelism", Reason: fmt.Sprintf("must not be negative, was %d", conf.Parallelism)}
	}
	return &Partitioner{
		engine: engine,
		conf:   conf,
		log:    logging.Component(logging.OrNop(conf.Logger), "distributed-partitioner"),
	}, nil
}

// Run distributes source across the Engine and applies one Converter per shard,
// blocking until every shard is converted or one fails. The returned Partitions
// are ordered by shard index.
func (p *Partitioner) Run(ctx context.Context, source geopart.Source) ([]geopart.Partition, error) {
	shards, err := p.engine.Distribute(ctx, source, p.conf.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("unable to distribute %s: %w", source.Name(), err)
	}
	p.log.Debug().Str("source", source.Name()).Int("shards", len(shards)).Msg("distributed source")
	partitions := make([]geopart.Partition, len(shards))
	normalize := util.SafeNormalize(source.Normalize)
	err = p.engine.RunPerShard(ctx, shards, func(ctx context.Context, shard geopart.ShardHandle) error {
		idx := shard.Index()
		if idx < 0 || idx >= len(partitions) {
			return fmt.Errorf("shard index %d out of range [0, %d)", idx, len(partitions))
		}
		part, err := p.convertShard(ctx, shard, normalize)
		if err != nil {
			return err
		}
		partitions[idx] = part
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.log.Info().Str("source", source.Name()).Int("shards", len(partitions)).Str("output", p.conf.OutputPath).Msg("converted all shards")
	return partitions, nil
}

func (p *Partitioner) convertShard(ctx context.Context, shard geopart.ShardHandle, normalize func([]byte) (geopart.Record, error)) (geopart.Partition, error) {
	log := p.log.With().Int("shard", shard.Index()).Logger()
	records, err := newRecordIterator(shard, normalize, log)
	if err != nil {
		return geopart.Partition{}, fmt.Errorf("unable to open shard: %w", err)
	}
	defer records.close()
	path := geopart.ShardPath(p.conf.OutputPath, shard.Index())
	converter, err := p.conf.NewConverter(geopart.ConverterParams{
		Settings:   p.conf.Settings,
		Rules:      p.conf.Rules,
		OutputPath: path,
		SourceSRID: p.conf.SourceSRID,
		TargetSRID: p.conf.TargetSRID,
		Records:    records.forConverter(),
		ShardIndex: shard.Index(),
	})
	if err != nil {
		return geopart.Partition{}, fmt.Errorf("unable to create converter: %w", err)
	}
	if err := converter.Apply(ctx); err != nil {
		return geopart.Partition{}, err
	}
	if records.readErr != nil {
		return geopart.Partition{}, fmt.Errorf("unable to read shard: %w", records.readErr)
	}
	log.Debug().Int64("records", records.delivered).Int64("skipped", records.skipped).Str("output", path).Msg("converted shard")
	return geopart.Partition{Index: shard.Index(), Path: path, Records: records.delivered}, nil
}
