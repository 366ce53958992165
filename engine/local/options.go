package local

import (
	"fmt"
	"runtime"

	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/codec"
	"github.com/rs/zerolog"
)

// Options are options for an Engine
type Options struct {
	Workers       int             // the maximum number of shards processed at once. Defaults to runtime.NumCPU()
	DefaultShards int             // the shard count used when a caller asks for 0 shards. Defaults to Workers
	SpillDir      string          // iff set, shards are written to compressed files beneath this directory instead of held in memory
	Codec         string          // compression codec for spilled shards: lz4 (default), zstd or snappy
	Logger        *zerolog.Logger // defaults to a disabled logger
}

// CloneOptions makes a copy of an Options
func CloneOptions(opts *Options) *Options {
	return &Options{
		Workers:       opts.Workers,
		DefaultShards: opts.DefaultShards,
		SpillDir:      opts.SpillDir,
		Codec:         opts.Codec,
		Logger:        opts.Logger,
	}
}

func ensureDefaultOptionsValues(opts *Options) error {
	// reject options which cannot be defaulted
	if opts.Workers < 0 {
		return errors.ConfigError{Field: "workers", Reason: fmt.Sprintf("must not be negative, was %d", opts.Workers)}
	}
	if opts.DefaultShards < 0 {
		return errors.ConfigError{Field: "parallelism", Reason: fmt.Sprintf("must not be negative, was %d", opts.DefaultShards)}
	}
	if _, err := codec.ForName(opts.Codec); err != nil {
		return err
	}
	// default certain options if not supplied
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.DefaultShards == 0 {
		opts.DefaultShards = opts.Workers
	}
	if opts.Codec == "" {
		opts.Codec = codec.LZ4
	}
	return nil
}
