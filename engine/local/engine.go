// Package local provides an in-process Engine which distributes a Source into
// balanced shards and runs shard work on a bounded pool of goroutines.
package local

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docker/docker/pkg/locker"
	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/codec"
	"github.com/go-sif/geopart/internal/stats"
	"github.com/go-sif/geopart/internal/util"
	"github.com/go-sif/geopart/logging"
	"github.com/gofrs/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Engine is a single-host geopart.Engine
type Engine struct {
	opts     *Options
	log      zerolog.Logger
	codec    codec.Codec
	id       uuid.UUID
	locks    *locker.Locker
	stats    *stats.RunStatistics
	lock     sync.Mutex
	spillDir string // created lazily, beneath opts.SpillDir
	closed   bool
}

// CreateEngine creates an in-process Engine
func CreateEngine(opts *Options) (*Engine, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts = CloneOptions(opts)
	if err := ensureDefaultOptionsValues(opts); err != nil {
		return nil, err
	}
	c, err := codec.ForName(opts.Codec)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("unable to generate engine id: %w", err)
	}
	return &Engine{
		opts:  opts,
		log:   logging.Component(logging.OrNop(opts.Logger), "local-engine").With().Str("engine", id.String()).Logger(),
		codec: c,
		id:    id,
		locks: locker.New(),
		stats: &stats.RunStatistics{},
	}, nil
}

// Stats returns statistics about the work this Engine has done
func (e *Engine) Stats() geopart.RuntimeStatistics {
	return e.stats
}

// Distribute scans the source once and cuts its records into shardCount contiguous shards.
// Shard sizes differ by at most one record. Trailing shards may be empty when the source
// holds fewer records than shards.
func (e *Engine) Distribute(ctx context.Context, source geopart.Source, shardCount int) ([]geopart.ShardHandle, error) {
	if shardCount < 0 {
		return nil, errors.ConfigError{Field: "parallelism", Reason: fmt.Sprintf("must not be negative, was %d", shardCount)}
	}
	if shardCount == 0 {
		shardCount = e.opts.DefaultShards
	}
	e.stats.Start(shardCount)
	e.log.Debug().Str("source", source.Name()).Int("shards", shardCount).Msg("distributing source")
	var shards []geopart.ShardHandle
	var err error
	if e.opts.SpillDir == "" {
		shards, err = e.distributeInMemory(ctx, source, shardCount)
	} else {
		shards, err = e.distributeToDisk(ctx, source, shardCount)
	}
	if err != nil {
		return nil, err
	}
	var total int
	for _, s := range shards {
		total += s.Len()
	}
	e.stats.AddRecordsDistributed(int64(total))
	e.log.Info().Str("source", source.Name()).Int("shards", len(shards)).Int("records", total).Msg("distributed source")
	return shards, nil
}

func (e *Engine) distributeInMemory(ctx context.Context, source geopart.Source, shardCount int) ([]geopart.ShardHandle, error) {
	var records [][]byte
	if err := source.Scan(ctx, func(raw []byte) error {
		records = append(records, raw)
		return nil
	}); err != nil {
		return nil, err
	}
	shards := make([]geopart.ShardHandle, shardCount)
	offset := 0
	for i, size := range shardSizes(len(records), shardCount) {
		shards[i] = &memoryShard{index: i, records: records[offset : offset+size]}
		offset += size
	}
	return shards, nil
}

// distributeToDisk stages the source into one file to count it, then cuts the staged
// records into one compressed file per shard. Each call spills into its own directory.
func (e *Engine) distributeToDisk(ctx context.Context, source geopart.Source, shardCount int) ([]geopart.ShardHandle, error) {
	root, err := e.ensureSpillDir()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(root, "distribution-*")
	if err != nil {
		return nil, fmt.Errorf("unable to create spill directory: %w", err)
	}
	staging, err := os.CreateTemp(dir, "staging-*")
	if err != nil {
		return nil, fmt.Errorf("unable to create staging file: %w", err)
	}
	defer func() {
		staging.Close()
		os.Remove(staging.Name())
	}()
	w := bufio.NewWriter(staging)
	count := 0
	if err := source.Scan(ctx, func(raw []byte) error {
		count++
		return codec.WriteRecord(w, raw)
	}); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("unable to write staging file: %w", err)
	}
	if _, err := staging.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(staging)
	shards := make([]geopart.ShardHandle, shardCount)
	for i, size := range shardSizes(count, shardCount) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		shard := &spilledShard{
			index: i,
			len:   size,
			path:  filepath.Join(dir, fmt.Sprintf("shard-%d", i)),
			codec: e.codec,
			locks: e.locks,
		}
		if err := e.spill(shard, r); err != nil {
			return nil, err
		}
		shards[i] = shard
	}
	return shards, nil
}

// spill copies the next shard.len staged records into the shard's file
func (e *Engine) spill(shard *spilledShard, staged *bufio.Reader) error {
	e.locks.Lock(shard.path)
	defer e.locks.Unlock(shard.path)
	f, err := os.Create(shard.path)
	if err != nil {
		return fmt.Errorf("unable to create shard file %s: %w", shard.path, err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	cw, err := e.codec.NewWriter(bw)
	if err != nil {
		return err
	}
	for j := 0; j < shard.len; j++ {
		record, err := codec.ReadRecord(staged)
		if err != nil {
			return fmt.Errorf("unable to read staged record: %w", err)
		}
		if err := codec.WriteRecord(cw, record); err != nil {
			return fmt.Errorf("unable to write shard file %s: %w", shard.path, err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("unable to write shard file %s: %w", shard.path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("unable to write shard file %s: %w", shard.path, err)
	}
	e.log.Debug().Int("shard", shard.index).Int("records", shard.len).Str("codec", e.codec.Name()).Msg("spilled shard")
	return nil
}

func (e *Engine) ensureSpillDir() (string, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return "", fmt.Errorf("engine %s is closed", e.id)
	}
	if e.spillDir == "" {
		dir := filepath.Join(e.opts.SpillDir, e.id.String())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("unable to create spill directory %s: %w", dir, err)
		}
		e.spillDir = dir
	}
	return e.spillDir, nil
}

// RunPerShard runs work against every shard, at most opts.Workers at a time. It blocks
// until every shard is done. The first failure cancels the context handed to the
// remaining work, and is returned as an errors.DistributedTaskFailure.
func (e *Engine) RunPerShard(ctx context.Context, shards []geopart.ShardHandle, work geopart.ShardWork) error {
	sem := semaphore.NewWeighted(int64(e.opts.Workers))
	g, gctx := errgroup.WithContext(ctx)
	safeWork := util.SafeShardWork(work)
	var acquireErr error
	for _, shard := range shards {
		if acquireErr = sem.Acquire(gctx, 1); acquireErr != nil {
			break
		}
		shard := shard
		g.Go(func() error {
			defer sem.Release(1)
			start := time.Now()
			err := safeWork(gctx, shard)
			e.stats.EndShard(shard.Index(), time.Since(start))
			if err != nil {
				e.log.Error().Err(err).Int("shard", shard.Index()).Msg("shard work failed")
				return errors.DistributedTaskFailure{Shard: shard.Index(), Err: err}
			}
			e.log.Debug().Int("shard", shard.Index()).Dur("runtime", time.Since(start)).Msg("shard work complete")
			return nil
		})
	}
	err := g.Wait()
	e.stats.Finish()
	if err != nil {
		return err
	}
	if acquireErr != nil {
		return acquireErr
	}
	return nil
}

// Close removes any spilled shards. Shards must not be opened afterwards.
func (e *Engine) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.closed = true
	if e.spillDir == "" {
		return nil
	}
	result := e.removeSpilled(e.spillDir, nil)
	if result != nil {
		e.log.Warn().Str("errors", util.FormatMultiError(result.Errors)).Msg("incomplete spill cleanup")
	}
	e.spillDir = ""
	return result.ErrorOrNil()
}

// removeSpilled deletes dir and every shard file beneath it
func (e *Engine) removeSpilled(dir string, result *multierror.Error) *multierror.Error {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			result = e.removeSpilled(path, result)
			continue
		}
		e.locks.Lock(path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
		e.locks.Unlock(path)
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	return result
}
