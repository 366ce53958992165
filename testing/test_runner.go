// Package testing provides helpers for exercising distributed partitioning in tests:
// a Converter which records what it is given, and a single-host runner.
package testing

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/distributed"
	"github.com/go-sif/geopart/engine/local"
	multierror "github.com/hashicorp/go-multierror"
)

// Recorder collects the Records each shard's Converter receives
type Recorder struct {
	lock    sync.Mutex
	records map[int][]geopart.Record
	params  map[int]geopart.ConverterParams
	fail    map[int]error
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{
		records: make(map[int][]geopart.Record),
		params:  make(map[int]geopart.ConverterParams),
		fail:    make(map[int]error),
	}
}

// FailShard makes the Converter for shard return err once it has consumed its Records
func (r *Recorder) FailShard(shard int, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.fail[shard] = err
}

// Factory returns a ConverterFactory producing recording Converters
func (r *Recorder) Factory() geopart.ConverterFactory {
	return func(params geopart.ConverterParams) (geopart.Converter, error) {
		r.lock.Lock()
		r.params[params.ShardIndex] = params
		r.lock.Unlock()
		return &recordingConverter{recorder: r, params: params}, nil
	}
}

// Records returns the Records converted for a shard, in the order they were received
func (r *Recorder) Records(shard int) []geopart.Record {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.records[shard]
}

// All returns every converted Record, ordered by shard and then by position within the shard
func (r *Recorder) All() []geopart.Record {
	r.lock.Lock()
	defer r.lock.Unlock()
	shards := make([]int, 0, len(r.records))
	for s := range r.records {
		shards = append(shards, s)
	}
	sort.Ints(shards)
	var all []geopart.Record
	for _, s := range shards {
		all = append(all, r.records[s]...)
	}
	return all
}

// Params returns the parameters the Converter for a shard was created with
func (r *Recorder) Params(shard int) (geopart.ConverterParams, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	p, ok := r.params[shard]
	return p, ok
}

// NumConverters returns the number of Converters created so far
func (r *Recorder) NumConverters() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.params)
}

type recordingConverter struct {
	recorder *Recorder
	params   geopart.ConverterParams
}

func (c *recordingConverter) Apply(ctx context.Context) error {
	var records []geopart.Record
	for c.params.Records.HasNextRecord() {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := c.params.Records.NextRecord()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		records = append(records, record)
	}
	c.recorder.lock.Lock()
	defer c.recorder.lock.Unlock()
	c.recorder.records[c.params.ShardIndex] = records
	return c.recorder.fail[c.params.ShardIndex]
}

// LocalRun runs a distributed conversion of source on an in-process Engine, cleaning
// up the Engine afterwards
func LocalRun(ctx context.Context, source geopart.Source, conf *distributed.Conf, opts *local.Options) (parts []geopart.Partition, err error) {
	engine, err := local.CreateEngine(opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	p, err := distributed.CreatePartitioner(engine, conf)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, source)
}
