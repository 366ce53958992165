package distributed_test

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/datasource/memory"
	"github.com/go-sif/geopart/distributed"
	"github.com/go-sif/geopart/engine/local"
	"github.com/go-sif/geopart/errors"
	gtesting "github.com/go-sif/geopart/testing"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func pointRecords(n int) []geopart.Record {
	out := make([]geopart.Record, n)
	for i := range out {
		out[i] = geopart.Record{"id": fmt.Sprint(i), "wkt": fmt.Sprintf("POINT(%d %d)", i, i)}
	}
	return out
}

func TestRunConvertsEveryShard(t *testing.T) {
	defer goleak.VerifyNone(t)
	out := filepath.Join(t.TempDir(), "out", "result.nt")
	recorder := gtesting.NewRecorder()
	records := pointRecords(25)
	parts, err := gtesting.LocalRun(context.Background(), memory.CreateSource("points", records), &distributed.Conf{
		Parallelism:  4,
		OutputPath:   out,
		Settings:     "settings",
		Rules:        []string{"rule"},
		SourceSRID:   "EPSG:4326",
		TargetSRID:   "EPSG:3857",
		NewConverter: recorder.Factory(),
	}, &local.Options{Workers: 2})
	require.Nil(t, err)
	require.Equal(t, 4, len(parts))
	require.Equal(t, 4, recorder.NumConverters())
	var total int64
	for i, part := range parts {
		require.Equal(t, i, part.Index)
		require.Equal(t, filepath.Join(filepath.Dir(out), fmt.Sprintf("result_%d.nt", i)), part.Path)
		params, ok := recorder.Params(i)
		require.True(t, ok)
		require.Equal(t, part.Path, params.OutputPath)
		require.Equal(t, "settings", params.Settings)
		require.Equal(t, "EPSG:4326", params.SourceSRID)
		require.Equal(t, "EPSG:3857", params.TargetSRID)
		require.EqualValues(t, len(recorder.Records(i)), part.Records)
		total += part.Records
	}
	require.EqualValues(t, 25, total)
	require.Equal(t, []int64{7, 6, 6, 6}, []int64{parts[0].Records, parts[1].Records, parts[2].Records, parts[3].Records})
	require.Equal(t, records, recorder.All())
}

// flakySource fails to normalise every record whose payload mentions "bad"
type flakySource struct {
	*memory.Source
}

func (s flakySource) Normalize(raw []byte) (geopart.Record, error) {
	r, err := s.Source.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if r["id"] == "bad" {
		return nil, fmt.Errorf("cannot normalise")
	}
	if r["id"] == "panic" {
		panic("normaliser exploded")
	}
	return r, nil
}

func TestRunSkipsRecordsWhichCannotBeNormalised(t *testing.T) {
	records := []geopart.Record{{"id": "1"}, {"id": "bad"}, {"id": "2"}, {"id": "panic"}, {"id": "3"}}
	recorder := gtesting.NewRecorder()
	parts, err := gtesting.LocalRun(context.Background(), flakySource{memory.CreateSource("flaky", records)}, &distributed.Conf{
		Parallelism:  1,
		OutputPath:   filepath.Join(t.TempDir(), "out.ttl"),
		NewConverter: recorder.Factory(),
	}, nil)
	require.Nil(t, err)
	require.Equal(t, 1, len(parts))
	require.EqualValues(t, 3, parts[0].Records)
	require.Equal(t, []geopart.Record{{"id": "1"}, {"id": "2"}, {"id": "3"}}, recorder.All())
}

func TestRunFailsWhenAShardFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	recorder := gtesting.NewRecorder()
	boom := goerrors.New("converter failed")
	recorder.FailShard(2, boom)
	_, err := gtesting.LocalRun(context.Background(), memory.CreateSource("points", pointRecords(9)), &distributed.Conf{
		Parallelism:  3,
		OutputPath:   filepath.Join(t.TempDir(), "out.nt"),
		NewConverter: recorder.Factory(),
	}, &local.Options{Workers: 3})
	var failure errors.DistributedTaskFailure
	require.True(t, goerrors.As(err, &failure))
	require.Equal(t, 2, failure.Shard)
	require.True(t, goerrors.Is(err, boom))
}

func TestRunFailsWhenConverterCannotBeCreated(t *testing.T) {
	_, err := gtesting.LocalRun(context.Background(), memory.CreateSource("points", pointRecords(2)), &distributed.Conf{
		OutputPath: filepath.Join(t.TempDir(), "out.nt"),
		NewConverter: func(params geopart.ConverterParams) (geopart.Converter, error) {
			return nil, fmt.Errorf("no converter for shard %d", params.ShardIndex)
		},
	}, &local.Options{Workers: 1})
	var failure errors.DistributedTaskFailure
	require.True(t, goerrors.As(err, &failure))
}

type restartingConverter struct {
	params geopart.ConverterParams
	passes [][]geopart.Record
}

func (c *restartingConverter) Apply(ctx context.Context) error {
	for pass := 0; pass < 2; pass++ {
		var seen []geopart.Record
		for c.params.Records.HasNextRecord() {
			r, err := c.params.Records.NextRecord()
			if err == io.EOF {
				break
			} else if err != nil {
				return err
			}
			seen = append(seen, r)
		}
		c.passes = append(c.passes, seen)
		restartable, ok := c.params.Records.(geopart.RestartableRecordIterator)
		if !ok {
			return fmt.Errorf("records are not restartable")
		}
		if err := restartable.Restart(); err != nil {
			return err
		}
	}
	return nil
}

func TestRecordsCanBeRestarted(t *testing.T) {
	for _, spill := range []string{"", t.TempDir()} {
		converter := &restartingConverter{}
		_, err := gtesting.LocalRun(context.Background(), memory.CreateSource("points", pointRecords(5)), &distributed.Conf{
			Parallelism: 1,
			OutputPath:  "out.nt",
			NewConverter: func(params geopart.ConverterParams) (geopart.Converter, error) {
				converter.params = params
				return converter, nil
			},
		}, &local.Options{Workers: 1, SpillDir: spill})
		require.Nil(t, err)
		require.Equal(t, 2, len(converter.passes))
		require.Equal(t, pointRecords(5), converter.passes[0])
		require.Equal(t, converter.passes[0], converter.passes[1])
	}
}

func TestCreatePartitionerValidation(t *testing.T) {
	engine, err := local.CreateEngine(nil)
	require.Nil(t, err)
	factory := gtesting.NewRecorder().Factory()
	var cerr errors.ConfigError

	_, err = distributed.CreatePartitioner(nil, &distributed.Conf{OutputPath: "o.nt", NewConverter: factory})
	require.True(t, goerrors.As(err, &cerr))
	_, err = distributed.CreatePartitioner(engine, &distributed.Conf{OutputPath: "o.nt"})
	require.True(t, goerrors.As(err, &cerr))
	_, err = distributed.CreatePartitioner(engine, &distributed.Conf{NewConverter: factory})
	require.True(t, goerrors.As(err, &cerr))
	_, err = distributed.CreatePartitioner(engine, &distributed.Conf{OutputPath: "o.nt", NewConverter: factory, Parallelism: -2})
	require.True(t, goerrors.As(err, &cerr))
}

// reopenFailingShard can be opened once
type reopenFailingShard struct {
	opens  int
	closes int
}

func (s *reopenFailingShard) Index() int { return 0 }
func (s *reopenFailingShard) Len() int { return 1 }
func (s *reopenFailingShard) Restartable() bool { return true }

func (s *reopenFailingShard) Open() (geopart.RawIterator, error) {
	s.opens++
	if s.opens > 1 {
		return nil, goerrors.New("shard is gone")
	}
	return &countingIterator{shard: s, records: [][]byte{[]byte(`{"id":"1"}`)}}, nil
}

type countingIterator struct {
	shard   *reopenFailingShard
	records [][]byte
}

func (it *countingIterator) HasNext() bool { return len(it.records) > 0 }

func (it *countingIterator) Next() ([]byte, error) {
	if len(it.records) == 0 {
		return nil, io.EOF
	}
	r := it.records[0]
	it.records = it.records[1:]
	return r, nil
}

func (it *countingIterator) Close() error {
	it.shard.closes++
	return nil
}

// singleShardEngine hands out one prepared shard and runs work on the caller's goroutine
type singleShardEngine struct {
	shard geopart.ShardHandle
}

func (e *singleShardEngine) Distribute(ctx context.Context, source geopart.Source, shardCount int) ([]geopart.ShardHandle, error) {
	return []geopart.ShardHandle{e.shard}, nil
}

func (e *singleShardEngine) RunPerShard(ctx context.Context, shards []geopart.ShardHandle, work geopart.ShardWork) error {
	for _, s := range shards {
		if err := work(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func TestRestartFailureLeavesIteratorConsistent(t *testing.T) {
	shard := &reopenFailingShard{}
	var restartErr error
	var afterRestart bool
	var nextErr error
	p, err := distributed.CreatePartitioner(&singleShardEngine{shard: shard}, &distributed.Conf{
		OutputPath: "out.nt",
		NewConverter: func(params geopart.ConverterParams) (geopart.Converter, error) {
			return converterFunc(func(ctx context.Context) error {
				records := params.Records.(geopart.RestartableRecordIterator)
				for records.HasNextRecord() {
					if _, err := records.NextRecord(); err != nil {
						return err
					}
				}
				restartErr = records.Restart()
				afterRestart = records.HasNextRecord()
				_, nextErr = records.NextRecord()
				return nil
			}), nil
		},
	})
	require.Nil(t, err)
	_, err = p.Run(context.Background(), memory.CreateSource("unused", nil))
	require.NotNil(t, err)
	require.NotNil(t, restartErr)
	require.True(t, afterRestart)
	require.NotNil(t, nextErr)
	require.NotEqual(t, io.EOF, nextErr)
	require.Equal(t, 1, shard.closes)
}

type converterFunc func(ctx context.Context) error

func (f converterFunc) Apply(ctx context.Context) error { return f(ctx) }
