package util

import (
	"context"
	goerrors "errors"
	"testing"

	"github.com/go-sif/geopart"
	"github.com/stretchr/testify/require"
)

type stubShard int

func (s stubShard) Index() int { return int(s) }
func (s stubShard) Len() int { return 0 }
func (s stubShard) Open() (geopart.RawIterator, error) { return nil, nil }
func (s stubShard) Restartable() bool { return false }

func TestSafeShardWorkRecoversPanics(t *testing.T) {
	boom := goerrors.New("boom")
	work := SafeShardWork(func(ctx context.Context, shard geopart.ShardHandle) error {
		panic(boom)
	})
	err := work(context.Background(), stubShard(3))
	require.NotNil(t, err)
	require.True(t, goerrors.Is(err, boom))
	require.Contains(t, err.Error(), "Shard: 3")

	work = SafeShardWork(func(ctx context.Context, shard geopart.ShardHandle) error {
		panic("not an error")
	})
	err = work(context.Background(), stubShard(1))
	require.Contains(t, err.Error(), "not an error")
}

func TestSafeShardWorkPassesErrorsThrough(t *testing.T) {
	sentinel := goerrors.New("sentinel")
	work := SafeShardWork(func(ctx context.Context, shard geopart.ShardHandle) error {
		return sentinel
	})
	require.Equal(t, sentinel, work(context.Background(), stubShard(0)))
	work = SafeShardWork(func(ctx context.Context, shard geopart.ShardHandle) error {
		return nil
	})
	require.Nil(t, work(context.Background(), stubShard(0)))
}

func TestSafeNormalize(t *testing.T) {
	normalize := SafeNormalize(func(raw []byte) (geopart.Record, error) {
		var m map[string]string
		m["x"] = string(raw) // nil map write
		return m, nil
	})
	_, err := normalize([]byte("payload"))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "payload")
}

func TestFormatMultiError(t *testing.T) {
	msg := FormatMultiError([]error{goerrors.New("a"), goerrors.New("b")})
	require.Equal(t, "a\nb\n", msg)
}
