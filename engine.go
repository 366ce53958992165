package geopart

import "context"

// ShardHandle refers to one shard of a distributed dataset
type ShardHandle interface {
	Index() int                 // 0-based shard index
	Len() int                   // number of native records in this shard
	Open() (RawIterator, error) // opens the shard's records for reading
	Restartable() bool          // true iff Open may be called more than once
}

// ShardWork is executed by an Engine once per shard
type ShardWork func(ctx context.Context, shard ShardHandle) error

// Engine is a parallel-execution capability: it balances a dataset into shards and
// runs work against each shard. Scheduling, cancellation and failure handling belong
// to the Engine.
type Engine interface {
	// Distribute loads the source and divides it into shardCount balanced shards.
	// A shardCount of 0 lets the engine choose.
	Distribute(ctx context.Context, source Source, shardCount int) ([]ShardHandle, error)
	// RunPerShard runs work for every shard, blocking until all complete or one fails
	RunPerShard(ctx context.Context, shards []ShardHandle, work ShardWork) error
}
