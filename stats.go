package geopart

import "time"

// RuntimeStatistics facilitates the retrieval of statistics about a distributed run
type RuntimeStatistics interface {
	// GetStartTime returns the start time of the run
	GetStartTime() time.Time
	// GetRuntime returns the running time of the run so far
	GetRuntime() time.Duration
	// GetNumRecordsDistributed returns the number of native records loaded into shards
	GetNumRecordsDistributed() int64
	// GetNumShardsProcessed returns the number of shards whose work has completed
	GetNumShardsProcessed() int64
	// GetShardRuntimes returns the recorded runtime of each shard, by shard index
	GetShardRuntimes() []time.Duration
	// GetCurrentShardProcessingTime returns a rolling average of recent shard runtimes
	GetCurrentShardProcessingTime() time.Duration
}
