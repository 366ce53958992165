package stats

import (
	"sync"
	"time"
)

const statisticRollingWindows = 5

// RunStatistics contains statistics about a running distributed job. It is safe for
// concurrent use by shard workers.
type RunStatistics struct {
	lock                    sync.Mutex
	started                 bool
	finished                bool
	startTime               time.Time
	totalRuntime            time.Duration
	recordsDistributed      int64
	shardsProcessed         int64
	shardRuntimes           []time.Duration
	recentShardRuntimes     []time.Duration // for rolling average of recent shard processing times
	recentShardRuntimesHead int
}

// Start triggers statistics tracking, if it hasn't been started already
func (rs *RunStatistics) Start(numShards int) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	if !rs.started {
		rs.started = true
		rs.startTime = time.Now()
		rs.recentShardRuntimes = make([]time.Duration, statisticRollingWindows)
	}
	if numShards > len(rs.shardRuntimes) {
		grown := make([]time.Duration, numShards)
		copy(grown, rs.shardRuntimes)
		rs.shardRuntimes = grown
	}
}

// Finish completes statistics tracking
func (rs *RunStatistics) Finish() {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.finished = true
	rs.totalRuntime = time.Since(rs.startTime)
}

// AddRecordsDistributed tracks records loaded into shards
func (rs *RunStatistics) AddRecordsDistributed(n int64) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	rs.recordsDistributed += n
}

// EndShard tracks the end of the processing of a shard
func (rs *RunStatistics) EndShard(shard int, runtime time.Duration) {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	if shard >= 0 && shard < len(rs.shardRuntimes) {
		rs.shardRuntimes[shard] = runtime
	}
	if len(rs.recentShardRuntimes) > 0 {
		rs.recentShardRuntimes[rs.recentShardRuntimesHead] = runtime
		rs.recentShardRuntimesHead = (rs.recentShardRuntimesHead + 1) % len(rs.recentShardRuntimes)
	}
	rs.shardsProcessed++
}

// GetStartTime returns the start time of the job
func (rs *RunStatistics) GetStartTime() time.Time {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.startTime
}

// GetRuntime returns the running time of the job
func (rs *RunStatistics) GetRuntime() time.Duration {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	if rs.finished {
		return rs.totalRuntime
	}
	if !rs.started {
		return 0
	}
	return time.Since(rs.startTime)
}

// GetNumRecordsDistributed returns the number of records loaded into shards so far
func (rs *RunStatistics) GetNumRecordsDistributed() int64 {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.recordsDistributed
}

// GetNumShardsProcessed returns the number of shards which have been processed so far
func (rs *RunStatistics) GetNumShardsProcessed() int64 {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	return rs.shardsProcessed
}

// GetShardRuntimes returns the recorded runtime of each shard
func (rs *RunStatistics) GetShardRuntimes() []time.Duration {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	out := make([]time.Duration, len(rs.shardRuntimes))
	copy(out, rs.shardRuntimes)
	return out
}

// GetCurrentShardProcessingTime returns a rolling average of shard processing time
func (rs *RunStatistics) GetCurrentShardProcessingTime() time.Duration {
	rs.lock.Lock()
	defer rs.lock.Unlock()
	var total time.Duration
	for _, d := range rs.recentShardRuntimes {
		total += d
	}
	return total / statisticRollingWindows
}
