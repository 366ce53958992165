package geopart

// RawIterator iterates over the native record payloads of a single shard
type RawIterator interface {
	HasNext() bool
	Next() ([]byte, error)
	Close() error
}

// RecordIterator lazily produces the normalised Records of a shard
type RecordIterator interface {
	HasNextRecord() bool
	NextRecord() (Record, error)
}

// RestartableRecordIterator is a RecordIterator which can be rewound to its first Record.
// Only shards which the Engine can re-materialise produce one.
type RestartableRecordIterator interface {
	RecordIterator
	Restart() error
}
