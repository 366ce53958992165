package geopart

import (
	"fmt"

	"github.com/go-sif/geopart/errors"
)

// PartitionPlan holds the target partition count and the threshold used to decide
// partition boundaries. Plans are computed once per split and then discarded.
type PartitionPlan struct {
	NumPartitions int
	Threshold     int64 // bytes for text, records for structured data
}

// ValidatePartitionCount rejects partition counts below one
func ValidatePartitionCount(n int) error {
	if n < 1 {
		return errors.ConfigError{Field: "numPartitions", Reason: fmt.Sprintf("must be at least 1, was %d", n)}
	}
	return nil
}

// ByteSizePlan plans a split of totalBytes into n partitions of roughly totalBytes/n bytes
func ByteSizePlan(totalBytes int64, n int) (PartitionPlan, error) {
	if err := ValidatePartitionCount(n); err != nil {
		return PartitionPlan{}, err
	}
	threshold := totalBytes / int64(n)
	if threshold < 1 {
		threshold = 1
	}
	return PartitionPlan{NumPartitions: n, Threshold: threshold}, nil
}

// RecordCountPlan plans a split of totalRecords into partitions of ceil(totalRecords/n) records
func RecordCountPlan(totalRecords int64, n int) (PartitionPlan, error) {
	if err := ValidatePartitionCount(n); err != nil {
		return PartitionPlan{}, err
	}
	threshold := (totalRecords + int64(n) - 1) / int64(n)
	if threshold < 1 {
		threshold = 1
	}
	return PartitionPlan{NumPartitions: n, Threshold: threshold}, nil
}
