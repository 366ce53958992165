// Package geopart splits large geospatial and tabular datasets into balanced,
// self-describing partitions so that a downstream record-to-triple Converter
// can process them concurrently or across a cluster.
// This root package defines the contracts shared by every partitioning strategy:
// Partitioners which write partitions to a working directory, Sources and Engines
// which shard a dataset for distributed conversion, and the Converter boundary itself.
package geopart
