package errors

import (
	"fmt"
)

// InputAccessError occurs when a source dataset is missing or cannot be read
type InputAccessError struct {
	Path string
	Err  error
}

// Error returns a textual representation of this InputAccessError
func (e InputAccessError) Error() string {
	return fmt.Sprintf("Unable to access input %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e InputAccessError) Unwrap() error {
	return e.Err
}

// FormatError occurs when a source is structurally unusable: a malformed header,
// an unsupported schema or CRS, or a value rejected by a strict encoding policy
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

// Error returns a textual representation of this FormatError
func (e FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Invalid format in %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("Invalid format in %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error, if any
func (e FormatError) Unwrap() error {
	return e.Err
}

// ConfigError occurs when a partitioning request or job configuration is invalid
type ConfigError struct {
	Field  string
	Reason string
}

// Error returns a textual representation of this ConfigError
func (e ConfigError) Error() string {
	return fmt.Sprintf("Invalid configuration for %s: %s", e.Field, e.Reason)
}

// UnencodableValueError occurs when an attribute value contains a character which
// cannot be represented in the target encoding
type UnencodableValueError struct {
	Field    string
	Value    string
	Offset   int // byte offset of the first unencodable character
	Encoding string
}

// Error returns a textual representation of this UnencodableValueError
func (e UnencodableValueError) Error() string {
	return fmt.Sprintf("Value of field %s cannot be encoded as %s at byte %d: %q", e.Field, e.Encoding, e.Offset, e.Value)
}

// DistributedTaskFailure occurs when the work for a single shard fails
type DistributedTaskFailure struct {
	Shard int
	Err   error
}

// Error returns a textual representation of this DistributedTaskFailure
func (e DistributedTaskFailure) Error() string {
	return fmt.Sprintf("Task for shard %d failed: %v", e.Shard, e.Err)
}

// Unwrap returns the underlying error
func (e DistributedTaskFailure) Unwrap() error {
	return e.Err
}
