package charset

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-sif/geopart/errors"
)

// Policy decides what happens to an attribute value containing characters
// which the target encoding cannot represent
type Policy int

const (
	// Truncate cuts the value at the first unencodable character
	Truncate Policy = iota
	// Substitute replaces every unencodable character with SubstituteChar
	Substitute
	// Fail rejects the value
	Fail
)

// SubstituteChar replaces unencodable characters under the Substitute policy
const SubstituteChar = "?"

// String returns the configuration name of this Policy
func (p Policy) String() string {
	switch p {
	case Substitute:
		return "substitute"
	case Fail:
		return "fail"
	default:
		return "truncate"
	}
}

// ParsePolicy parses a policy name. The empty string means Truncate.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "truncate":
		return Truncate, nil
	case "substitute":
		return Substitute, nil
	case "fail":
		return Fail, nil
	}
	return Truncate, errors.ConfigError{Field: "encoding_policy", Reason: fmt.Sprintf("unknown policy %q", name)}
}

// Prepare checks a UTF-8 attribute value against the charset and applies the policy.
// The returned problem is non-nil whenever the value had to be altered (or, under Fail,
// could not be accepted); out is then the altered value, or "" under Fail.
func (c *Charset) Prepare(field, value string, policy Policy) (out string, problem *errors.UnencodableValueError) {
	offset := c.FirstUnencodable(value)
	if offset < 0 {
		return value, nil
	}
	problem = &errors.UnencodableValueError{Field: field, Value: value, Offset: offset, Encoding: c.Name}
	switch policy {
	case Fail:
		return "", problem
	case Substitute:
		var sb strings.Builder
		sb.WriteString(value[:offset])
		for i := offset; i < len(value); {
			_, size := utf8.DecodeRuneInString(value[i:])
			if c.FirstUnencodable(value[i:i+size]) >= 0 {
				sb.WriteString(SubstituteChar)
			} else {
				sb.WriteString(value[i : i+size])
			}
			i += size
		}
		return sb.String(), problem
	default:
		return value[:offset], problem
	}
}
