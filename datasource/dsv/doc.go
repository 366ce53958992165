// Package dsv loads delimiter-separated values into an Engine. The first row of
// each file names its columns.
package dsv
