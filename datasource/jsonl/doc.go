// Package jsonl loads JSON Lines data into an Engine. This source uses https://github.com/tidwall/gjson to process data, and supports field selections formatted as gjson paths.
package jsonl
