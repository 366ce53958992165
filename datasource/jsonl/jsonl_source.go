package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/datasource"
	"github.com/go-sif/geopart/errors"
	"github.com/tidwall/gjson"
)

// SourceConf configures a JSONL Source, suitable for JSON lines data
type SourceConf struct {
	HeaderLines   int      // The number of lines to ignore from the beginning of each file. Defaults to 0.
	Comment       rune     // Lines beginning with the comment character are ignored. Defaults to no comment character.
	MaxBufferSize int      // Maximum size in bytes of the buffer used to read lines from the file
	GeometryKey   string   // Member holding embedded GeoJSON geometry. Defaults to "geometry"
	GeometryField string   // Record field receiving the WKT. Defaults to geopart.DefaultGeometryField
	Fields        []string // gjson paths to keep. Empty keeps every top-level member.
}

// Source loads the lines of every file matching a glob
type Source struct {
	glob string
	conf *SourceConf
}

// CreateSource returns a new JSONL Source
func CreateSource(glob string, conf *SourceConf) *Source {
	if conf == nil {
		conf = &SourceConf{}
	}
	if conf.MaxBufferSize == 0 {
		conf.MaxBufferSize = bufio.MaxScanTokenSize
	}
	if conf.GeometryKey == "" {
		conf.GeometryKey = "geometry"
	}
	if conf.GeometryField == "" {
		conf.GeometryField = geopart.DefaultGeometryField
	}
	return &Source{glob: glob, conf: conf}
}

// Name returns the glob this Source reads
func (s *Source) Name() string {
	return "jsonl:" + s.glob
}

// Scan emits every non-blank line
func (s *Source) Scan(ctx context.Context, emit func(raw []byte) error) error {
	files, err := datasource.ExpandGlob(s.glob)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := s.scanFile(ctx, path, emit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) scanFile(ctx context.Context, path string, emit func(raw []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.InputAccessError{Path: path, Err: err}
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), s.conf.MaxBufferSize)
	// ignore header lines, if configured to do so
	for i := 0; i < s.conf.HeaderLines && scanner.Scan(); i++ {
	}
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || (s.conf.Comment != 0 && bytes.HasPrefix(line, []byte(string(s.conf.Comment)))) {
			continue
		}
		// the scanner reuses its buffer
		raw := make([]byte, len(line))
		copy(raw, line)
		if err := emit(raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.InputAccessError{Path: path, Err: err}
	}
	return nil
}

// Normalize converts a line into a Record
func (s *Source) Normalize(raw []byte) (geopart.Record, error) {
	if len(s.conf.Fields) == 0 {
		return datasource.ObjectRecord(raw, s.conf.GeometryKey, s.conf.GeometryField)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON: %.64q", raw)
	}
	record := make(geopart.Record, len(s.conf.Fields))
	for i, value := range gjson.GetManyBytes(raw, s.conf.Fields...) {
		path := s.conf.Fields[i]
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if path == s.conf.GeometryKey && value.IsObject() {
			wkt, err := datasource.GeometryWKT([]byte(value.Raw))
			if err != nil {
				return nil, err
			}
			record[s.conf.GeometryField] = wkt
			continue
		}
		record[path] = datasource.StringValue(value)
	}
	return record, nil
}
