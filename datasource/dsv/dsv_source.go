package dsv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/charset"
	"github.com/go-sif/geopart/datasource"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/geom"
	"github.com/paulmach/orb"
	"golang.org/x/text/transform"
)

// SourceConf configures a DSV Source
type SourceConf struct {
	Delimiter     rune   // The delimiter separating columns in the file. Defaults to ,
	Comment       rune   // Lines beginning with the comment character are ignored. Cannot be equal to the Delimiter. Defaults to no comment character.
	LazyQuotes    bool   // Tolerate quotes appearing in unquoted fields
	NilValue      string // A special string which represents nil values in the dataset. Such values are omitted from Records.
	Encoding      string // Character encoding of the files. Defaults to BOM detection, then UTF-8
	GeometryField string // Record field receiving synthesised WKT. Defaults to geopart.DefaultGeometryField
	XColumn       string // If set together with YColumn, coordinates in these columns become a WKT point
	YColumn       string
}

// Source loads the rows of every file matching a glob
type Source struct {
	glob string
	conf *SourceConf
}

// CreateSource returns a new DSV Source
func CreateSource(glob string, conf *SourceConf) *Source {
	if conf == nil {
		conf = &SourceConf{}
	}
	if conf.Delimiter == 0 {
		conf.Delimiter = ','
	}
	if conf.GeometryField == "" {
		conf.GeometryField = geopart.DefaultGeometryField
	}
	return &Source{glob: glob, conf: conf}
}

// Name returns the glob this Source reads
func (s *Source) Name() string {
	return "dsv:" + s.glob
}

// Scan emits every row, as a JSON object keyed by the file's header
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
	br := bufio.NewReader(f)
	prefix, _ := br.Peek(4)
	cs, _, err := charset.Resolve(s.conf.Encoding, prefix)
	if err != nil {
		return err
	}
	if cs.HasBOM() && bytes.HasPrefix(prefix, cs.BOM) {
		if _, err := br.Discard(len(cs.BOM)); err != nil {
			return errors.InputAccessError{Path: path, Err: err}
		}
	}
	var r io.Reader = br
	if !cs.IsUTF8() {
		r = transform.NewReader(br, cs.Encoding().NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.Comma = s.conf.Delimiter
	reader.Comment = s.conf.Comment
	reader.LazyQuotes = s.conf.LazyQuotes
	header, err := reader.Read()
	if err == io.EOF {
		return errors.FormatError{Path: path, Reason: "missing header line"}
	} else if err != nil {
		return errors.FormatError{Path: path, Reason: "unreadable header", Err: err}
	}
	fields := make(map[string]string, len(header))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.FormatError{Path: path, Reason: "malformed row", Err: err}
		}
		for k := range fields {
			delete(fields, k)
		}
		for i, name := range header {
			if row[i] == s.conf.NilValue && s.conf.NilValue != "" {
				continue
			}
			fields[name] = row[i]
		}
		raw, err := datasource.EncodeFields(fields)
		if err != nil {
			return err
		}
		if err := emit(raw); err != nil {
			return err
		}
	}
}

// Normalize converts a row into a Record, synthesising point geometry when configured to
func (s *Source) Normalize(raw []byte) (geopart.Record, error) {
	record, err := datasource.ObjectRecord(raw, "", s.conf.GeometryField)
	if err != nil {
		return nil, err
	}
	if s.conf.XColumn == "" || s.conf.YColumn == "" {
		return record, nil
	}
	x, err := strconv.ParseFloat(record[s.conf.XColumn], 64)
	if err != nil {
		return nil, fmt.Errorf("column %s is not a coordinate: %w", s.conf.XColumn, err)
	}
	y, err := strconv.ParseFloat(record[s.conf.YColumn], 64)
	if err != nil {
		return nil, fmt.Errorf("column %s is not a coordinate: %w", s.conf.YColumn, err)
	}
	record[s.conf.GeometryField] = geom.WKT(orb.Point{x, y})
	return record, nil
}
