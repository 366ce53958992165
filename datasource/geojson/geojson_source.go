// Package geojson loads GeoJSON documents into an Engine, one native record per Feature
package geojson

import (
	"context"
	"fmt"
	"os"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/datasource"
	"github.com/go-sif/geopart/errors"
	"github.com/tidwall/gjson"
)

// SourceConf configures a GeoJSON Source
type SourceConf struct {
	GeometryField string // Record field receiving the WKT. Defaults to geopart.DefaultGeometryField
}

// Source loads the Features of every GeoJSON file matching a glob.
// A file may hold a FeatureCollection, a single Feature or a bare geometry.
type Source struct {
	glob string
	conf *SourceConf
}

// CreateSource returns a new GeoJSON Source
func CreateSource(glob string, conf *SourceConf) *Source {
	if conf == nil {
		conf = &SourceConf{}
	}
	if conf.GeometryField == "" {
		conf.GeometryField = geopart.DefaultGeometryField
	}
	return &Source{glob: glob, conf: conf}
}

// Name returns the glob this Source reads
func (s *Source) Name() string {
	return "geojson:" + s.glob
}

// Scan emits every Feature as its own GeoJSON text
func (s *Source) Scan(ctx context.Context, emit func(raw []byte) error) error {
	files, err := datasource.ExpandGlob(s.glob)
	if err != nil {
		return err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.InputAccessError{Path: path, Err: err}
		}
		if !gjson.ValidBytes(data) {
			return errors.FormatError{Path: path, Reason: "invalid JSON"}
		}
		if err := s.scanDocument(ctx, path, gjson.ParseBytes(data), emit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) scanDocument(ctx context.Context, path string, doc gjson.Result, emit func(raw []byte) error) error {
	switch kind := doc.Get("type").String(); kind {
	case "FeatureCollection":
		var err error
		doc.Get("features").ForEach(func(_, feature gjson.Result) bool {
			if err = ctx.Err(); err != nil {
				return false
			}
			err = emit([]byte(feature.Raw))
			return err == nil
		})
		return err
	case "Feature":
		return emit([]byte(doc.Raw))
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		return emit([]byte(fmt.Sprintf(`{"type":"Feature","properties":{},"geometry":%s}`, doc.Raw)))
	default:
		return errors.FormatError{Path: path, Reason: fmt.Sprintf("unsupported GeoJSON type %q", kind)}
	}
}

// Normalize converts a Feature into a Record
func (s *Source) Normalize(raw []byte) (geopart.Record, error) {
	return datasource.FeatureRecord(raw, s.conf.GeometryField)
}
