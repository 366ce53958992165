// Package shapefile loads ESRI Shapefiles into an Engine. Each feature is carried as
// a GeoJSON Feature, so normalisation matches the geojson source.
package shapefile

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/datasource"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/geom"
	"github.com/go-sif/geopart/internal/shpmeta"
	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SourceConf configures a Shapefile Source
type SourceConf struct {
	Encoding      string // Attribute encoding. Defaults to the .cpg sidecar, then UTF-8
	GeometryField string // Record field receiving the WKT. Defaults to geopart.DefaultGeometryField
}

// Source loads the features of every Shapefile matching a glob
type Source struct {
	glob string
	conf *SourceConf
}

// CreateSource returns a new Shapefile Source
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
	return "shapefile:" + s.glob
}

// Scan emits every feature, with attributes decoded to UTF-8
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
	cs, _, err := shpmeta.ResolveCharset(path, s.conf.Encoding)
	if err != nil {
		return err
	}
	reader, err := shp.Open(path)
	if err != nil {
		return errors.InputAccessError{Path: path, Err: err}
	}
	defer reader.Close()
	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, shape := reader.Shape()
		g, err := geom.FromShape(shape)
		if err != nil {
			return errors.FormatError{Path: path, Reason: fmt.Sprintf("feature %d", row), Err: err}
		}
		props := make(map[string]string, len(names))
		for i, name := range names {
			value := strings.TrimRight(reader.ReadAttribute(row, i), "\x00 ")
			if decoded, err := cs.Decode([]byte(value)); err == nil {
				value = decoded
			}
			props[name] = value
		}
		raw, err := encodeFeature(g, props)
		if err != nil {
			return errors.FormatError{Path: path, Reason: fmt.Sprintf("feature %d", row), Err: err}
		}
		if err := emit(raw); err != nil {
			return err
		}
	}
	if err := reader.Err(); err != nil {
		return errors.FormatError{Path: path, Reason: "unreadable feature", Err: err}
	}
	return nil
}

func encodeFeature(g orb.Geometry, props map[string]string) ([]byte, error) {
	properties, err := datasource.EncodeFields(props)
	if err != nil {
		return nil, err
	}
	geometry := []byte("null")
	if g != nil {
		if geometry, err = geojson.NewGeometry(g).MarshalJSON(); err != nil {
			return nil, err
		}
	}
	return []byte(fmt.Sprintf(`{"type":"Feature","properties":%s,"geometry":%s}`, properties, geometry)), nil
}

// Normalize converts a feature into a Record
func (s *Source) Normalize(raw []byte) (geopart.Record, error) {
	return datasource.FeatureRecord(raw, s.conf.GeometryField)
}
