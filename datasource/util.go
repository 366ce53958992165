// Package datasource holds the helpers shared by the Sources which load native
// records into an Engine. Each input format has its own sub-package.
package datasource

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/geom"
	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ExpandGlob returns the files matching glob, in lexical order
func ExpandGlob(glob string) ([]string, error) {
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, errors.ConfigError{Field: "input", Reason: err.Error()}
	}
	if len(matches) == 0 {
		return nil, errors.InputAccessError{Path: glob, Err: fmt.Errorf("glob %s produced 0 files", glob)}
	}
	return matches, nil
}

// EncodeFields serializes a flat field mapping as a JSON object, the native payload of tabular sources
func EncodeFields(fields map[string]string) ([]byte, error) {
	return json.Marshal(fields)
}

// StringValue renders a JSON value as a Record value. Strings are unquoted, every other
// value keeps its JSON text.
func StringValue(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		if v.Raw != "" {
			return v.Raw
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Raw
}

// GeometryWKT converts a GeoJSON geometry object to WKT
func GeometryWKT(raw []byte) (string, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return "", fmt.Errorf("invalid GeoJSON geometry: %w", err)
	}
	return geom.WKT(g.Geometry()), nil
}

// ObjectRecord flattens the top level of a JSON object into a Record. Null members are
// omitted. When geometryKey names an object member, it is converted to WKT and stored
// under geometryField instead.
func ObjectRecord(raw []byte, geometryKey string, geometryField string) (geopart.Record, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON: %.64q", raw)
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return nil, fmt.Errorf("expected a JSON object, found %s", obj.Type)
	}
	record := make(geopart.Record)
	var gerr error
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Null {
			return true
		}
		if geometryKey != "" && key.Str == geometryKey && value.IsObject() {
			wkt, err := GeometryWKT([]byte(value.Raw))
			if err != nil {
				gerr = err
				return false
			}
			record[geometryField] = wkt
			return true
		}
		record[key.Str] = StringValue(value)
		return true
	})
	if gerr != nil {
		return nil, gerr
	}
	return record, nil
}

// FeatureRecord normalises a GeoJSON Feature: its properties become fields, its
// geometry becomes WKT under geometryField, and its id is kept as "id" unless a
// property already uses that name.
func FeatureRecord(raw []byte, geometryField string) (geopart.Record, error) {
	f, err := geojson.UnmarshalFeature(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON feature: %w", err)
	}
	record := make(geopart.Record, len(f.Properties)+2)
	props := gjson.GetBytes(raw, "properties")
	if props.IsObject() {
		props.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.Null {
				record[key.Str] = StringValue(value)
			}
			return true
		})
	}
	if id := gjson.GetBytes(raw, "id"); id.Exists() && id.Type != gjson.Null {
		if _, taken := record["id"]; !taken {
			record["id"] = StringValue(id)
		}
	}
	if f.Geometry != nil {
		record[geometryField] = geom.WKT(f.Geometry)
	}
	return record, nil
}
