package datasource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-sif/geopart"
	"github.com/stretchr/testify/require"
)

func TestExpandGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "c.txt"} {
		require.Nil(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	files, err := ExpandGlob(filepath.Join(dir, "*.csv"))
	require.Nil(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}, files)

	_, err = ExpandGlob(filepath.Join(dir, "*.shp"))
	require.NotNil(t, err)
}

func TestObjectRecord(t *testing.T) {
	raw := []byte(`{"id":7,"name":"Oslo","tags":["a","b"],"missing":null,"geometry":{"type":"Point","coordinates":[10.75,59.91]}}`)
	record, err := ObjectRecord(raw, "geometry", geopart.DefaultGeometryField)
	require.Nil(t, err)
	require.Equal(t, geopart.Record{
		"id":   "7",
		"name": "Oslo",
		"tags": `["a","b"]`,
		"wkt":  "POINT(10.75 59.91)",
	}, record)

	_, err = ObjectRecord([]byte(`[1,2]`), "", "wkt")
	require.NotNil(t, err)
	_, err = ObjectRecord([]byte(`{"a":`), "", "wkt")
	require.NotNil(t, err)
	_, err = ObjectRecord([]byte(`{"geometry":{"type":"Blob"}}`), "geometry", "wkt")
	require.NotNil(t, err)
}

func TestFeatureRecord(t *testing.T) {
	raw := []byte(`{"type":"Feature","id":"f1","properties":{"name":"river","length":12.5},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}`)
	record, err := FeatureRecord(raw, "geom")
	require.Nil(t, err)
	require.Equal(t, geopart.Record{
		"id":     "f1",
		"name":   "river",
		"length": "12.5",
		"geom":   "LINESTRING(0 0,1 1)",
	}, record)

	record, err = FeatureRecord([]byte(`{"type":"Feature","properties":null,"geometry":null}`), "wkt")
	require.Nil(t, err)
	require.Equal(t, 0, len(record))
}

func TestEncodeFields(t *testing.T) {
	raw, err := EncodeFields(map[string]string{"a": "1", "b": "x\"y"})
	require.Nil(t, err)
	record, err := ObjectRecord(raw, "", "wkt")
	require.Nil(t, err)
	require.Equal(t, geopart.Record{"a": "1", "b": "x\"y"}, record)
}
