package shapefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/internal/shpmeta"
	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

func TestShapefileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cities.shp")
	w, err := shp.Create(path, shp.POINT)
	require.Nil(t, err)
	require.Nil(t, w.SetFields([]shp.Field{shp.StringField("NAME", 20), shp.NumberField("POP", 10)}))
	cities := []struct {
		name string
		pop  int
		x, y float64
	}{
		{"Z\xfcrich", 421878, 8.54, 47.37},
		{"Bern", 133883, 7.45, 46.95},
	}
	for _, c := range cities {
		row := int(w.Write(&shp.Point{X: c.x, Y: c.y}))
		require.Nil(t, w.WriteAttribute(row, 0, c.name))
		require.Nil(t, w.WriteAttribute(row, 1, c.pop))
	}
	require.Nil(t, shpmeta.CloseWriter(w, path))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "cities.cpg"), []byte("ISO-8859-1"), 0644))

	s := CreateSource(filepath.Join(dir, "*.shp"), nil)
	var records []geopart.Record
	err = s.Scan(context.Background(), func(raw []byte) error {
		r, err := s.Normalize(raw)
		require.Nil(t, err)
		records = append(records, r)
		return nil
	})
	require.Nil(t, err)
	require.Equal(t, 2, len(records))
	require.Equal(t, geopart.Record{"NAME": "Zürich", "POP": "421878", "wkt": "POINT(8.54 47.37)"}, records[0])
	require.Equal(t, "Bern", records[1]["NAME"])
}
