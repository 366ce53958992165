package feature

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/charset"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/shpmeta"
	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

type fixture struct {
	names []string
	prj   string
	cpg   string
}

func writeFixture(t testing.TB, dir string, f fixture) string {
	path := filepath.Join(dir, "places.shp")
	w, err := shp.Create(path, shp.POINT)
	require.Nil(t, err)
	require.Nil(t, w.SetFields([]shp.Field{shp.StringField("NAME", 32), shp.NumberField("SEQ", 10)}))
	for i, name := range f.names {
		row := int(w.Write(&shp.Point{X: float64(i), Y: float64(i) / 2}))
		require.Nil(t, w.WriteAttribute(row, 0, name))
		require.Nil(t, w.WriteAttribute(row, 1, i))
	}
	require.Nil(t, shpmeta.CloseWriter(w, path))
	if f.prj != "" {
		require.Nil(t, os.WriteFile(shpmeta.Sidecar(path, ".prj"), []byte(f.prj), 0644))
	}
	if f.cpg != "" {
		require.Nil(t, os.WriteFile(shpmeta.Sidecar(path, ".cpg"), []byte(f.cpg), 0644))
	}
	return path
}

func numbered(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("feature %d", i)
	}
	return names
}

// readNames returns the NAME attribute of every feature in a partition
func readNames(t testing.TB, path string) []string {
	r, err := shp.Open(path)
	require.Nil(t, err)
	defer r.Close()
	var names []string
	for r.Next() {
		row, _ := r.Shape()
		names = append(names, strings.TrimRight(r.ReadAttribute(row, 0), "\x00 "))
	}
	return names
}

func splitFixture(t testing.TB, conf *Conf, input string, n int, encoding string) ([]geopart.Partition, error) {
	return CreatePartitioner(conf).Split(context.Background(), geopart.SplitRequest{
		InputPath:     input,
		OutputDir:     filepath.Join(filepath.Dir(input), "parts"),
		NumPartitions: n,
		Encoding:      encoding,
	})
}

func TestSplitHundredAndOneFeatures(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: numbered(101), prj: wgs84})
	parts, err := splitFixture(t, nil, input, 10, "")
	require.Nil(t, err)
	require.Equal(t, 10, len(parts))

	var all []string
	for i, part := range parts {
		require.Equal(t, i+1, part.Index)
		require.Equal(t, filepath.Join(dir, "parts", fmt.Sprintf("places_part%d.shp", i+1)), part.Path)
		names := readNames(t, part.Path)
		if i < 9 {
			require.Equal(t, 11, len(names))
		} else {
			require.Equal(t, 2, len(names))
		}
		require.EqualValues(t, len(names), part.Records)
		all = append(all, names...)
	}
	require.Equal(t, numbered(101), all)
}

func TestSplitCopiesSchemaAndCRS(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: numbered(7), prj: wgs84})
	parts, err := splitFixture(t, nil, input, 3, "")
	require.Nil(t, err)
	require.Equal(t, 3, len(parts))

	src, err := shp.Open(input)
	require.Nil(t, err)
	defer src.Close()
	for _, part := range parts {
		r, err := shp.Open(part.Path)
		require.Nil(t, err)
		require.Equal(t, src.GeometryType, r.GeometryType)
		fields := r.Fields()
		require.Equal(t, len(src.Fields()), len(fields))
		for i, f := range src.Fields() {
			require.Equal(t, f.String(), fields[i].String())
			require.Equal(t, f.Fieldtype, fields[i].Fieldtype)
			require.Equal(t, f.Size, fields[i].Size)
		}
		r.Close()

		prj, err := os.ReadFile(shpmeta.Sidecar(part.Path, ".prj"))
		require.Nil(t, err)
		require.Equal(t, wgs84, string(prj))
		cpg, err := os.ReadFile(shpmeta.Sidecar(part.Path, ".cpg"))
		require.Nil(t, err)
		require.Equal(t, "UTF-8", string(cpg))
	}
}

func TestSplitSinglePartition(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: numbered(5)})
	parts, err := splitFixture(t, nil, input, 1, "")
	require.Nil(t, err)
	require.Equal(t, 1, len(parts))
	require.Equal(t, numbered(5), readNames(t, parts[0].Path))
	_, err = os.Stat(shpmeta.Sidecar(parts[0].Path, ".prj"))
	require.True(t, os.IsNotExist(err))
}

func TestSplitEmptySource(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{prj: wgs84})
	parts, err := splitFixture(t, nil, input, 4, "")
	require.Nil(t, err)
	require.Equal(t, 1, len(parts))
	require.EqualValues(t, 0, parts[0].Records)
	require.Equal(t, 0, len(readNames(t, parts[0].Path)))
}

func TestSplitRejectsUnknownCRS(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: numbered(3), prj: `VERTCS["NAVD_1988"]`})
	_, err := splitFixture(t, nil, input, 2, "")
	var ferr errors.FormatError
	require.True(t, goerrors.As(err, &ferr))
}

func TestSplitDropsFeaturesOutsideBounds(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: numbered(101)})
	bounds := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{49.5, 100}}
	parts, err := splitFixture(t, &Conf{Bounds: &bounds}, input, 5, "")
	require.Nil(t, err)
	var all []string
	for _, part := range parts {
		all = append(all, readNames(t, part.Path)...)
	}
	require.Equal(t, numbered(50), all)
	require.Equal(t, 3, len(parts))
	require.EqualValues(t, 21, parts[0].Records)
	require.EqualValues(t, 8, parts[2].Records)
}

func TestSplitEncodingPolicies(t *testing.T) {
	names := []string{"plain", "ab\xffcd"}

	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: names})
	parts, err := splitFixture(t, &Conf{Policy: charset.Truncate}, input, 1, "")
	require.Nil(t, err)
	require.Equal(t, []string{"plain", "ab"}, readNames(t, parts[0].Path))

	dir = t.TempDir()
	input = writeFixture(t, dir, fixture{names: names})
	parts, err = splitFixture(t, &Conf{Policy: charset.Substitute}, input, 1, "")
	require.Nil(t, err)
	require.Equal(t, []string{"plain", "ab?cd"}, readNames(t, parts[0].Path))

	dir = t.TempDir()
	input = writeFixture(t, dir, fixture{names: names})
	_, err = splitFixture(t, &Conf{Policy: charset.Fail}, input, 1, "")
	var ferr errors.FormatError
	require.True(t, goerrors.As(err, &ferr))
	var uerr errors.UnencodableValueError
	require.True(t, goerrors.As(err, &uerr))
	require.Equal(t, "NAME", uerr.Field)
}

func TestSplitHonoursCodePage(t *testing.T) {
	dir := t.TempDir()
	// "Zürich" in ISO-8859-1
	input := writeFixture(t, dir, fixture{names: []string{"Z\xfcrich"}, cpg: "ISO-8859-1"})
	parts, err := splitFixture(t, nil, input, 1, "")
	require.Nil(t, err)
	require.Equal(t, []string{"Z\xfcrich"}, readNames(t, parts[0].Path))
	cpg, err := os.ReadFile(shpmeta.Sidecar(parts[0].Path, ".cpg"))
	require.Nil(t, err)
	require.Equal(t, "ISO-8859-1", string(cpg))
}

func TestSplitErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := splitFixture(t, nil, filepath.Join(dir, "missing.shp"), 2, "")
	var iae errors.InputAccessError
	require.True(t, goerrors.As(err, &iae))

	input := writeFixture(t, dir, fixture{names: numbered(2)})
	_, err = splitFixture(t, nil, input, 0, "")
	var cerr errors.ConfigError
	require.True(t, goerrors.As(err, &cerr))

	_, err = splitFixture(t, nil, input, 2, "klingon")
	require.True(t, goerrors.As(err, &cerr))
}

func TestSplitIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: numbered(40), prj: wgs84})
	first, err := splitFixture(t, nil, input, 6, "")
	require.Nil(t, err)
	second, err := splitFixture(t, nil, input, 6, "")
	require.Nil(t, err)
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].Checksum, second[i].Checksum)
		require.Equal(t, first[i].Records, second[i].Records)
	}
}

func TestSplitPartitionsKeepAttributeTable(t *testing.T) {
	dir := t.TempDir()
	input := writeFixture(t, dir, fixture{names: numbered(5)})
	parts, err := splitFixture(t, nil, input, 2, "")
	require.Nil(t, err)
	require.Equal(t, 2, len(parts))

	seq := 0
	for _, part := range parts {
		_, err := os.Stat(shpmeta.Sidecar(part.Path, ".dbf"))
		require.Nil(t, err)
		_, err = os.Stat(strings.TrimSuffix(part.Path, ".shp") + "dbf")
		require.True(t, os.IsNotExist(err))

		r, err := shp.Open(part.Path)
		require.Nil(t, err)
		fields := r.Fields()
		require.Equal(t, 2, len(fields))
		require.Equal(t, "NAME", fields[0].String())
		require.Equal(t, "SEQ", fields[1].String())
		for r.Next() {
			row, _ := r.Shape()
			require.Equal(t, fmt.Sprintf("feature %d", seq), strings.TrimRight(r.ReadAttribute(row, 0), "\x00 "))
			require.Equal(t, fmt.Sprint(seq), strings.TrimSpace(strings.TrimRight(r.ReadAttribute(row, 1), "\x00")))
			seq++
		}
		r.Close()
	}
	require.Equal(t, 5, seq)
}
