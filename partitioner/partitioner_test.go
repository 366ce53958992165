package partitioner

import (
	"context"
	goerrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/partitioner/feature"
	"github.com/go-sif/geopart/partitioner/text"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]geopart.Format{
		"points.csv":        geopart.FormatText,
		"/data/POINTS.TSV":  geopart.FormatText,
		"roads.shp":         geopart.FormatShapefile,
		"rows.jsonl":        geopart.FormatJSONL,
		"areas.geojson":     geopart.FormatGeoJSON,
		"export/x.y/in.txt": geopart.FormatText,
	}
	for path, expected := range cases {
		f, err := DetectFormat(path)
		require.Nil(t, err, path)
		require.Equal(t, expected, f, path)
	}
	_, err := DetectFormat("archive.zip")
	var cerr errors.ConfigError
	require.True(t, goerrors.As(err, &cerr))
	require.Equal(t, "format", cerr.Field)
}

func TestForFormat(t *testing.T) {
	p, err := ForFormat(geopart.FormatText, nil)
	require.Nil(t, err)
	_, ok := p.(*text.Partitioner)
	require.True(t, ok)

	p, err = ForFormat(geopart.FormatShapefile, &Conf{})
	require.Nil(t, err)
	_, ok = p.(*feature.Partitioner)
	require.True(t, ok)

	var cerr errors.ConfigError
	_, err = ForFormat(geopart.FormatJSONL, nil)
	require.True(t, goerrors.As(err, &cerr))
	_, err = ForFormat("parquet", nil)
	require.True(t, goerrors.As(err, &cerr))
}

func TestForFormatPassesTextOptions(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.tsv")
	require.Nil(t, os.WriteFile(input, []byte("a\tb\n1\t2\n3\t4\n"), 0644))
	p, err := ForFormat(geopart.FormatText, &Conf{Delimiter: '\t'})
	require.Nil(t, err)
	parts, err := p.Split(context.Background(), geopart.SplitRequest{InputPath: input, OutputDir: dir, NumPartitions: 2})
	require.Nil(t, err)
	require.Equal(t, 2, len(parts))
	require.Equal(t, filepath.Join(dir, "in_part2.tsv"), parts[1].Path)
}
