// Package partitioner selects the local partitioning strategy for an input format
package partitioner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/charset"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/partitioner/feature"
	"github.com/go-sif/geopart/partitioner/text"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// Conf carries the options of every local strategy. Each strategy reads only the
// options which apply to it.
type Conf struct {
	Delimiter rune            // text only
	Quote     rune            // text only
	Policy    charset.Policy  // shapefile only
	Bounds    *orb.Bound      // shapefile only
	Logger    *zerolog.Logger // all
}

var extensions = map[string]geopart.Format{
	".csv":     geopart.FormatText,
	".tsv":     geopart.FormatText,
	".txt":     geopart.FormatText,
	".dsv":     geopart.FormatText,
	".shp":     geopart.FormatShapefile,
	".jsonl":   geopart.FormatJSONL,
	".ndjson":  geopart.FormatJSONL,
	".geojson": geopart.FormatGeoJSON,
}

// DetectFormat derives the Format of an input from its file extension
func DetectFormat(path string) (geopart.Format, error) {
	if f, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f, nil
	}
	return "", errors.ConfigError{Field: "format", Reason: fmt.Sprintf("cannot infer the format of %s", path)}
}

// ForFormat returns the local Partitioner for format
func ForFormat(format geopart.Format, conf *Conf) (geopart.Partitioner, error) {
	if conf == nil {
		conf = &Conf{}
	}
	switch format {
	case geopart.FormatText:
		return text.CreatePartitioner(&text.Conf{
			Delimiter: conf.Delimiter,
			Quote:     conf.Quote,
			Logger:    conf.Logger,
		}), nil
	case geopart.FormatShapefile:
		return feature.CreatePartitioner(&feature.Conf{
			Policy: conf.Policy,
			Bounds: conf.Bounds,
			Logger: conf.Logger,
		}), nil
	case geopart.FormatJSONL, geopart.FormatGeoJSON:
		return nil, errors.ConfigError{Field: "format", Reason: fmt.Sprintf("%s inputs can only be partitioned in distributed mode", format)}
	}
	return nil, errors.ConfigError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
}
