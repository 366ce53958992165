// Package feature provides a Partitioner for ESRI Shapefiles. Partitions hold an
// equal number of features, and each carries the source's schema, geometry type,
// CRS and code page.
package feature

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/go-sif/geopart"
	"github.com/go-sif/geopart/charset"
	"github.com/go-sif/geopart/errors"
	"github.com/go-sif/geopart/internal/geom"
	"github.com/go-sif/geopart/internal/shpmeta"
	"github.com/go-sif/geopart/logging"
	multierror "github.com/hashicorp/go-multierror"
	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// Conf configures a feature Partitioner
type Conf struct {
	Policy charset.Policy  // What to do with attribute values the target encoding cannot hold. Defaults to Truncate
	Bounds *orb.Bound      // If set, features whose bounding box leaves these bounds are dropped
	Logger *zerolog.Logger // Defaults to a disabled logger
}

// Partitioner splits a Shapefile into partitions of ceil(total/n) features
type Partitioner struct {
	conf *Conf
	log  zerolog.Logger
}

// CreatePartitioner returns a new feature Partitioner
func CreatePartitioner(conf *Conf) *Partitioner {
	if conf == nil {
		conf = &Conf{}
	}
	return &Partitioner{conf: conf, log: logging.Component(logging.OrNop(conf.Logger), "feature-partitioner")}
}

// schema is everything copied verbatim into each partition
type schema struct {
	fields    []shp.Field
	shapeType shp.ShapeType
	crs       []byte // nil when the source has no .prj
	cs        *charset.Charset
}

type partWriter struct {
	part   geopart.Partition
	w      *shp.Writer
	digest *xxhash.Digest
}

// Split divides the Shapefile at req.InputPath into at most req.NumPartitions partitions.
// All partitions but the last hold exactly ceil(total/n) features.
func (p *Partitioner) Split(ctx context.Context, req geopart.SplitRequest) ([]geopart.Partition, error) {
	if err := geopart.ValidatePartitionCount(req.NumPartitions); err != nil {
		return nil, err
	}
	for _, path := range []string{req.InputPath, shpmeta.Sidecar(req.InputPath, ".dbf")} {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.InputAccessError{Path: path, Err: err}
		}
	}
	cs, fallback, err := shpmeta.ResolveCharset(req.InputPath, req.Encoding)
	if err != nil {
		return nil, err
	}
	if fallback {
		p.log.Debug().Str("input", req.InputPath).Msg("no code page declared, assuming UTF-8")
	}
	crs, hasCRS, err := shpmeta.ReadCRS(req.InputPath)
	if err != nil {
		return nil, err
	}
	if !hasCRS {
		p.log.Warn().Str("input", req.InputPath).Msg("no .prj found; partitions will carry no CRS")
	}

	reader, err := shp.Open(req.InputPath)
	if err != nil {
		return nil, errors.InputAccessError{Path: req.InputPath, Err: err}
	}
	defer reader.Close()
	sch := &schema{fields: reader.Fields(), shapeType: reader.GeometryType, crs: crs, cs: cs}
	total := int64(reader.AttributeCount())
	plan, err := geopart.RecordCountPlan(total, req.NumPartitions)
	if err != nil {
		return nil, err
	}
	p.log.Debug().
		Str("input", req.InputPath).
		Str("encoding", cs.Name).
		Int("fields", len(sch.fields)).
		Int64("features", total).
		Int64("capacity", plan.Threshold).
		Msg("planned feature split")

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create output directory %s: %w", req.OutputDir, err)
	}

	var partitions []geopart.Partition
	var current *partWriter
	finish := func() error {
		if current == nil {
			return nil
		}
		pw := current
		current = nil
		if err := shpmeta.CloseWriter(pw.w, pw.part.Path); err != nil {
			return fmt.Errorf("unable to close partition %s: %w", pw.part.Path, err)
		}
		if st, err := os.Stat(pw.part.Path); err == nil {
			pw.part.Bytes = st.Size()
		}
		pw.part.Checksum = pw.digest.Sum64()
		partitions = append(partitions, pw.part)
		p.log.Debug().Str("partition", pw.part.Path).Int64("records", pw.part.Records).Msg("closed partition")
		return nil
	}
	// partial output stays on disk when the split fails
	defer finish()

	values := make([]string, len(sch.fields))
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, shape := reader.Shape()
		if p.conf.Bounds != nil && !geom.Within(shape, *p.conf.Bounds) {
			p.log.Warn().Str("input", req.InputPath).Int("record", row).Msg("geometry outside target bounds, dropping feature")
			continue
		}
		if err := p.prepareAttributes(req.InputPath, reader, row, sch, values); err != nil {
			return nil, err
		}
		if current == nil {
			if current, err = p.openPartition(req, len(partitions)+1, sch); err != nil {
				return nil, err
			}
		}
		if err := current.write(shape, values); err != nil {
			return nil, fmt.Errorf("unable to write feature %d to %s: %w", row, current.part.Path, err)
		}
		if current.part.Records >= plan.Threshold {
			if err := finish(); err != nil {
				return nil, err
			}
		}
	}
	if err := reader.Err(); err != nil {
		return nil, errors.FormatError{Path: req.InputPath, Reason: "unreadable feature", Err: err}
	}
	if current == nil && len(partitions) == 0 {
		// an empty source still yields one self-describing partition
		if current, err = p.openPartition(req, 1, sch); err != nil {
			return nil, err
		}
	}
	if err := finish(); err != nil {
		return nil, err
	}
	p.log.Info().
		Str("input", req.InputPath).
		Int("requested", req.NumPartitions).
		Int("produced", len(partitions)).
		Msg("split shapefile input")
	return partitions, nil
}

// prepareAttributes reads the attributes of one row into values, applying the
// encoding policy to character fields. Values are left in the target encoding.
func (p *Partitioner) prepareAttributes(input string, reader *shp.Reader, row int, sch *schema, values []string) error {
	var problems *multierror.Error
	for i, field := range sch.fields {
		raw := strings.TrimRight(reader.ReadAttribute(row, i), "\x00 ")
		if field.Fieldtype != 'C' {
			values[i] = raw
			continue
		}
		name := field.String()
		decoded, err := sch.cs.Decode([]byte(raw))
		if err != nil {
			decoded = raw
		}
		prepared, problem := sch.cs.Prepare(name, decoded, p.conf.Policy)
		if problem != nil {
			if p.conf.Policy == charset.Fail {
				problems = multierror.Append(problems, *problem)
				continue
			}
			p.log.Warn().
				Str("input", input).
				Int("record", row).
				Str("field", name).
				Str("policy", p.conf.Policy.String()).
				Msg("attribute value not representable in " + sch.cs.Name)
		}
		encoded, err := sch.cs.Encode(prepared)
		if err != nil {
			return errors.FormatError{Path: input, Reason: fmt.Sprintf("record %d: field %s cannot be encoded", row, name), Err: err}
		}
		values[i] = string(encoded)
	}
	if err := problems.ErrorOrNil(); err != nil {
		return errors.FormatError{Path: input, Reason: fmt.Sprintf("record %d has unencodable values", row), Err: err}
	}
	return nil
}

func (p *Partitioner) openPartition(req geopart.SplitRequest, k int, sch *schema) (*partWriter, error) {
	path := geopart.PartitionPath(req.OutputDir, req.InputPath, k)
	if sch.crs != nil {
		if err := os.WriteFile(shpmeta.Sidecar(path, ".prj"), sch.crs, 0644); err != nil {
			return nil, fmt.Errorf("unable to write CRS for partition %s: %w", path, err)
		}
	}
	if err := os.WriteFile(shpmeta.Sidecar(path, ".cpg"), []byte(sch.cs.Name), 0644); err != nil {
		return nil, fmt.Errorf("unable to write code page for partition %s: %w", path, err)
	}
	w, err := shp.Create(path, sch.shapeType)
	if err != nil {
		return nil, fmt.Errorf("unable to create partition %s: %w", path, err)
	}
	if len(sch.fields) > 0 {
		if err := w.SetFields(sch.fields); err != nil {
			shpmeta.CloseWriter(w, path)
			return nil, fmt.Errorf("unable to copy schema to partition %s: %w", path, err)
		}
	}
	return &partWriter{
		part:   geopart.Partition{Index: k, Path: path},
		w:      w,
		digest: xxhash.New(),
	}, nil
}

func (pw *partWriter) write(shape shp.Shape, values []string) error {
	row := int(pw.w.Write(shape))
	for i, v := range values {
		if err := pw.w.WriteAttribute(row, i, v); err != nil {
			return err
		}
		pw.digest.WriteString(v)
		pw.digest.Write([]byte{0})
	}
	if shape != nil {
		box := shape.BBox()
		var buf [8]byte
		for _, c := range []float64{box.MinX, box.MinY, box.MaxX, box.MaxY} {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c))
			pw.digest.Write(buf[:])
		}
	}
	pw.part.Records++
	return nil
}
