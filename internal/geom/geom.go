// Package geom converts shapefile shapes into orb geometries and provides the
// WKT and bounds helpers shared by partitioners and sources.
package geom

import (
	"fmt"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// FromShape converts a shapefile shape to an orb geometry. Null shapes produce a nil geometry.
func FromShape(s shp.Shape) (orb.Geometry, error) {
	switch v := s.(type) {
	case *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{v.X, v.Y}, nil
	case *shp.PointZ:
		return orb.Point{v.X, v.Y}, nil
	case *shp.PointM:
		return orb.Point{v.X, v.Y}, nil
	case *shp.MultiPoint:
		return toMultiPoint(v.Points), nil
	case *shp.MultiPointZ:
		return toMultiPoint(v.Points), nil
	case *shp.PolyLine:
		return toLines(split(v.NumParts, v.Parts, v.Points)), nil
	case *shp.PolyLineZ:
		return toLines(split(v.NumParts, v.Parts, v.Points)), nil
	case *shp.Polygon:
		return toPolygons(split(v.NumParts, v.Parts, v.Points)), nil
	case *shp.PolygonZ:
		return toPolygons(split(v.NumParts, v.Parts, v.Points)), nil
	default:
		return nil, fmt.Errorf("unsupported shape type %T", s)
	}
}

// WKT encodes a geometry as Well-Known Text. A nil geometry encodes as the empty string.
func WKT(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return wkt.MarshalString(g)
}

// Within returns true iff the bounding box of the shape lies inside b. Null shapes are always within.
func Within(s shp.Shape, b orb.Bound) bool {
	if _, ok := s.(*shp.Null); ok || s == nil {
		return true
	}
	box := s.BBox()
	return b.Contains(orb.Point{box.MinX, box.MinY}) && b.Contains(orb.Point{box.MaxX, box.MaxY})
}

// GeometryWithin returns true iff the bound of the geometry lies inside b
func GeometryWithin(g orb.Geometry, b orb.Bound) bool {
	if g == nil {
		return true
	}
	gb := g.Bound()
	return b.Contains(gb.Min) && b.Contains(gb.Max)
}

func split(numParts int32, parts []int32, points []shp.Point) [][]shp.Point {
	out := make([][]shp.Point, 0, numParts)
	for i := 0; i < int(numParts) && i < len(parts); i++ {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || start > end || end > len(points) {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

func toMultiPoint(points []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

func toLineString(points []shp.Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = orb.Point{p.X, p.Y}
	}
	return ls
}

func toLines(parts [][]shp.Point) orb.Geometry {
	if len(parts) == 1 {
		return toLineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, part := range parts {
		mls[i] = toLineString(part)
	}
	return mls
}

// toPolygons groups shapefile rings into polygons: clockwise rings are exteriors,
// counter-clockwise rings are holes of the preceding exterior.
func toPolygons(parts [][]shp.Point) orb.Geometry {
	var polys orb.MultiPolygon
	for _, part := range parts {
		ring := orb.Ring(toLineString(part))
		if ring.Orientation() == orb.CCW && len(polys) > 0 {
			polys[len(polys)-1] = append(polys[len(polys)-1], ring)
			continue
		}
		polys = append(polys, orb.Polygon{ring})
	}
	if len(polys) == 1 {
		return polys[0]
	}
	return polys
}
